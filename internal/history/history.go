// Package history keeps the shell's back/forward navigation. A few
// recent entries stay live with their view state attached; older ones
// are offloaded to plain descriptors, and the tail is persisted so
// navigation survives a restart.
package history

import (
	"container/list"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// maxLive bounds entries that keep their view state in memory.
	maxLive = 10
	// maxSaved bounds the total history length and the persisted tail.
	maxSaved = 50

	historyFile = "history.bin"
)

// Item is one visited view. Args are the ids the view was opened with;
// State is the live view payload and never leaves memory.
type Item struct {
	View  string
	Args  []int
	Query string
	State any
}

// descriptor is the persisted form of an item.
type descriptor struct {
	View  string
	Args  []int
	Query string
}

// History is a bounded two-direction navigation stack.
type History struct {
	logger *logrus.Logger
	dir    string

	mu      sync.Mutex
	entries *list.List    // Front = most recent
	pos     *list.Element // nil means at the live head
}

// New creates a history persisting under dir.
func New(dir string, logger *logrus.Logger) *History {
	if logger == nil {
		logger = logrus.New()
	}
	return &History{logger: logger, dir: dir, entries: list.New()}
}

// Push records a newly opened view. Entries with no arguments and no
// query carry nothing worth returning to and are skipped. Pushing while
// navigated back discards the forward entries.
func (h *History) Push(item Item) {
	if len(item.Args) == 0 && item.Query == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pos != nil {
		for e := h.entries.Front(); e != nil && e != h.pos; {
			next := e.Next()
			h.entries.Remove(e)
			e = next
		}
		h.pos = nil
	}

	h.entries.PushFront(&item)
	h.trim()
}

// Back moves one step back, returning the item to show, or nil at the
// oldest entry.
func (h *History) Back() *Item {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur := h.cursor()
	if cur == nil {
		return nil
	}
	back := cur.Next()
	if back == nil {
		return nil
	}
	h.pos = back
	return back.Value.(*Item)
}

// Forward moves one step forward, or nil when already at the head.
func (h *History) Forward() *Item {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pos == nil {
		return nil
	}
	fwd := h.pos.Prev()
	if fwd == nil {
		return nil
	}
	h.pos = fwd
	if h.pos == h.entries.Front() {
		h.pos = nil
	}
	return fwd.Value.(*Item)
}

// CanGoBack reports whether Back would return an item.
func (h *History) CanGoBack() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur := h.cursor()
	return cur != nil && cur.Next() != nil
}

// CanGoForward reports whether Forward would return an item.
func (h *History) CanGoForward() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos != nil
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries.Len()
}

// Clear drops all history and the persisted file.
func (h *History) Clear() {
	h.mu.Lock()
	h.entries.Init()
	h.pos = nil
	h.mu.Unlock()
	_ = os.Remove(filepath.Join(h.dir, historyFile))
}

// Save persists the descriptors, newest first.
func (h *History) Save() error {
	h.mu.Lock()
	descriptors := make([]descriptor, 0, h.entries.Len())
	for e := h.entries.Front(); e != nil; e = e.Next() {
		item := e.Value.(*Item)
		descriptors = append(descriptors, descriptor{View: item.View, Args: item.Args, Query: item.Query})
	}
	h.mu.Unlock()

	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(h.dir, historyFile))
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(descriptors)
}

// Load restores persisted descriptors, replacing the current entries.
// A missing file is not an error.
func (h *History) Load() error {
	f, err := os.Open(filepath.Join(h.dir, historyFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	var descriptors []descriptor
	if err := gob.NewDecoder(f).Decode(&descriptors); err != nil {
		h.logger.WithError(err).Warn("Dropping unreadable navigation history")
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries.Init()
	h.pos = nil
	for _, d := range descriptors {
		h.entries.PushBack(&Item{View: d.View, Args: d.Args, Query: d.Query})
	}
	h.trim()
	return nil
}

func (h *History) cursor() *list.Element {
	if h.pos != nil {
		return h.pos
	}
	return h.entries.Front()
}

// trim offloads view state past the live window and drops entries past
// the saved cap. Caller holds h.mu.
func (h *History) trim() {
	i := 0
	for e := h.entries.Front(); e != nil; {
		next := e.Next()
		switch {
		case i >= maxSaved:
			h.entries.Remove(e)
		case i >= maxLive:
			e.Value.(*Item).State = nil
		}
		i++
		e = next
	}
}

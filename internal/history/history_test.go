package history

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(t.TempDir(), logger)
}

func TestBackAndForward(t *testing.T) {
	h := newTestHistory(t)
	h.Push(Item{View: "album", Args: []int{1}})
	h.Push(Item{View: "album", Args: []int{2}})
	h.Push(Item{View: "album", Args: []int{3}})

	assert.True(t, h.CanGoBack())
	assert.False(t, h.CanGoForward())

	back := h.Back()
	require.NotNil(t, back)
	assert.Equal(t, []int{2}, back.Args)
	assert.True(t, h.CanGoForward())

	back = h.Back()
	require.NotNil(t, back)
	assert.Equal(t, []int{1}, back.Args)
	assert.Nil(t, h.Back(), "nothing before the oldest entry")

	fwd := h.Forward()
	require.NotNil(t, fwd)
	assert.Equal(t, []int{2}, fwd.Args)
	fwd = h.Forward()
	require.NotNil(t, fwd)
	assert.Equal(t, []int{3}, fwd.Args)
	assert.Nil(t, h.Forward(), "already at the head")
	assert.False(t, h.CanGoForward())
}

func TestPushSkipsEmptyViews(t *testing.T) {
	h := newTestHistory(t)
	h.Push(Item{View: "albums"})
	assert.Equal(t, 0, h.Len())

	h.Push(Item{View: "search", Query: "miles"})
	assert.Equal(t, 1, h.Len())
}

func TestPushWhileNavigatedBackDropsForward(t *testing.T) {
	h := newTestHistory(t)
	h.Push(Item{View: "album", Args: []int{1}})
	h.Push(Item{View: "album", Args: []int{2}})
	h.Push(Item{View: "album", Args: []int{3}})

	require.NotNil(t, h.Back())
	require.NotNil(t, h.Back())

	h.Push(Item{View: "album", Args: []int{9}})
	assert.False(t, h.CanGoForward(), "the abandoned forward branch is gone")

	back := h.Back()
	require.NotNil(t, back)
	assert.Equal(t, []int{1}, back.Args)
	assert.Equal(t, 2, h.Len())
}

func TestTrimBounds(t *testing.T) {
	h := newTestHistory(t)
	for i := 0; i < maxSaved+10; i++ {
		h.Push(Item{View: "album", Args: []int{i}, State: fmt.Sprintf("state-%d", i)})
	}
	assert.Equal(t, maxSaved, h.Len())

	// The live window keeps its state, older entries are descriptors.
	live := 0
	for item := h.Back(); item != nil; item = h.Back() {
		if item.State != nil {
			live++
		}
	}
	assert.Equal(t, maxLive-1, live, "state survives only inside the live window")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	h := newTestHistory(t)
	h.Push(Item{View: "album", Args: []int{1}, State: "live"})
	h.Push(Item{View: "search", Query: "blue"})
	require.NoError(t, h.Save())

	restored := New(h.dir, h.logger)
	require.NoError(t, restored.Load())
	assert.Equal(t, 2, restored.Len())

	back := restored.Back()
	require.NotNil(t, back)
	assert.Equal(t, "album", back.View)
	assert.Equal(t, []int{1}, back.Args)
	assert.Nil(t, back.State, "view state never persists")
}

func TestLoadMissingFile(t *testing.T) {
	h := newTestHistory(t)
	require.NoError(t, h.Load())
	assert.Equal(t, 0, h.Len())
}

func TestClear(t *testing.T) {
	h := newTestHistory(t)
	h.Push(Item{View: "album", Args: []int{1}})
	require.NoError(t, h.Save())

	h.Clear()
	assert.Equal(t, 0, h.Len())

	restored := New(h.dir, h.logger)
	require.NoError(t, restored.Load())
	assert.Equal(t, 0, restored.Len())
}

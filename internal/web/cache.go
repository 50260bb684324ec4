package web

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cantata/pkg/models"
)

// uriTTL bounds how long a resolved stream URI is trusted. Provider
// stream URLs expire server side, so stale entries are re-resolved.
const uriTTL = 2 * time.Hour

type cacheEntry struct {
	uri     string
	expires time.Time
}

func (e cacheEntry) expired() bool {
	return time.Now().After(e.expires)
}

// URICache maps web:// track URIs to resolved playable URIs. Entries
// live in memory with a TTL and are mirrored to the cache directory so
// a restart can reuse still-fresh resolutions.
type URICache struct {
	dir   string
	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewURICache creates the cache rooted at dir. The directory is created
// lazily on first write.
func NewURICache(dir string) *URICache {
	return &URICache{dir: dir, items: make(map[string]cacheEntry)}
}

// Get returns the cached resolution for a web URI when still fresh.
func (c *URICache) Get(webURI string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.items[webURI]
	c.mu.RUnlock()
	if ok && !entry.expired() {
		return entry.uri, true
	}

	path := c.entryPath(webURI)
	info, err := os.Stat(path)
	if err != nil || time.Since(info.ModTime()) > uriTTL {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return "", false
	}
	uri := strings.TrimSpace(string(data))
	c.mu.Lock()
	c.items[webURI] = cacheEntry{uri: uri, expires: info.ModTime().Add(uriTTL)}
	c.mu.Unlock()
	return uri, true
}

// Set records a resolution in memory and on disk.
func (c *URICache) Set(webURI, resolved string) {
	c.mu.Lock()
	c.items[webURI] = cacheEntry{uri: resolved, expires: time.Now().Add(uriTTL)}
	c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(c.entryPath(webURI), []byte(resolved), 0o644)
}

// Delete drops an entry, used when a cached URI turned out dead.
func (c *URICache) Delete(webURI string) {
	c.mu.Lock()
	delete(c.items, webURI)
	c.mu.Unlock()
	_ = os.Remove(c.entryPath(webURI))
}

// Clear empties the memory layer and removes all on-disk entries.
func (c *URICache) Clear() {
	c.mu.Lock()
	c.items = make(map[string]cacheEntry)
	c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "web_") {
			_ = os.Remove(filepath.Join(c.dir, e.Name()))
		}
	}
}

func (c *URICache) entryPath(webURI string) string {
	return filepath.Join(c.dir, "web_"+url.PathEscape(webURI))
}

// LookupFunc fetches a playable URI for a web track from a provider.
type LookupFunc func(t *models.Track) (string, error)

// Resolver returns the function the player uses to turn a web:// track
// into something the sink can load: cache first, then the lookup, with
// successful lookups written back.
func Resolver(cache *URICache, lookup LookupFunc) func(t *models.Track) (string, error) {
	return func(t *models.Track) (string, error) {
		if uri, ok := cache.Get(t.URI); ok {
			return uri, nil
		}
		if lookup == nil {
			return "", fmt.Errorf("no stream lookup available for %s", t.URI)
		}
		uri, err := lookup(t)
		if err != nil {
			return "", err
		}
		if uri == "" {
			return "", fmt.Errorf("no stream found for %s", t.URI)
		}
		cache.Set(t.URI, uri)
		return uri, nil
	}
}

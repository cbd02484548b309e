// Package cache provides an LRU parse cache with disk persistence. Entries
// are lowered translation units keyed by a content hash, so re-analyzing an
// unchanged tree skips the tree-sitter frontend entirely.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/quarle/cvet/pkg/frontend"
)

// ErrCorrupt is returned when a persisted cache cannot be decoded.
var ErrCorrupt = errors.New("cache file is corrupt")

const persistFileName = "parse.msgpack"

// Key derives the cache key for a source file from its content.
func Key(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Entry is one cached translation unit.
type Entry struct {
	Key        string
	File       *frontend.File
	CreatedAt  time.Time
	AccessedAt time.Time
}

// listItem is an item in the doubly-linked recency list.
type listItem struct {
	Entry
	prev *listItem
	next *listItem
}

// list is a doubly-linked list with the most recently used entry at the head.
type list struct {
	head *listItem
	tail *listItem
	len  int
}

func (l *list) moveToFront(item *listItem) {
	if item == l.head {
		return
	}
	if item.prev != nil {
		item.prev.next = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	}
	if item == l.tail {
		l.tail = item.prev
	}
	item.prev = nil
	item.next = l.head
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
}

func (l *list) removeBack() *listItem {
	if l.tail == nil {
		return nil
	}
	item := l.tail
	l.tail = item.prev
	if l.tail != nil {
		l.tail.next = nil
	} else {
		l.head = nil
	}
	l.len--
	return item
}

func (l *list) pushFront(item *listItem) {
	item.next = l.head
	item.prev = nil
	if l.head != nil {
		l.head.prev = item
	}
	l.head = item
	if l.tail == nil {
		l.tail = item
	}
	l.len++
}

// Options configures the parse cache.
type Options struct {
	// MaxEntries bounds the number of cached translation units.
	// 0 means unlimited.
	MaxEntries int

	// Dir is where the cache persists between runs.
	// Empty disables persistence.
	Dir string
}

// ParseCache is an in-memory LRU cache of lowered translation units with
// optional disk persistence.
type ParseCache struct {
	mu         sync.RWMutex
	items      map[string]*listItem
	lru        *list
	maxEntries int
	dir        string

	hits   int64
	misses int64
}

// New creates a parse cache with the given options.
func New(opts Options) *ParseCache {
	return &ParseCache{
		items:      make(map[string]*listItem),
		lru:        &list{},
		maxEntries: opts.MaxEntries,
		dir:        opts.Dir,
	}
}

// Get retrieves a lowered file by content key.
func (c *ParseCache) Get(key string) (*frontend.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		c.misses++
		return nil, false
	}
	c.hits++
	item.AccessedAt = time.Now()
	c.lru.moveToFront(item)
	return item.File, true
}

// Put stores a lowered file under its content key, evicting the least
// recently used entry when the cache is full.
func (c *ParseCache) Put(key string, f *frontend.File) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, exists := c.items[key]; exists {
		item.File = f
		item.AccessedAt = time.Now()
		c.lru.moveToFront(item)
		return
	}

	item := &listItem{Entry: Entry{
		Key:        key,
		File:       f,
		CreatedAt:  time.Now(),
		AccessedAt: time.Now(),
	}}
	c.items[key] = item
	c.lru.pushFront(item)

	for c.maxEntries > 0 && c.lru.len > c.maxEntries {
		evicted := c.lru.removeBack()
		if evicted == nil {
			break
		}
		delete(c.items, evicted.Key)
	}
}

// Delete removes a key from the cache.
func (c *ParseCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return
	}
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		c.lru.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		c.lru.tail = item.prev
	}
	c.lru.len--
	delete(c.items, key)
}

// Clear removes all entries.
func (c *ParseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*listItem)
	c.lru = &list{}
}

// Len returns the number of cached entries.
func (c *ParseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats reports hit and miss counts since creation.
func (c *ParseCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Save persists the cache to a writer using msgpack, least recently used
// entries first so Load rebuilds the same recency order.
func (c *ParseCache) Save(w io.Writer) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, c.lru.len)
	for item := c.lru.tail; item != nil; item = item.prev {
		entries = append(entries, item.Entry)
	}

	return msgpack.NewEncoder(w).Encode(entries)
}

// Load restores the cache from a reader, replacing current contents.
func (c *ParseCache) Load(r io.Reader) error {
	var entries []Entry
	if err := msgpack.NewDecoder(r).Decode(&entries); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*listItem)
	c.lru = &list{}
	for i := range entries {
		item := &listItem{Entry: entries[i]}
		c.items[item.Key] = item
		c.lru.pushFront(item)
	}

	return nil
}

// Persist writes the cache to its configured directory.
func (c *ParseCache) Persist() error {
	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	path := filepath.Join(c.dir, persistFileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer f.Close()

	return c.Save(f)
}

// Restore loads the cache from its configured directory. A missing cache
// file is not an error; a corrupt one is discarded.
func (c *ParseCache) Restore() error {
	if c.dir == "" {
		return nil
	}

	path := filepath.Join(c.dir, persistFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	if err := c.Load(f); err != nil {
		if errors.Is(err, ErrCorrupt) {
			c.Clear()
			return nil
		}
		return err
	}
	return nil
}

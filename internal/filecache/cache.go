// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package filecache implements the byte-budgeted, LRU-ordered cache of
// per-object page sets (internal/block.File) that sits between the
// transfer orchestrator and the directory tree. The cache tracks
// in-memory usage against a configured budget, spilling the
// least-recently-used file's pages to disk before evicting anything
// outright, and allows a bounded over-budget excursion for files that
// cannot be evicted (open for write, or mid-transfer).
package filecache

import (
	"container/list"
	"fmt"
	"sync"
	"syscall"

	"github.com/qingstor-incubating/qsfs-fuse/internal/block"
)

// entry is one node of the cache's LRU list. The most recently used entry
// sits at the front of the list, the least recently used at the back,
// mirroring the original C++ implementation's CacheList.
type entry struct {
	key  string
	file *block.File
	open int // number of outstanding handles; an open file cannot be evicted
}

// Cache is a byte-budgeted, LRU-ordered collection of cached files.
type Cache struct {
	mu sync.Mutex

	capacityBytes int64 // configured memory budget
	growFactor    float64
	diskDir       string

	sizeBytes int64 // current in-memory bytes charged against capacityBytes

	ll      *list.List               // of *entry, MRU at front
	entries map[string]*list.Element // key -> element in ll
}

// New creates an empty Cache with the given in-memory byte budget. diskDir
// is where pages are spilled when memory pressure requires reclaiming
// space without discarding data; growFactor bounds how far an unevictable
// working set may push sizeBytes past capacityBytes (1.0 disables the
// escape valve).
func New(capacityBytes int64, diskDir string, growFactor float64) *Cache {
	if growFactor < 1 {
		growFactor = 1
	}
	return &Cache{
		capacityBytes: capacityBytes,
		growFactor:    growFactor,
		diskDir:       diskDir,
		ll:            list.New(),
		entries:       make(map[string]*list.Element),
	}
}

// SizeBytes returns the cache's current in-memory byte usage.
func (c *Cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sizeBytes
}

// NumFiles returns the number of files currently tracked, open or not.
func (c *Cache) NumFiles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// hardLimit is the absolute ceiling sizeBytes may reach even when every
// tracked file is pinned open; pushing past it returns CacheFullError
// rather than growing further.
func (c *Cache) hardLimit() int64 {
	return int64(float64(c.capacityBytes) * c.growFactor)
}

// CacheFullError is returned when no space can be reclaimed for a
// requested allocation even after evicting and spilling everything
// evictable, and the configured grow factor's ceiling has been reached.
type CacheFullError struct {
	Requested int64
	Capacity  int64
}

func (e *CacheFullError) Error() string {
	return fmt.Sprintf("filecache: cannot admit %d bytes: hard limit %d reached with no evictable files", e.Requested, e.Capacity)
}

// Get returns the file cached under key, marking it most recently used.
// The boolean result is false if no file is cached under that key.
func (c *Cache) Get(key string) (*block.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).file, true
}

// GetOrCreate returns the file cached under key, creating and registering
// an empty one (marked most recently used) if none exists yet.
func (c *Cache) GetOrCreate(key string) *block.File {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*entry).file
	}

	f := block.NewFile(key)
	el := c.ll.PushFront(&entry{key: key, file: f})
	c.entries[key] = el
	return f
}

// Pin marks the file under key as open (unevictable), incrementing a
// refcount, and registers an empty file under key first if none is cached
// yet. Unpin decrements it. A file with a zero refcount is eligible
// for eviction under memory pressure.
func (c *Cache) Pin(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		el = c.ll.PushFront(&entry{key: key, file: block.NewFile(key)})
		c.entries[key] = el
	}
	el.Value.(*entry).open++
}

// Unpin decrements key's open refcount.
func (c *Cache) Unpin(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		if e.open > 0 {
			e.open--
		}
	}
}

// Reserve accounts for delta additional in-memory bytes being added to
// the file cached under key (called after a write grows that file's
// cache footprint), reclaiming space from other files via spill-to-disk
// and, failing that, eviction, in LRU order. It returns CacheFullError if
// delta cannot be admitted even after exhausting every reclaim option.
func (c *Cache) Reserve(key string, delta int64) error {
	if delta <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.sizeBytes + delta
	if target <= c.capacityBytes {
		c.sizeBytes = target
		return nil
	}

	needed := target - c.capacityBytes
	freed := c.reclaimLocked(key, needed)
	c.sizeBytes -= freed
	target = c.sizeBytes + delta

	if target > c.capacityBytes && target > c.hardLimit() {
		return &CacheFullError{Requested: delta, Capacity: c.hardLimit()}
	}

	// Within the hard limit, admit the allocation even if some of it
	// could not be reclaimed from other files (the bounded escape valve).
	c.sizeBytes = target
	return nil
}

// Release accounts for delta bytes being freed from the file cached under
// key (e.g. after a truncate).
func (c *Cache) Release(delta int64) {
	if delta <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sizeBytes -= delta
	if c.sizeBytes < 0 {
		c.sizeBytes = 0
	}
}

// reclaimLocked attempts to free at least `needed` in-memory bytes by
// spilling, and then evicting, unpinned files other than exceptKey in LRU
// order. Caller must hold c.mu. Returns the number of bytes actually
// freed, which may be less than needed if every other file is pinned.
func (c *Cache) reclaimLocked(exceptKey string, needed int64) int64 {
	var freed int64

	// First pass: spill in-memory pages to disk for unpinned files,
	// starting from the least recently used. Spilling keeps the data
	// available (on disk) rather than discarding it outright.
	for el := c.ll.Back(); el != nil && freed < needed; el = el.Prev() {
		e := el.Value.(*entry)
		if e.key == exceptKey || e.open > 0 {
			continue
		}
		n, err := e.file.SpillPages(c.diskDir, 1<<30)
		if err != nil {
			continue
		}
		freed += n
	}
	if freed >= needed {
		return freed
	}

	// Second pass: evict unpinned files entirely, starting from the
	// least recently used, for any remaining shortfall (this only
	// matters for files with zero in-memory bytes left to spill, since
	// the first pass already reclaimed every spillable byte).
	for el := c.ll.Back(); el != nil; {
		e := el.Value.(*entry)
		prev := el.Prev()
		if e.key != exceptKey && e.open == 0 {
			freed += e.file.CacheBytes()
			c.evictLocked(el)
			if freed >= needed {
				break
			}
		}
		el = prev
	}

	return freed
}

// evictLocked removes el from the cache entirely, closing its file.
// Caller must hold c.mu.
func (c *Cache) evictLocked(el *list.Element) {
	e := el.Value.(*entry)
	e.file.Close()
	delete(c.entries, e.key)
	c.ll.Remove(el)
}

// Remove evicts the file cached under key unconditionally (used on
// object deletion), regardless of its pin count.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.sizeBytes -= el.Value.(*entry).file.CacheBytes()
		if c.sizeBytes < 0 {
			c.sizeBytes = 0
		}
		c.evictLocked(el)
	}
}

// Rename moves the file cached under oldKey to newKey, preserving its LRU
// position. It is a no-op if oldKey is not present.
func (c *Cache) Rename(oldKey, newKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[oldKey]
	if !ok {
		return
	}
	if existing, ok := c.entries[newKey]; ok {
		c.evictLocked(existing)
	}
	e := el.Value.(*entry)
	e.key = newKey
	e.file.SetKey(newKey)
	delete(c.entries, oldKey)
	c.entries[newKey] = el
}

// DiskSpaceProber reports how many bytes are currently free under dir, so
// FreeDiskCache can decide how much spilled data to evict without baking
// in a fixed disk budget. StatfsProber is the production implementation;
// tests substitute a fake.
type DiskSpaceProber interface {
	FreeBytes(dir string) (int64, error)
}

// StatfsProber probes free disk space with syscall.Statfs, mirroring how
// the original implementation checked disk headroom before spilling pages
// to the cache directory.
type StatfsProber struct{}

// FreeBytes implements DiskSpaceProber.
func (StatfsProber) FreeBytes(dir string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0, fmt.Errorf("filecache: statfs %s: %w", dir, err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

// FreeDiskCache evicts unpinned files entirely, least recently used first,
// until prober reports at least needed bytes free under the cache's disk
// directory or there is nothing left to evict. This is the disk-headroom
// counterpart to Reserve's in-memory reclaim: Reserve only ever spills
// in-memory pages to disk, which does nothing to relieve pressure on the
// disk itself, so a caller about to spill or write a new disk page should
// call this first.
func (c *Cache) FreeDiskCache(prober DiskSpaceProber, needed int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	free, err := prober.FreeBytes(c.diskDir)
	if err != nil {
		return err
	}
	if free >= needed {
		return nil
	}

	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if e.open == 0 {
			c.sizeBytes -= e.file.CacheBytes()
			if c.sizeBytes < 0 {
				c.sizeBytes = 0
			}
			c.evictLocked(el)

			free, err = prober.FreeBytes(c.diskDir)
			if err != nil {
				return err
			}
			if free >= needed {
				return nil
			}
		}
		el = prev
	}

	return fmt.Errorf("filecache: cannot free %d bytes under %s: only %d free after evicting everything evictable", needed, c.diskDir, free)
}

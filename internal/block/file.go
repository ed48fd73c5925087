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

package block

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// File is the ordered, non-overlapping set of Pages cached for a single
// object key. Pages are kept sorted by offset; two pages never overlap,
// though there may be gaps between them representing byte ranges that
// have not been loaded from the backing object store.
type File struct {
	mu    sync.RWMutex
	key   string
	pages []*Page // sorted by Offset, non-overlapping

	// cacheBytes is the number of bytes this file currently contributes
	// to its owning Cache's memory budget (the sum of in-memory pages'
	// lengths). Disk-spilled pages contribute zero.
	cacheBytes int64

	// mtime is the backend mtime these cached pages are known to
	// correspond to, stamped by the caller that last filled or wrote
	// them (a download that just completed, or a local write). A caller
	// about to serve a read compares this against the owning Node's own
	// mtime to detect that the cached bytes have fallen behind a newer
	// version of the object.
	mtime time.Time
}

// NewFile creates an empty File for the given object key.
func NewFile(key string) *File {
	return &File{key: key}
}

// Key returns the object key this file caches.
func (f *File) Key() string {
	return f.key
}

// Mtime returns the backend mtime these cached pages are tagged with, or
// the zero Time if no one has stamped it yet.
func (f *File) Mtime() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.mtime
}

// SetMtime stamps the backend mtime these cached pages correspond to.
func (f *File) SetMtime(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mtime = t
}

// SetKey updates the object key this file caches, used when the
// underlying object is renamed.
func (f *File) SetKey(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.key = key
}

// CacheBytes returns the number of bytes this file is charging against the
// in-memory cache budget.
func (f *File) CacheBytes() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cacheBytes
}

// NumPages returns the number of pages currently held.
func (f *File) NumPages() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.pages)
}

// Size returns the offset of the end of the last page, i.e. the highest
// byte offset known to be cached (not necessarily the object's true size,
// since trailing ranges may be unloaded).
func (f *File) Size() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.pages) == 0 {
		return 0
	}
	return f.pages[len(f.pages)-1].Stop()
}

// lowerBound returns the index of the first page whose Stop() > offset,
// i.e. the first page that could possibly intersect [offset, ...).
// Caller must hold f.mu.
func (f *File) lowerBound(offset int64) int {
	return sort.Search(len(f.pages), func(i int) bool {
		return f.pages[i].Stop() > offset
	})
}

// HasRange reports whether every byte in [offset, offset+size) is covered
// by cached pages, with no gaps.
func (f *File) HasRange(offset, size int64) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if size <= 0 {
		return true
	}
	want := offset + size
	i := f.lowerBound(offset)
	cursor := offset
	for cursor < want {
		if i >= len(f.pages) || f.pages[i].Offset() > cursor {
			return false
		}
		cursor = f.pages[i].Stop()
		i++
	}
	return true
}

// UnloadedRanges returns the sub-ranges of [offset, offset+size) that are
// not currently covered by any cached page, in ascending order. These are
// the ranges a caller must fetch from the backing object store before it
// can satisfy a read of the full requested range.
func (f *File) UnloadedRanges(offset, size int64) []Range {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if size <= 0 {
		return nil
	}
	want := offset + size

	var gaps []Range
	i := f.lowerBound(offset)
	cursor := offset
	for cursor < want {
		if i >= len(f.pages) {
			gaps = append(gaps, Range{Offset: cursor, Len: want - cursor})
			break
		}
		pg := f.pages[i]
		if pg.Offset() > cursor {
			end := pg.Offset()
			if end > want {
				end = want
			}
			gaps = append(gaps, Range{Offset: cursor, Len: end - cursor})
		}
		cursor = pg.Stop()
		i++
	}
	return gaps
}

// ReadAt copies into buf the bytes covered by cached pages starting at
// offset, returning the number of bytes actually copied. It stops at the
// first gap it encounters; callers should consult UnloadedRanges first to
// know whether the full read will be satisfiable from cache.
func (f *File) ReadAt(buf []byte, offset int64) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(buf) == 0 {
		return 0, nil
	}

	i := f.lowerBound(offset)
	if i >= len(f.pages) || f.pages[i].Offset() > offset {
		return 0, nil
	}

	var n int
	cursor := offset
	for n < len(buf) && i < len(f.pages) {
		pg := f.pages[i]
		if pg.Offset() > cursor {
			break
		}
		posInPage := cursor - pg.Offset()
		want := len(buf) - n
		avail := int(pg.Stop() - cursor)
		if want > avail {
			want = avail
		}
		read, err := pg.ReadAt(buf[n:n+want], posInPage)
		n += read
		cursor += int64(read)
		if err != nil && read < want {
			return n, nil
		}
		if cursor >= pg.Stop() {
			i++
		}
	}
	return n, nil
}

// MemBudgetDelta is returned by mutating operations to tell the owning
// Cache how its tracked memory usage should change.
type MemBudgetDelta int64

// AddPage inserts a fully-formed page of data at offset, splitting or
// trimming any existing pages it overlaps so the non-overlap invariant is
// preserved. The later write always wins within the overlapped region.
// Returns the net change in cache-counted bytes.
func (f *File) AddPage(offset int64, data []byte, diskDir string) (MemBudgetDelta, error) {
	if len(data) == 0 {
		return 0, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	before := f.cacheBytes
	newPage := NewMemPage(offset, data)
	if err := f.insertLocked(newPage); err != nil {
		return 0, err
	}
	f.recomputeCacheBytesLocked()
	return MemBudgetDelta(f.cacheBytes - before), nil
}

// insertLocked splits/trims any pages overlapped by pg and inserts pg in
// sorted position. Caller must hold f.mu for writing.
func (f *File) insertLocked(pg *Page) error {
	start, stop := pg.Offset(), pg.Stop()

	var kept []*Page
	for _, existing := range f.pages {
		es, ee := existing.Offset(), existing.Stop()
		switch {
		case ee <= start || es >= stop:
			// No overlap; keep as-is.
			kept = append(kept, existing)
		case es < start && ee > stop:
			// pg sits entirely inside existing: split into head and tail.
			headBuf := make([]byte, start-es)
			if _, err := existing.ReadAt(headBuf, 0); err != nil {
				return fmt.Errorf("block: splitting page head: %w", err)
			}
			kept = append(kept, NewMemPage(es, headBuf))

			tailBuf := make([]byte, ee-stop)
			if _, err := existing.ReadAt(tailBuf, stop-es); err != nil {
				return fmt.Errorf("block: splitting page tail: %w", err)
			}
			kept = append(kept, NewMemPage(stop, tailBuf))
		case es < start:
			// Overlap at the tail of existing: trim it to [es, start).
			headBuf := make([]byte, start-es)
			if _, err := existing.ReadAt(headBuf, 0); err != nil {
				return fmt.Errorf("block: trimming page tail: %w", err)
			}
			kept = append(kept, NewMemPage(es, headBuf))
		case ee > stop:
			// Overlap at the head of existing: trim it to [stop, ee).
			tailBuf := make([]byte, ee-stop)
			if _, err := existing.ReadAt(tailBuf, stop-es); err != nil {
				return fmt.Errorf("block: trimming page head: %w", err)
			}
			kept = append(kept, NewMemPage(stop, tailBuf))
		default:
			// existing is fully covered by pg; drop it.
		}
	}

	kept = append(kept, pg)
	sort.Slice(kept, func(i, j int) bool { return kept[i].Offset() < kept[j].Offset() })
	f.pages = kept
	return nil
}

// recomputeCacheBytesLocked recalculates cacheBytes from scratch over the
// current page set. Caller must hold f.mu.
func (f *File) recomputeCacheBytesLocked() {
	var total int64
	for _, pg := range f.pages {
		if pg.InMemory() {
			total += pg.Len()
		}
	}
	f.cacheBytes = total
}

// Truncate shrinks or extends the file's known content to size bytes,
// dropping pages beyond size and trimming any page that straddles it.
// Extending past the current end leaves a gap (an unloaded range), not a
// zero-filled page.
func (f *File) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var kept []*Page
	for _, pg := range f.pages {
		switch {
		case pg.Stop() <= size:
			kept = append(kept, pg)
		case pg.Offset() >= size:
			if err := pg.Close(); err != nil {
				return fmt.Errorf("block: closing truncated page: %w", err)
			}
		default:
			if err := pg.Truncate(size - pg.Offset()); err != nil {
				return fmt.Errorf("block: truncating straddling page: %w", err)
			}
			kept = append(kept, pg)
		}
	}
	f.pages = kept
	f.recomputeCacheBytesLocked()
	return nil
}

// SpillPages moves up to n of this file's in-memory pages to disk under
// dir, in ascending offset order, returning the number of bytes freed
// from the memory budget. It is the mechanism by which a Cache reclaims
// memory under pressure while keeping data resident (on disk) rather than
// evicting it outright.
func (f *File) SpillPages(dir string, n int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	before := f.cacheBytes
	spilled := 0
	for _, pg := range f.pages {
		if spilled >= n {
			break
		}
		if !pg.InMemory() {
			continue
		}
		if err := pg.SpillToDisk(dir); err != nil {
			return 0, err
		}
		spilled++
	}
	f.recomputeCacheBytesLocked()
	return before - f.cacheBytes, nil
}

// Close releases every page's storage. The File must not be used after
// Close returns.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for _, pg := range f.pages {
		if err := pg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.pages = nil
	f.cacheBytes = 0
	return firstErr
}

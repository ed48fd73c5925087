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

package metadata

import (
	"container/list"
	"strings"
	"sync"
)

// TreeRemover is the narrow capability Manager needs from the directory
// tree: the ability to drop a path's node when its metadata is evicted
// for being stale or over the LRU bound. Satisfied by
// *internal/tree.DirectoryTree; declared here (rather than imported) so
// this package has no dependency on tree, breaking what would otherwise
// be a import cycle (tree already depends on metadata for FileMetaData).
type TreeRemover interface {
	Remove(path string)
}

// record is one node of the manager's own LRU list, MRU at the front. A
// plain lrucache.Cache has no hook a caller can use to veto what it is
// about to evict, so Manager keeps its own list/map pair (the same
// arrangement internal/filecache.Cache already uses) to be able to skip
// over protected entries before deciding what to drop.
type record struct {
	path string
	meta *FileMetaData
}

// Manager is the LRU-bounded table mapping a path to its FileMetaData.
// Capacity is in number of entries (an inode-table-style bound), not
// bytes, matching the original implementation's "max stat count"
// accounting. Unlike a plain LRU, admitting a new entry never evicts root,
// a directory, an open-or-dirty file, or a sibling of the path being
// admitted; if nothing else is evictable, the table grows instead of
// evicting a protected entry.
type Manager struct {
	mu       sync.Mutex
	ll       *list.List               // of *record, MRU at front
	byPath   map[string]*list.Element // path -> element in ll
	maxCount uint64
	remover  TreeRemover
}

// NewManager creates a Manager with the given entry-count capacity. When
// the table is full and a new path must be admitted, the least recently
// used evictable entry is dropped and remover.Remove is called with its
// path so the directory tree can drop the corresponding node.
func NewManager(maxCount uint64, remover TreeRemover) *Manager {
	return &Manager{
		ll:       list.New(),
		byPath:   make(map[string]*list.Element),
		maxCount: maxCount,
		remover:  remover,
	}
}

// Get returns the metadata for path, marking it most recently used.
func (m *Manager) Get(path string) (*FileMetaData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.byPath[path]
	if !ok {
		return nil, false
	}
	m.ll.MoveToFront(el)
	return el.Value.(*record).meta, true
}

// Has reports whether path currently has a cached metadata record,
// promoting it to most recently used the same as Get.
func (m *Manager) Has(path string) bool {
	_, ok := m.Get(path)
	return ok
}

// Add inserts or replaces the metadata record under its own path. If the
// table is at capacity, a least-recently-used evictable entry is dropped
// first; if nothing is evictable, the table's capacity grows instead of
// evicting a protected entry.
func (m *Manager) Add(meta *FileMetaData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(meta)
}

// AddAll inserts a batch of metadata records (e.g. from a directory
// listing), under a single lock acquisition.
func (m *Manager) AddAll(metas []*FileMetaData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, meta := range metas {
		m.addLocked(meta)
	}
}

// addLocked inserts or updates the record for meta.Path(). Caller must
// hold m.mu.
func (m *Manager) addLocked(meta *FileMetaData) {
	path := meta.Path()
	if el, ok := m.byPath[path]; ok {
		el.Value.(*record).meta = meta
		m.ll.MoveToFront(el)
		return
	}

	if uint64(m.ll.Len()) >= m.maxCount {
		if !m.evictOneLocked(path) {
			// Nothing could be freed without touching a protected entry.
			// Grow rather than evict one, mirroring the original
			// implementation's degrade policy of enlarging its stat table
			// by 20% when a free pass comes up empty.
			grown := m.maxCount + m.maxCount/5
			if grown <= m.maxCount {
				grown = m.maxCount + 1
			}
			m.maxCount = grown
		}
	}

	el := m.ll.PushFront(&record{path: path, meta: meta})
	m.byPath[path] = el
}

// evictOneLocked drops the least recently used entry that is safe to
// evict, skipping root, directories, open-or-dirty files, path itself,
// and any entry that shares path's parent directory (the same exemptions
// the original implementation's FreeNoLock applies before giving up).
// Reports whether an entry was actually evicted. Caller must hold m.mu.
func (m *Manager) evictOneLocked(path string) bool {
	targetParent := parentDir(path)

	for el := m.ll.Back(); el != nil; el = el.Prev() {
		r := el.Value.(*record)
		switch {
		case r.path == "/":
			continue
		case r.meta.IsOpen() || r.meta.NeedsUpload():
			continue
		case r.meta.Type() == Directory:
			continue
		case r.path == path:
			continue
		case parentDir(r.path) == targetParent:
			continue
		}

		m.ll.Remove(el)
		delete(m.byPath, r.path)
		if m.remover != nil {
			m.remover.Remove(r.path)
		}
		return true
	}
	return false
}

// parentDir returns the directory path containing p, with a trailing
// slash, mirroring the original implementation's GetDirName.
func parentDir(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return "/"
	}
	return trimmed[:i+1]
}

// Erase removes the metadata record for path, if any, and notifies
// remover so the corresponding directory tree node is also dropped (used
// when the backing object itself has been deleted, unconditionally,
// unlike the protected-class eviction addLocked performs under capacity
// pressure).
func (m *Manager) Erase(path string) {
	m.mu.Lock()
	if el, ok := m.byPath[path]; ok {
		m.ll.Remove(el)
		delete(m.byPath, path)
	}
	m.mu.Unlock()

	if m.remover != nil {
		m.remover.Remove(path)
	}
}

// Rename moves the metadata record at oldPath to newPath. It is a no-op
// if oldPath has no record, or if newPath already has one (the caller is
// expected to have already resolved the destination-exists case at a
// higher level, matching the original implementation's refusal to
// silently clobber).
func (m *Manager) Rename(oldPath, newPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if oldPath == newPath {
		return
	}
	if _, ok := m.byPath[newPath]; ok {
		return
	}
	el, ok := m.byPath[oldPath]
	if !ok {
		return
	}
	r := el.Value.(*record)
	r.path = newPath
	r.meta.SetPath(newPath)
	delete(m.byPath, oldPath)
	m.byPath[newPath] = el
	m.ll.MoveToFront(el)
}

// Clear drops every cached metadata record.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ll = list.New()
	m.byPath = make(map[string]*list.Element)
}

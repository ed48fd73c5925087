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

package tree

import (
	"path"
	"strings"
	"sync"

	"github.com/qingstor-incubating/qsfs-fuse/internal/metadata"
)

// DirectoryTree is the lazily materialized namespace over a bucket's
// objects: nodes are added as paths are discovered (via LookUpInode,
// ReadDir, or a directory listing), not eagerly for the whole bucket.
// Growing the tree with a node whose parent has not yet been grown
// leaves that node temporarily parentless; it is reconnected the moment
// its parent is grown, mirroring the original implementation's
// parent-to-children multimap of not-yet-linked nodes.
type DirectoryTree struct {
	mu sync.Mutex

	root *Node
	byPath map[string]*Node

	// orphans holds children already grown whose parent directory has
	// not yet been grown into the tree, keyed by the parent's path.
	orphans map[string][]*Node
}

// New creates a DirectoryTree rooted at "/" with the given metadata.
func New(rootMeta *metadata.FileMetaData) *DirectoryTree {
	root := newNode(rootMeta)
	return &DirectoryTree{
		root:    root,
		byPath:  map[string]*Node{rootMeta.Path(): root},
		orphans: make(map[string][]*Node),
	}
}

// Root returns the tree's root node.
func (t *DirectoryTree) Root() *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

// Find returns the node at filePath, if the tree has grown one yet.
func (t *DirectoryTree) Find(filePath string) (*Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byPath[filePath]
	return n, ok
}

// Has reports whether the tree currently has a node for filePath.
func (t *DirectoryTree) Has(filePath string) bool {
	_, ok := t.Find(filePath)
	return ok
}

// FindChildren returns the currently known children of dirName
// (non-recursive), or nil if dirName has not been grown.
func (t *DirectoryTree) FindChildren(dirName string) []*Node {
	t.mu.Lock()
	n, ok := t.byPath[dirName]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return n.Children()
}

// Grow adds meta's node to the tree, updating it in place if a node
// already exists at that path, and reconnects it to its parent (and to
// any of its own already-grown children still recorded as orphans).
// Returns the grown (or updated) node.
func (t *DirectoryTree) Grow(meta *metadata.FileMetaData) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.growLocked(meta)
}

// GrowAll grows every entry in metas, e.g. the result page of a listing
// call. Returns the grown nodes in the same order.
func (t *DirectoryTree) GrowAll(metas []*metadata.FileMetaData) []*Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Node, len(metas))
	for i, meta := range metas {
		out[i] = t.growLocked(meta)
	}
	return out
}

func (t *DirectoryTree) growLocked(meta *metadata.FileMetaData) *Node {
	p := meta.Path()

	if existing, ok := t.byPath[p]; ok {
		existing.meta = meta
		return existing
	}

	n := newNode(meta)
	t.byPath[p] = n

	parentPath := parentOf(p)
	if parent, ok := t.byPath[parentPath]; ok {
		parent.addChild(baseOf(p), n)
		n.setParent(parent)
	} else if parentPath != "" {
		t.orphans[parentPath] = append(t.orphans[parentPath], n)
	}

	t.reconnectOrphansLocked(n)
	return n
}

// reconnectOrphansLocked attaches any children waiting on n (just grown)
// as their parent, linking them into n's children map. Caller must hold
// t.mu.
func (t *DirectoryTree) reconnectOrphansLocked(n *Node) {
	if !n.IsDir() {
		return
	}
	waiting, ok := t.orphans[n.Path()]
	if !ok {
		return
	}
	delete(t.orphans, n.Path())
	for _, child := range waiting {
		n.addChild(baseOf(child.Path()), child)
		child.setParent(n)
	}
}

// UpdateDirectory replaces the full, authoritative child set of dirPath
// with childrenMetas (the result of a complete directory listing),
// growing any new children and dropping any existing children not
// present in the new set. Returns the directory's node, or nil if
// dirPath has not been grown.
func (t *DirectoryTree) UpdateDirectory(dirPath string, childrenMetas []*metadata.FileMetaData) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	dir, ok := t.byPath[dirPath]
	if !ok {
		return nil
	}

	seen := make(map[string]bool, len(childrenMetas))
	for _, meta := range childrenMetas {
		child := t.growLocked(meta)
		seen[baseOf(meta.Path())] = true
		_ = child
	}

	for _, existing := range dir.Children() {
		name := baseOf(existing.Path())
		if !seen[name] {
			t.removeLocked(existing.Path())
		}
	}

	dir.mu.Lock()
	dir.childrenComplete = true
	dir.mu.Unlock()

	return dir
}

// Rename moves the node (and, if it is a directory, its whole subtree)
// from oldPath to newPath. Returns the renamed node, or nil if oldPath
// has no node.
func (t *DirectoryTree) Rename(oldPath, newPath string) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.byPath[oldPath]
	if !ok {
		return nil
	}

	oldParentPath := parentOf(oldPath)
	newParentPath := parentOf(newPath)

	if oldParent, ok := t.byPath[oldParentPath]; ok {
		oldParent.removeChild(baseOf(oldPath))
	}

	t.renameSubtreeLocked(n, oldPath, newPath)

	if newParent, ok := t.byPath[newParentPath]; ok {
		newParent.addChild(baseOf(newPath), n)
		n.setParent(newParent)
	} else {
		n.setParent(nil)
		t.orphans[newParentPath] = append(t.orphans[newParentPath], n)
	}

	return n
}

// renameSubtreeLocked rewrites the path of n and, recursively, every
// descendant, re-keying t.byPath as it goes. Caller must hold t.mu.
func (t *DirectoryTree) renameSubtreeLocked(n *Node, oldPath, newPath string) {
	delete(t.byPath, oldPath)
	n.meta.SetPath(newPath)
	t.byPath[newPath] = n

	if !n.IsDir() {
		return
	}
	for _, child := range n.Children() {
		childOld := child.Path()
		childNew := newPath + strings.TrimPrefix(childOld, oldPath)
		t.renameSubtreeLocked(child, childOld, childNew)
	}
}

// Remove removes the node at path and, recursively, its entire subtree.
func (t *DirectoryTree) Remove(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(path)
}

func (t *DirectoryTree) removeLocked(p string) {
	n, ok := t.byPath[p]
	if !ok {
		return
	}

	if n.IsDir() {
		for _, child := range n.Children() {
			t.removeLocked(child.Path())
		}
	}

	if parent := n.Parent(); parent != nil {
		parent.removeChild(baseOf(p))
	}
	delete(t.byPath, p)
	delete(t.orphans, p)
}

// parentOf returns the directory path containing p ("" for the root).
func parentOf(p string) string {
	if p == "/" {
		return ""
	}
	trimmed := strings.TrimSuffix(p, "/")
	dir := path.Dir(trimmed)
	if dir == "." || dir == "/" {
		return "/"
	}
	return dir + "/"
}

// baseOf returns the final path component of p.
func baseOf(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	return path.Base(trimmed)
}

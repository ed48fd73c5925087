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

// Package tree implements the lazily materialized, LRU-capped namespace:
// a directory tree of Nodes built up incrementally as paths are looked
// up, rather than eagerly enumerating the whole bucket.
package tree

import (
	"sync"

	"github.com/qingstor-incubating/qsfs-fuse/internal/metadata"
)

// Node is one entry in the directory tree: a file, directory, or
// symlink, with a reference to its parent and (for directories) its
// children. A Node whose parent has not yet been grown into the tree is
// parentless until DirectoryTree.reconnectOrphansLocked links it up.
type Node struct {
	mu sync.Mutex

	meta   *metadata.FileMetaData
	parent *Node

	// children is non-nil only for directories; keyed by base name.
	children map[string]*Node

	symlinkTarget string

	// childrenComplete is set once a directory's children are known to
	// be the full, authoritative listing (after UpdateDirectory), as
	// opposed to a partial set built up from individual lookups.
	childrenComplete bool
}

// newNode creates a node for meta with no parent or children attached
// yet.
func newNode(meta *metadata.FileMetaData) *Node {
	n := &Node{meta: meta}
	if meta.Type() == metadata.Directory {
		n.children = make(map[string]*Node)
	}
	return n
}

// Path returns the node's absolute path.
func (n *Node) Path() string {
	return n.meta.Path()
}

// MetaData returns the node's backing metadata record.
func (n *Node) MetaData() *metadata.FileMetaData {
	return n.meta
}

// Parent returns the node's parent, or nil if it is the root or has not
// yet been reconnected to its parent.
func (n *Node) Parent() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parent
}

func (n *Node) setParent(p *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.parent = p
}

// IsDir reports whether this node represents a directory.
func (n *Node) IsDir() bool {
	return n.meta.Type() == metadata.Directory
}

// Children returns the currently known children of a directory node, in
// no particular order. It does not indicate whether this set is known to
// be complete; callers needing that should track it via the directory
// tree's own listing-freshness bookkeeping.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]*Node, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	return out
}

// ChildrenComplete reports whether Children() is known to be the full
// listing of this directory, rather than a partial set assembled from
// individual LookUpInode calls.
func (n *Node) ChildrenComplete() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.childrenComplete
}

func (n *Node) childNamed(name string) (*Node, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.children[name]
	return c, ok
}

func (n *Node) addChild(name string, child *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	n.children[name] = child
}

func (n *Node) removeChild(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.children, name)
}

// SymlinkTarget returns the path this symlink node points to.
func (n *Node) SymlinkTarget() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.symlinkTarget
}

// SetSymlinkTarget sets the path this symlink node points to.
func (n *Node) SetSymlinkTarget(target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.symlinkTarget = target
}

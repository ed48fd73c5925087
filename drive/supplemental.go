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

package drive

import (
	"bytes"
	"context"
	"strings"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/qingstor-incubating/qsfs-fuse/internal/coreerr"
	"github.com/qingstor-incubating/qsfs-fuse/internal/metadata"
	"github.com/qingstor-incubating/qsfs-fuse/internal/mimetypes"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient"
	"github.com/qingstor-incubating/qsfs-fuse/internal/perms"
	"github.com/qingstor-incubating/qsfs-fuse/internal/tree"
)

// Rename and StatFS have no corresponding fuseops.*Op: the pinned fuse
// binding this mount is built against never grew kernel-dispatched ops
// for either (posix rename and statfs support came later upstream).
// They're exposed directly on Drive instead, reached from whatever the
// mount command wires up for them, and exercised here by their own
// tests.

// parentPath returns the tree path of p's containing directory, which
// always ends in "/".
func parentPath(p string) string {
	trimmed := strings.TrimSuffix(p, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "/"
	}
	return trimmed[:idx+1]
}

// fuseHeaderOf builds the minimal fuseops.OpHeader the permission gates
// need from a caller identity not sourced from a kernel op (Rename has
// none to read from; see the package comment above).
func fuseHeaderOf(uid, gid uint32) fuseops.OpHeader {
	return fuseops.OpHeader{Uid: uid, Gid: gid}
}

// subtreePaths returns the path of n and, recursively, every descendant,
// in pre-order.
func subtreePaths(n *tree.Node) []string {
	paths := []string{n.Path()}
	for _, child := range n.Children() {
		paths = append(paths, subtreePaths(child)...)
	}
	return paths
}

// Rename moves the object (or, for a directory, every object in the
// subtree) at oldPath to newPath. Each object is moved with a
// server-side copy followed by a delete of the original; there is no
// cross-object transaction backing this, so a failure partway through
// leaves some children moved and others not, surfaced as the first
// error encountered with no rollback of what already succeeded.
//
// callerUID/callerGID gate the move per spec §4.8: write+execute on
// both the source and destination parent directories, and (if the
// source parent has its sticky bit set) ownership of the source entry,
// the directory, or root.
func (d *Drive) Rename(ctx context.Context, oldPath, newPath string, callerUID, callerGID uint32) error {
	n, ok := d.ctx.Tree.Find(oldPath)
	if !ok {
		return coreerr.New(coreerr.InvalidArgument, oldPath, "rename: source does not exist")
	}
	if _, exists := d.ctx.Tree.Find(newPath); exists {
		return coreerr.New(coreerr.InvalidArgument, newPath, "rename: destination already exists")
	}

	header := fuseHeaderOf(callerUID, callerGID)
	if srcParent := n.Parent(); srcParent != nil {
		if perr := d.checkAccess(srcParent.MetaData(), header, perms.Write|perms.Execute); perr != nil {
			return perr
		}
		if perr := d.checkSticky(srcParent.MetaData(), n.MetaData(), header); perr != nil {
			return perr
		}
	}
	if dstParent, ok := d.ctx.Tree.Find(parentPath(newPath)); ok {
		if perr := d.checkAccess(dstParent.MetaData(), header, perms.Write|perms.Execute); perr != nil {
			return perr
		}
	}

	oldPaths := subtreePaths(n)
	newPaths := make([]string, len(oldPaths))
	for i, p := range oldPaths {
		newPaths[i] = newPath + strings.TrimPrefix(p, oldPath)
	}

	for i, oldP := range oldPaths {
		newP := newPaths[i]
		oldKey, newKey := objectKey(oldP), objectKey(newP)

		opts := objectclient.PutOptions{CopySource: oldKey}
		if pn, ok := d.ctx.Tree.Find(oldP); ok && pn.MetaData().Type() == metadata.SymLink {
			opts.ContentType = mimetypes.SymlinkContentType
		}
		if _, err := d.ctx.Client.PutObject(ctx, newKey, 0, bytes.NewReader(nil), opts); err != nil {
			return err
		}
		if err := d.ctx.Client.DeleteObject(ctx, oldKey); err != nil {
			return err
		}
		d.ctx.Cache.Rename(oldKey, newKey)
	}

	d.ctx.Tree.Rename(oldPath, newPath)
	for i, oldP := range oldPaths {
		d.ctx.Metadata.Rename(oldP, newPaths[i])
	}

	d.invalidateListingCache(parentPath(oldPath))
	d.invalidateListingCache(parentPath(newPath))
	return nil
}

// StatFS reports the synthetic capacity/usage figures the mounted
// filesystem presents for statfs(2), backed entirely by the object
// store's own synthetic report: this filesystem has no fixed-size
// backing device, so the numbers are whatever the store chooses to
// report rather than anything drive itself tracks.
func (d *Drive) StatFS(ctx context.Context) (objectclient.StatVFS, error) {
	return d.ctx.Client.StatVFS(ctx)
}

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
	"os"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"

	"github.com/qingstor-incubating/qsfs-fuse/common"
	"github.com/qingstor-incubating/qsfs-fuse/internal/mimetypes"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient"
	"github.com/qingstor-incubating/qsfs-fuse/internal/perms"
)

// Init is a no-op; nothing about the mount needs negotiating with the
// kernel beyond what fuse.Mount already arranged.
func (d *Drive) Init(op *fuseops.InitOp) (err error) {
	return nil
}

// LookUpInode resolves op.Name inside the directory op.Parent, fetching
// from the object store on a cache miss or stale entry.
func (d *Drive) LookUpInode(op *fuseops.LookUpInodeOp) (err error) {
	ctx, start, span := d.beginOp(op.Context(), common.OpLookUpInode)
	defer d.endOp(ctx, span, common.OpLookUpInode, start, &err)

	parent, ok := d.nodeByID(op.Parent)
	if !ok {
		return fuse.ENOENT
	}

	n, cerr := d.resolveChild(op.Context(), parent.path, op.Name)
	if cerr != nil {
		return errnoFor(cerr)
	}

	op.Entry = d.entryFor(n.Path(), n.MetaData())
	return nil
}

// GetInodeAttributes refreshes attributes for an inode whose kernel-side
// cache expired.
func (d *Drive) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) (err error) {
	ctx, start, span := d.beginOp(op.Context(), common.OpGetInodeAttributes)
	defer d.endOp(ctx, span, common.OpGetInodeAttributes, start, &err)

	n, ok := d.nodeByID(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	treeNode, rerr := d.refreshIfStale(op.Context(), n.path)
	if rerr != nil {
		return errnoFor(rerr)
	}

	op.Attributes = treeNode.MetaData().Attributes()
	op.AttributesExpiration = d.attrExpiration()
	return nil
}

// SetInodeAttributes handles truncate (Size), chmod (Mode), and utimens
// (Atime/Mtime). Per §4.8 item 4, only the owner or root may change mode
// or times; a truncate additionally requires write access to the file
// itself (§4.8 item 2).
func (d *Drive) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) (err error) {
	ctx, start, span := d.beginOp(op.Context(), common.OpSetInodeAttributes)
	defer d.endOp(ctx, span, common.OpSetInodeAttributes, start, &err)

	n, ok := d.nodeByID(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	treeNode, ok := d.ctx.Tree.Find(n.path)
	if !ok {
		return fuse.ENOENT
	}
	meta := treeNode.MetaData()

	if op.Mode != nil || op.Atime != nil || op.Mtime != nil {
		if perr := d.checkOwner(meta, op.Header); perr != nil {
			return errnoFor(perr)
		}
	}

	if op.Size != nil {
		if treeNode.IsDir() {
			return fuse.ENOSYS
		}
		if perr := d.checkAccess(meta, op.Header, perms.Write); perr != nil {
			return errnoFor(perr)
		}
		file := d.ctx.Cache.GetOrCreate(objectKey(n.path))
		if terr := file.Truncate(int64(*op.Size)); terr != nil {
			return fuse.EIO
		}
		meta.SetSize(int64(*op.Size))
		meta.SetNeedsUpload(true)
	}

	if op.Mode != nil {
		meta.SetMode(op.Mode.Perm())
	}
	if op.Mtime != nil {
		meta.SetMTime(*op.Mtime)
	}
	if op.Atime != nil {
		meta.Touch(*op.Atime)
	}

	op.Attributes = meta.Attributes()
	op.AttributesExpiration = d.attrExpiration()
	return nil
}

// ForgetInode drops the kernel's lookup count for op.Inode, evicting the
// node from the inode table once it reaches zero. The tree and metadata
// manager entries are left alone: they are governed by their own LRU
// eviction, independent of what the kernel still has cached.
func (d *Drive) ForgetInode(op *fuseops.ForgetInodeOp) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forgetLocked(op.Inode, op.N)
	return nil
}

// MkDir creates a directory marker object as a child of op.Parent.
func (d *Drive) MkDir(op *fuseops.MkDirOp) (err error) {
	ctx, start, span := d.beginOp(op.Context(), common.OpMkDir)
	defer d.endOp(ctx, span, common.OpMkDir, start, &err)

	parent, ok := d.nodeByID(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	parentNode, ok := d.ctx.Tree.Find(parent.path)
	if !ok {
		return fuse.ENOENT
	}
	if perr := d.checkAccess(parentNode.MetaData(), op.Header, perms.Write|perms.Execute); perr != nil {
		return errnoFor(perr)
	}

	childP := childPath(parent.path, op.Name, true)
	if _, ok := d.ctx.Tree.Find(childP); ok {
		return fuse.EEXIST
	}

	uid, gid := d.resolvedOwner()
	dirMode := os.FileMode(d.ctx.Config.FileSystem.DirMode)
	info, cerr := d.ctx.Client.PutObject(op.Context(), objectKey(childP), 0, bytes.NewReader(nil), objectclient.PutOptions{
		ContentType: mimetypes.DirectoryContentType,
	})
	if cerr != nil {
		return errnoFor(cerr)
	}

	meta := objectclient.ToFileMetaData(withKey(info, childP), uid, gid, os.FileMode(d.ctx.Config.FileSystem.FileMode), dirMode)
	d.ctx.Tree.Grow(meta)
	d.ctx.Metadata.Add(meta)
	d.invalidateListingCache(parent.path)

	op.Entry = d.entryFor(childP, meta)
	return nil
}

// CreateFile creates and opens an empty file as a child of op.Parent.
func (d *Drive) CreateFile(op *fuseops.CreateFileOp) (err error) {
	ctx, start, span := d.beginOp(op.Context(), common.OpCreateFile)
	defer d.endOp(ctx, span, common.OpCreateFile, start, &err)

	parent, ok := d.nodeByID(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	parentNode, ok := d.ctx.Tree.Find(parent.path)
	if !ok {
		return fuse.ENOENT
	}
	if perr := d.checkAccess(parentNode.MetaData(), op.Header, perms.Write|perms.Execute); perr != nil {
		return errnoFor(perr)
	}

	childP := childPath(parent.path, op.Name, false)
	if _, ok := d.ctx.Tree.Find(childP); ok {
		return fuse.EEXIST
	}

	uid, gid := d.resolvedOwner()
	contentType := d.ctx.MimeTypes.ForFile(op.Name)
	info, cerr := d.ctx.Client.PutObject(op.Context(), objectKey(childP), 0, bytes.NewReader(nil), objectclient.PutOptions{
		ContentType: contentType,
	})
	if cerr != nil {
		return errnoFor(cerr)
	}

	meta := objectclient.ToFileMetaData(withKey(info, childP), uid, gid, os.FileMode(d.ctx.Config.FileSystem.FileMode), os.FileMode(d.ctx.Config.FileSystem.DirMode))
	d.ctx.Tree.Grow(meta)
	d.ctx.Metadata.Add(meta)
	d.invalidateListingCache(parent.path)

	op.Entry = d.entryFor(childP, meta)

	d.mu.Lock()
	handleID := d.nextHandleID
	d.nextHandleID++
	d.fileHandles[handleID] = &fileHandle{path: childP}
	d.mu.Unlock()
	d.ctx.Cache.Pin(objectKey(childP))
	meta.SetOpen(true)

	op.Handle = handleID
	return nil
}

// CreateSymlink creates a symlink object whose body is its own target,
// with content type application/symlink marking it as such (see
// internal/mimetypes.SymlinkContentType).
func (d *Drive) CreateSymlink(op *fuseops.CreateSymlinkOp) (err error) {
	ctx, start, span := d.beginOp(op.Context(), common.OpCreateSymlink)
	defer d.endOp(ctx, span, common.OpCreateSymlink, start, &err)

	parent, ok := d.nodeByID(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	parentNode, ok := d.ctx.Tree.Find(parent.path)
	if !ok {
		return fuse.ENOENT
	}
	if perr := d.checkAccess(parentNode.MetaData(), op.Header, perms.Write|perms.Execute); perr != nil {
		return errnoFor(perr)
	}

	childP := childPath(parent.path, op.Name, false)
	if _, ok := d.ctx.Tree.Find(childP); ok {
		return fuse.EEXIST
	}

	uid, gid := d.resolvedOwner()
	body := []byte(op.Target)
	info, cerr := d.ctx.Client.PutObject(op.Context(), objectKey(childP), int64(len(body)), bytes.NewReader(body), objectclient.PutOptions{
		ContentType: mimetypes.SymlinkContentType,
	})
	if cerr != nil {
		return errnoFor(cerr)
	}

	meta := objectclient.ToFileMetaData(withKey(info, childP), uid, gid, os.FileMode(d.ctx.Config.FileSystem.FileMode), os.FileMode(d.ctx.Config.FileSystem.DirMode))
	n := d.ctx.Tree.Grow(meta)
	n.SetSymlinkTarget(op.Target)
	d.ctx.Metadata.Add(meta)
	d.invalidateListingCache(parent.path)

	op.Entry = d.entryFor(childP, meta)
	return nil
}

// RmDir removes an empty directory. Non-empty directories are rejected
// with ENOTEMPTY, same as the teacher.
func (d *Drive) RmDir(op *fuseops.RmDirOp) (err error) {
	ctx, start, span := d.beginOp(op.Context(), common.OpRmDir)
	defer d.endOp(ctx, span, common.OpRmDir, start, &err)

	parent, ok := d.nodeByID(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	parentNode, ok := d.ctx.Tree.Find(parent.path)
	if !ok {
		return fuse.ENOENT
	}
	if perr := d.checkAccess(parentNode.MetaData(), op.Header, perms.Write|perms.Execute); perr != nil {
		return errnoFor(perr)
	}

	childP := childPath(parent.path, op.Name, true)
	n, cerr := d.resolveChild(op.Context(), parent.path, op.Name)
	if cerr != nil {
		return errnoFor(cerr)
	}
	if !n.IsDir() {
		return fuse.ENOTDIR
	}
	if children := d.ctx.Tree.FindChildren(childP); len(children) != 0 {
		return fuse.ENOTEMPTY
	}
	if perr := d.checkSticky(parentNode.MetaData(), n.MetaData(), op.Header); perr != nil {
		return errnoFor(perr)
	}

	if derr := d.ctx.Client.DeleteObject(op.Context(), objectKey(childP)); derr != nil {
		return errnoFor(derr)
	}
	d.ctx.Metadata.Erase(childP)
	d.invalidateListingCache(parent.path)
	return nil
}

// Unlink removes a file's backing object.
func (d *Drive) Unlink(op *fuseops.UnlinkOp) (err error) {
	ctx, start, span := d.beginOp(op.Context(), common.OpUnlink)
	defer d.endOp(ctx, span, common.OpUnlink, start, &err)

	parent, ok := d.nodeByID(op.Parent)
	if !ok {
		return fuse.ENOENT
	}
	parentNode, ok := d.ctx.Tree.Find(parent.path)
	if !ok {
		return fuse.ENOENT
	}
	if perr := d.checkAccess(parentNode.MetaData(), op.Header, perms.Write|perms.Execute); perr != nil {
		return errnoFor(perr)
	}

	childP := childPath(parent.path, op.Name, false)
	n, cerr := d.resolveChild(op.Context(), parent.path, op.Name)
	if cerr != nil {
		return errnoFor(cerr)
	}
	if perr := d.checkSticky(parentNode.MetaData(), n.MetaData(), op.Header); perr != nil {
		return errnoFor(perr)
	}

	if derr := d.ctx.Client.DeleteObject(op.Context(), objectKey(childP)); derr != nil {
		return errnoFor(derr)
	}
	d.ctx.Metadata.Erase(childP)
	d.ctx.Cache.Remove(objectKey(childP))
	d.invalidateListingCache(parent.path)
	return nil
}

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
	"context"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"

	"github.com/qingstor-incubating/qsfs-fuse/common"
	"github.com/qingstor-incubating/qsfs-fuse/internal/block"
	"github.com/qingstor-incubating/qsfs-fuse/internal/coreerr"
	"github.com/qingstor-incubating/qsfs-fuse/internal/logger"
	"github.com/qingstor-incubating/qsfs-fuse/internal/metadata"
	"github.com/qingstor-incubating/qsfs-fuse/internal/perms"
)

// accessMaskForFlags translates the low two bits of an open(2) flags
// value (O_RDONLY/O_WRONLY/O_RDWR) into the perms.AccessMask OpenFile
// must hold against the target file, per §4.8 item 2.
func accessMaskForFlags(flags uint32) perms.AccessMask {
	const accMode = 0x3
	switch flags & accMode {
	case 1: // O_WRONLY
		return perms.Write
	case 2: // O_RDWR
		return perms.Read | perms.Write
	default: // O_RDONLY
		return perms.Read
	}
}

// fileHandle is the per-open-file bookkeeping record a Drive keeps
// between OpenFile/CreateFile and ReleaseFileHandle. The bytes
// themselves, and whether they are dirty, live in the cache and the
// metadata manager, keyed by path; the handle only remembers which path
// it was opened against.
type fileHandle struct {
	path string

	// reads is non-nil only when debug.visualize-read-patterns is set,
	// so a handle that never enables it pays no bookkeeping cost.
	reads *common.ReadPatternVisualizer
}

// OpenFile sanity-checks that the inode is a regular file and pins its
// cache entry for the lifetime of the handle, the same pin/unpin
// discipline CreateFile already establishes for newly created files.
func (d *Drive) OpenFile(op *fuseops.OpenFileOp) (err error) {
	n, ok := d.nodeByID(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	treeNode, ok := d.ctx.Tree.Find(n.path)
	if !ok || treeNode.IsDir() {
		return fuse.EINVAL
	}
	if perr := d.checkAccess(treeNode.MetaData(), op.Header, accessMaskForFlags(uint32(op.Flags))); perr != nil {
		return errnoFor(perr)
	}

	fh := &fileHandle{path: n.path}
	if d.ctx.Config.Debug.VisualizeReadPatterns {
		fh.reads = common.NewReadPatternVisualizerWithReader(n.path)
	}

	d.mu.Lock()
	handleID := d.nextHandleID
	d.nextHandleID++
	d.fileHandles[handleID] = fh
	d.mu.Unlock()
	d.ctx.Cache.Pin(objectKey(n.path))

	op.Handle = handleID
	return nil
}

func (d *Drive) fileHandleByID(id fuseops.HandleID) (*fileHandle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fh, ok := d.fileHandles[id]
	return fh, ok
}

// ensureRange fills every gap in [offset, offset+size) of file from the
// object store via the transfer manager before a read is served from
// cache, one Download per contiguous missing run.
func (d *Drive) ensureRange(ctx context.Context, path string, file *block.File, offset, size int64) error {
	for _, r := range file.UnloadedRanges(offset, size) {
		if d.ctx.DiskProber != nil {
			if derr := d.ctx.Cache.FreeDiskCache(d.ctx.DiskProber, r.Len); derr != nil {
				return derr
			}
		}
		h := d.ctx.Transfer.Download(ctx, path, r.Offset, r.Len, file)
		h.Wait()
		if err := h.Err(); err != nil {
			return err
		}
	}
	return nil
}

// ensureFreshFile returns the cache file for key, discarding and
// recreating it first if the pages already cached were tagged with an
// mtime older than meta's current one: the backing object changed after
// those pages were filled, most often because a revalidating HEAD (see
// resolveChild) swapped in fresh metadata behind an already-cached file.
// A file carrying unsynced local writes can't be silently discarded this
// way, so that case is reported as an error instead of losing data.
func (d *Drive) ensureFreshFile(key string, meta *metadata.FileMetaData) (*block.File, error) {
	file := d.ctx.Cache.GetOrCreate(key)
	if file.NumPages() == 0 {
		return file, nil
	}

	cached := file.Mtime()
	if cached.IsZero() || cached.Equal(meta.MTime()) {
		return file, nil
	}

	if meta.NeedsUpload() {
		return nil, coreerr.New(coreerr.StaleLocalState, meta.Path(), "cached pages are dirty and predate the object's current mtime")
	}

	d.ctx.Cache.Remove(key)
	return d.ctx.Cache.GetOrCreate(key), nil
}

// applyBudgetDelta charges or credits the cache's memory budget for key
// following a mutation that grew or shrank a file's cached footprint.
func (d *Drive) applyBudgetDelta(key string, delta block.MemBudgetDelta) error {
	if delta > 0 {
		return d.ctx.Cache.Reserve(key, int64(delta))
	}
	if delta < 0 {
		d.ctx.Cache.Release(int64(-delta))
	}
	return nil
}

// ReadFile serves a read from the block cache, downloading any bytes in
// the requested range that are not yet cached.
func (d *Drive) ReadFile(op *fuseops.ReadFileOp) (err error) {
	ctx, start, span := d.beginOp(op.Context(), common.OpReadFile)
	defer d.endOp(ctx, span, common.OpReadFile, start, &err)

	fh, ok := d.fileHandleByID(op.Handle)
	if !ok {
		return fuse.EIO
	}
	key := objectKey(fh.path)

	treeNode, ok := d.ctx.Tree.Find(fh.path)
	if !ok {
		return fuse.ENOENT
	}
	meta := treeNode.MetaData()
	size := meta.Size()

	file, ferr := d.ensureFreshFile(key, meta)
	if ferr != nil {
		return errnoFor(ferr)
	}

	readSize := int64(op.Size)
	if op.Offset >= size {
		op.Data = nil
		return nil
	}
	if op.Offset+readSize > size {
		readSize = size - op.Offset
	}

	if derr := d.ensureRange(op.Context(), fh.path, file, op.Offset, readSize); derr != nil {
		return errnoFor(derr)
	}
	if file.Mtime().IsZero() {
		file.SetMtime(meta.MTime())
	}

	buf := make([]byte, readSize)
	n, rerr := file.ReadAt(buf, op.Offset)
	if rerr != nil {
		return fuse.EIO
	}
	op.Data = buf[:n]

	if fh.reads != nil && n > 0 {
		fh.reads.AcceptRange(op.Offset, op.Offset+int64(n))
	}
	return nil
}

// ReadSymlink returns a symlink inode's target.
func (d *Drive) ReadSymlink(op *fuseops.ReadSymlinkOp) (err error) {
	n, ok := d.nodeByID(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	treeNode, ok := d.ctx.Tree.Find(n.path)
	if !ok {
		return fuse.ENOENT
	}

	op.Target = treeNode.SymlinkTarget()
	return nil
}

// WriteFile buffers a write into the block cache and marks the file
// dirty; the bytes are not pushed to the object store until SyncFile or
// FlushFile.
func (d *Drive) WriteFile(op *fuseops.WriteFileOp) (err error) {
	ctx, start, span := d.beginOp(op.Context(), common.OpWriteFile)
	defer d.endOp(ctx, span, common.OpWriteFile, start, &err)

	fh, ok := d.fileHandleByID(op.Handle)
	if !ok {
		return fuse.EIO
	}
	key := objectKey(fh.path)
	file := d.ctx.Cache.GetOrCreate(key)

	delta, aerr := file.AddPage(op.Offset, op.Data, string(d.ctx.Config.FileCache.CacheDir))
	if aerr != nil {
		return fuse.EIO
	}
	if berr := d.applyBudgetDelta(key, delta); berr != nil {
		return errnoFor(berr)
	}

	treeNode, ok := d.ctx.Tree.Find(fh.path)
	if !ok {
		return fuse.ENOENT
	}
	meta := treeNode.MetaData()
	if end := op.Offset + int64(len(op.Data)); end > meta.Size() {
		meta.SetSize(end)
	}
	now := d.ctx.Clock.Now()
	meta.SetNeedsUpload(true)
	meta.Touch(now)
	meta.SetMTime(now)
	file.SetMtime(now)

	return nil
}

// syncFile pushes a dirty file's current cached contents to the object
// store, the shared body of both SyncFile and FlushFile, mirroring the
// teacher's fs.syncFile helper of the same name.
func (d *Drive) syncFile(ctx context.Context, path string) error {
	treeNode, ok := d.ctx.Tree.Find(path)
	if !ok {
		return nil
	}
	meta := treeNode.MetaData()
	if !meta.NeedsUpload() {
		return nil
	}

	key := objectKey(path)
	file := d.ctx.Cache.GetOrCreate(key)

	h := d.ctx.Transfer.Upload(ctx, path, meta.Size(), meta.MimeType(), file)
	h.Wait()
	if err := h.Err(); err != nil {
		return err
	}

	meta.SetNeedsUpload(false)
	return nil
}

// SyncFile pushes a dirty file's contents to the object store on fsync.
func (d *Drive) SyncFile(op *fuseops.SyncFileOp) (err error) {
	ctx, start, span := d.beginOp(op.Context(), common.OpSyncFile)
	defer d.endOp(ctx, span, common.OpSyncFile, start, &err)

	fh, ok := d.fileHandleByID(op.Handle)
	if !ok {
		return fuse.EIO
	}
	if serr := d.syncFile(op.Context(), fh.path); serr != nil {
		return errnoFor(serr)
	}
	return nil
}

// FlushFile pushes a dirty file's contents to the object store on close,
// the same upload the teacher's FlushFile performs for the same reason:
// writes may arrive right up until the final close(2).
func (d *Drive) FlushFile(op *fuseops.FlushFileOp) (err error) {
	ctx, start, span := d.beginOp(op.Context(), common.OpFlushFile)
	defer d.endOp(ctx, span, common.OpFlushFile, start, &err)

	fh, ok := d.fileHandleByID(op.Handle)
	if !ok {
		return fuse.EIO
	}
	if serr := d.syncFile(op.Context(), fh.path); serr != nil {
		return errnoFor(serr)
	}
	return nil
}

// ReleaseFileHandle discards a handle previously minted by OpenFile or
// CreateFile, unpinning its cache entry so it becomes evictable again.
func (d *Drive) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) (err error) {
	d.mu.Lock()
	fh, ok := d.fileHandles[op.Handle]
	delete(d.fileHandles, op.Handle)
	d.mu.Unlock()
	if !ok {
		return nil
	}

	if fh.reads != nil {
		logger.Tracef("read pattern for %s:\n%s", fh.path, fh.reads.DumpGraph())
	}

	treeNode, ok := d.ctx.Tree.Find(fh.path)
	if ok {
		treeNode.MetaData().SetOpen(false)
	}
	d.ctx.Cache.Unpin(objectKey(fh.path))
	return nil
}

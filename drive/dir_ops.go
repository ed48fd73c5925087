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
	"path"
	"sync"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/qingstor-incubating/qsfs-fuse/common"
	"github.com/qingstor-incubating/qsfs-fuse/internal/mimetypes"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient"
	"github.com/qingstor-incubating/qsfs-fuse/internal/perms"
)

// dirHandle buffers one open directory's listing across a sequence of
// ReadDir calls. Object listings have no stable seek position the way a
// posix directory stream does, so entries are buffered in full pages and
// addressed by a monotonically increasing logical offset, the same scheme
// the teacher's dirHandle uses over GCS listings.
//
// INVARIANT: if len(entries) > 0, entriesOffset+1 == entries[0].Offset
// INVARIANT: for each i in range, entries[i+1].Offset == entries[i].Offset + 1
type dirHandle struct {
	mu sync.Mutex

	path string

	entries       []fuseutil.Dirent
	entriesOffset fuseops.DirOffset
	tok           string
	exhausted     bool
}

// OpenDir allocates a handle over a directory inode for a subsequent
// sequence of ReadDir calls.
func (d *Drive) OpenDir(op *fuseops.OpenDirOp) (err error) {
	n, ok := d.nodeByID(op.Inode)
	if !ok {
		return fuse.ENOENT
	}
	treeNode, ok := d.ctx.Tree.Find(n.path)
	if !ok || !treeNode.IsDir() {
		return fuse.ENOTDIR
	}
	if perr := d.checkAccess(treeNode.MetaData(), op.Header, perms.Read|perms.Execute); perr != nil {
		return errnoFor(perr)
	}

	d.mu.Lock()
	handleID := d.nextHandleID
	d.nextHandleID++
	d.dirHandles[handleID] = &dirHandle{path: n.path}
	d.mu.Unlock()

	op.Handle = handleID
	return nil
}

// ReadDir serves one page of a directory listing. A zero offset is treated
// as rewinddir: FUSE gives no way to distinguish it from the very first
// call, so the buffered listing is simply discarded and refetched. An
// offset older than what remains buffered is rejected with EINVAL, the same
// restriction the teacher imposes for the same reason: object listings
// cannot be seeked backward.
func (d *Drive) ReadDir(op *fuseops.ReadDirOp) (err error) {
	ctx, start, span := d.beginOp(op.Context(), common.OpReadDir)
	defer d.endOp(ctx, span, common.OpReadDir, start, &err)

	d.mu.Lock()
	dh, ok := d.dirHandles[op.Handle]
	d.mu.Unlock()
	if !ok {
		return fuse.EIO
	}

	dh.mu.Lock()
	defer dh.mu.Unlock()

	if op.Offset == 0 {
		dh.entries = nil
		dh.entriesOffset = 0
		dh.tok = ""
		dh.exhausted = false
	}

	if op.Offset < dh.entriesOffset {
		return fuse.EINVAL
	}

	index := int(op.Offset - dh.entriesOffset)
	if index > len(dh.entries) {
		return fuse.EINVAL
	}

	if index == len(dh.entries) && !dh.exhausted {
		newEntries, newTok, ferr := d.fetchDirEntries(op.Context(), dh.path, dh.tok)
		if ferr != nil {
			return errnoFor(ferr)
		}

		dh.entriesOffset += fuseops.DirOffset(len(dh.entries))
		for i := range newEntries {
			newEntries[i].Offset = dh.entriesOffset + fuseops.DirOffset(i) + 1
		}
		dh.entries = newEntries
		dh.tok = newTok
		dh.exhausted = newTok == ""
		index = 0
	}

	for i := index; i < len(dh.entries); i++ {
		data := fuseutil.AppendDirent(op.Data, dh.entries[i])
		if len(data) > op.Size {
			break
		}
		op.Data = data
	}

	return nil
}

// cachedListing returns a previously cached ListDirectory response page
// for cacheKey, if the listing cache is enabled and still holds it.
func (d *Drive) cachedListing(cacheKey string) (objectclient.ListPage, bool) {
	if d.listingPages == nil {
		return objectclient.ListPage{}, false
	}
	return d.listingPages.Get(cacheKey)
}

// cacheListing records page under cacheKey, if the listing cache is
// enabled.
func (d *Drive) cacheListing(cacheKey string, page objectclient.ListPage) {
	if d.listingPages == nil {
		return
	}
	d.listingPages.Set(cacheKey, page)
}

// invalidateListingCache drops the cached first page (the one fetched
// without a continuation token) for dirPath, so a mutation of its contents
// (create, remove, rename) is reflected on the very next ReadDir rather
// than waiting out the ttl. Pages cached under a continuation token are not
// removed; they expire with the ttl.
func (d *Drive) invalidateListingCache(dirPath string) {
	if d.listingPages == nil {
		return
	}
	d.listingPages.Delete(dirPath + "\x00")
}

// ReleaseDirHandle discards a handle previously minted by OpenDir.
func (d *Drive) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.dirHandles, op.Handle)
	return nil
}

// fetchDirEntries lists one page of dirPath's children from the object
// store, growing the tree and metadata manager with everything it learns
// along the way so a following LookUpInode or GetInodeAttributes for one of
// these children is answered from cache. The directory's own marker object
// is never reported as a child of itself: ListDirectory necessarily returns
// it as a plain (non-prefix) result with an empty suffix, since it is the
// one key in the page that is an exact, not a proper, match for the
// listing prefix.
func (d *Drive) fetchDirEntries(ctx context.Context, dirPath, tok string) ([]fuseutil.Dirent, string, error) {
	selfKey := objectKey(dirPath)
	cacheKey := dirPath + "\x00" + tok

	page, ok := d.cachedListing(cacheKey)
	if !ok {
		var err error
		page, err = d.ctx.Client.ListDirectory(ctx, objectclient.ListOptions{
			Prefix:    selfKey,
			Delimiter: "/",
			PageToken: tok,
		})
		if err != nil {
			return nil, "", err
		}
		d.cacheListing(cacheKey, page)
	}

	var entries []fuseutil.Dirent
	for _, info := range page.Objects {
		if info.Key == selfKey {
			continue
		}

		if info.IsPrefix {
			childP := "/" + info.Key
			d.growAndRegister(childP, info)
			entries = append(entries, fuseutil.Dirent{
				Name: path.Base(info.Key),
				Type: fuseutil.DT_Directory,
			})
			continue
		}

		childP := "/" + info.Key
		d.growAndRegister(childP, info)

		dt := fuseutil.DT_File
		if info.ContentType == mimetypes.SymlinkContentType {
			dt = fuseutil.DT_Link
		}
		entries = append(entries, fuseutil.Dirent{
			Name: path.Base(info.Key),
			Type: dt,
		})
	}

	return entries, page.NextPageToken, nil
}

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

// Package metadata holds the inode-like record (FileMetaData) kept for
// every object and prefix the filesystem has observed, and the
// LRU-bounded table (Manager) that maps a path to its record.
package metadata

import (
	"os"
	"sync"
	"time"

	"github.com/jacobsa/fuse/fuseops"
)

// FileType identifies what kind of filesystem entry a FileMetaData
// describes.
type FileType int

const (
	RegularFile FileType = iota
	Directory
	SymLink
)

func (t FileType) String() string {
	switch t {
	case Directory:
		return "directory"
	case SymLink:
		return "symlink"
	default:
		return "file"
	}
}

// FileMetaData is the inode-like record the filesystem keeps for a single
// path: a regular object, a symlink object, or a synthesized directory
// prefix. Mutable fields (size, times, link count, open/dirty state) are
// guarded by mu so concurrent FUSE ops can safely observe and update them.
type FileMetaData struct {
	mu sync.Mutex

	path string
	typ  FileType

	size  int64
	atime time.Time
	mtime time.Time
	ctime time.Time

	cachedAt time.Time // when this record was last refreshed from the backend

	uid  uint32
	gid  uint32
	mode os.FileMode // permission bits only, no type bits

	mimeType string
	etag     string
	numLinks int

	open       bool // has an open file handle
	needUpload bool // dirty: local writes not yet flushed to the backend
}

// New creates a FileMetaData for a regular file or symlink.
func New(path string, size int64, mtime time.Time, uid, gid uint32, mode os.FileMode, typ FileType, mimeType, etag string) *FileMetaData {
	now := time.Now()
	links := 1
	if typ == Directory {
		links = 2
	}
	return &FileMetaData{
		path:     path,
		typ:      typ,
		size:     size,
		atime:    now,
		mtime:    mtime,
		ctime:    mtime,
		cachedAt: now,
		uid:      uid,
		gid:      gid,
		mode:     mode,
		mimeType: mimeType,
		etag:     etag,
		numLinks: links,
	}
}

// NewDirectory builds the default metadata record for a synthesized
// directory prefix that has no backing object of its own.
func NewDirectory(path string, mtime time.Time, uid, gid uint32, dirMode os.FileMode) *FileMetaData {
	return New(path, 0, mtime, uid, gid, dirMode, Directory, "", "")
}

func (m *FileMetaData) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

// SetPath updates the record's path, used when an entry is renamed.
func (m *FileMetaData) SetPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.path = path
}

func (m *FileMetaData) Type() FileType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typ
}

func (m *FileMetaData) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

func (m *FileMetaData) SetSize(size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.size = size
}

func (m *FileMetaData) MTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mtime
}

func (m *FileMetaData) SetMTime(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mtime = t
	m.ctime = t
}

func (m *FileMetaData) Touch(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.atime = now
}

func (m *FileMetaData) ETag() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.etag
}

func (m *FileMetaData) SetETag(etag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.etag = etag
}

func (m *FileMetaData) MimeType() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mimeType
}

func (m *FileMetaData) SetMimeType(mimeType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mimeType = mimeType
}

// CachedAt returns when this record was last refreshed from the backend,
// used to evaluate the metadata TTL.
func (m *FileMetaData) CachedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cachedAt
}

func (m *FileMetaData) Refresh(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cachedAt = now
}

// NumLinks returns the hard link count: the value the record was built
// with (1 for files/symlinks, 2 for directories), changed afterwards only
// by IncLinks. The DirectoryTree does not adjust it as children come and
// go.
func (m *FileMetaData) NumLinks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numLinks
}

func (m *FileMetaData) IncLinks(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numLinks += n
}

func (m *FileMetaData) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *FileMetaData) SetOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = open
}

func (m *FileMetaData) NeedsUpload() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.needUpload
}

func (m *FileMetaData) SetNeedsUpload(dirty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.needUpload = dirty
}

func (m *FileMetaData) UID() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uid
}

func (m *FileMetaData) GID() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gid
}

func (m *FileMetaData) Mode() os.FileMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *FileMetaData) SetMode(mode os.FileMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// Attributes renders the record as the fuseops.InodeAttributes structure
// the FUSE binding expects for GetInodeAttributes/SetInodeAttributes
// responses.
func (m *FileMetaData) Attributes() fuseops.InodeAttributes {
	m.mu.Lock()
	defer m.mu.Unlock()

	mode := m.mode
	switch m.typ {
	case Directory:
		mode |= os.ModeDir
	case SymLink:
		mode |= os.ModeSymlink
	}

	return fuseops.InodeAttributes{
		Size:   uint64(m.size),
		Nlink:  uint64(m.numLinks),
		Mode:   mode,
		Atime:  m.atime,
		Mtime:  m.mtime,
		Ctime:  m.ctime,
		Crtime: m.ctime,
		Uid:    m.uid,
		Gid:    m.gid,
	}
}

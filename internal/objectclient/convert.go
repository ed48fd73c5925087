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

package objectclient

import (
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/qingstor-incubating/qsfs-fuse/internal/metadata"
	"github.com/qingstor-incubating/qsfs-fuse/internal/mimetypes"
)

// toObjectInfo converts a storage.ObjectAttrs into the backend-agnostic
// shape the rest of the core consumes, the single place this repo maps
// SDK-specific fields onto ObjectInfo (mirroring the original client's
// single-responsibility conversion layer rather than scattering field
// mapping across every caller).
func toObjectInfo(attrs *storage.ObjectAttrs) ObjectInfo {
	return ObjectInfo{
		Key:          attrs.Name,
		Size:         attrs.Size,
		ContentType:  attrs.ContentType,
		ETag:         attrs.Etag,
		LastModified: attrs.Updated,
	}
}

// ToFileMetaData builds a metadata.FileMetaData from an ObjectInfo,
// inferring the entry's FileType from its content-type and key shape
// per the MIME conventions of §6 and uid/gid/mode defaults supplied by
// the caller (the mount-wide owner and permission bits, since object
// storage carries no POSIX owner of its own).
func ToFileMetaData(info ObjectInfo, uid, gid uint32, fileMode, dirMode os.FileMode) *metadata.FileMetaData {
	typ := metadata.RegularFile
	mode := fileMode
	switch info.ContentType {
	case mimetypes.DirectoryContentType:
		typ = metadata.Directory
		mode = dirMode
	case mimetypes.SymlinkContentType:
		typ = metadata.SymLink
	}
	if info.IsPrefix {
		typ = metadata.Directory
		mode = dirMode
	}

	mtime := info.LastModified
	if mtime.IsZero() {
		mtime = time.Now()
	}
	return metadata.New(info.Key, info.Size, mtime, uid, gid, mode, typ, info.ContentType, info.ETag)
}

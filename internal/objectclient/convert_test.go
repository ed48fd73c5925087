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
	"testing"
	"time"

	"github.com/qingstor-incubating/qsfs-fuse/internal/metadata"
	"github.com/qingstor-incubating/qsfs-fuse/internal/mimetypes"
	"github.com/stretchr/testify/assert"
)

func TestToFileMetaData_RegularFile(t *testing.T) {
	info := ObjectInfo{Key: "/a.txt", Size: 5, ContentType: "text/plain", LastModified: time.Unix(1000, 0)}
	meta := ToFileMetaData(info, 1000, 1000, 0644, 0755)

	assert.Equal(t, metadata.RegularFile, meta.Type())
	assert.Equal(t, int64(5), meta.Size())
}

func TestToFileMetaData_DirectoryMarker(t *testing.T) {
	info := ObjectInfo{Key: "/dir/", ContentType: mimetypes.DirectoryContentType}
	meta := ToFileMetaData(info, 1000, 1000, 0644, 0755)

	assert.Equal(t, metadata.Directory, meta.Type())
}

func TestToFileMetaData_CommonPrefixIsDirectory(t *testing.T) {
	info := ObjectInfo{Key: "/dir/", IsPrefix: true}
	meta := ToFileMetaData(info, 1000, 1000, 0644, 0755)

	assert.Equal(t, metadata.Directory, meta.Type())
}

func TestToFileMetaData_Symlink(t *testing.T) {
	info := ObjectInfo{Key: "/link", ContentType: mimetypes.SymlinkContentType}
	meta := ToFileMetaData(info, 1000, 1000, 0644, 0755)

	assert.Equal(t, metadata.SymLink, meta.Type())
}

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
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_RegularFile_HasOneLink(t *testing.T) {
	m := New("/foo/bar", 10, time.Unix(100, 0), 1000, 1000, 0644, RegularFile, "text/plain", "etag1")
	assert.Equal(t, 1, m.NumLinks())
	assert.Equal(t, int64(10), m.Size())
	assert.Equal(t, RegularFile, m.Type())
}

func TestNewDirectory_HasTwoLinks(t *testing.T) {
	d := NewDirectory("/foo/", time.Unix(100, 0), 1000, 1000, os.ModePerm)
	assert.Equal(t, 2, d.NumLinks())
	assert.Equal(t, Directory, d.Type())
}

func TestFileMetaData_Attributes_SetsTypeBits(t *testing.T) {
	d := NewDirectory("/foo/", time.Unix(100, 0), 1000, 1000, 0755)
	attrs := d.Attributes()
	assert.True(t, attrs.Mode&os.ModeDir != 0)
	assert.Equal(t, uint32(1000), attrs.Uid)
}

func TestFileMetaData_SetSizeAndMTime(t *testing.T) {
	m := New("/foo", 0, time.Unix(0, 0), 0, 0, 0644, RegularFile, "", "")
	m.SetSize(42)
	m.SetMTime(time.Unix(500, 0))
	assert.Equal(t, int64(42), m.Size())
	assert.Equal(t, time.Unix(500, 0), m.MTime())
}

func TestFileMetaData_OpenAndDirtyFlags(t *testing.T) {
	m := New("/foo", 0, time.Unix(0, 0), 0, 0, 0644, RegularFile, "", "")
	assert.False(t, m.IsOpen())
	m.SetOpen(true)
	assert.True(t, m.IsOpen())

	assert.False(t, m.NeedsUpload())
	m.SetNeedsUpload(true)
	assert.True(t, m.NeedsUpload())
}

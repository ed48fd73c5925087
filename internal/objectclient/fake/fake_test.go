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

package fake

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PutThenGet(t *testing.T) {
	c := New()
	ctx := context.Background()

	_, err := c.PutObject(ctx, "/a.txt", 5, bytesReader("hello"), objectclient.PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)

	r, err := c.GetObject(ctx, "/a.txt", objectclient.GetOptions{})
	require.NoError(t, err)
	defer r.Close()

	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestClient_GetObjectRange(t *testing.T) {
	c := New()
	ctx := context.Background()
	c.Seed("/a.txt", "text/plain", []byte("0123456789"))

	r, err := c.GetObject(ctx, "/a.txt", objectclient.GetOptions{Offset: 2, Length: 3})
	require.NoError(t, err)
	defer r.Close()

	body, _ := io.ReadAll(r)
	assert.Equal(t, "234", string(body))
}

func TestClient_HeadObject_NotFound(t *testing.T) {
	c := New()
	_, err := c.HeadObject(context.Background(), "/missing", objectclient.GetOptions{})
	assert.True(t, objectclient.IsNotFound(err))
}

func TestClient_HeadObject_IfNoneMatch(t *testing.T) {
	c := New()
	ctx := context.Background()
	info, err := c.PutObject(ctx, "/a.txt", 5, bytesReader("hello"), objectclient.PutOptions{})
	require.NoError(t, err)

	_, err = c.HeadObject(ctx, "/a.txt", objectclient.GetOptions{IfNoneMatch: info.ETag})
	assert.True(t, objectclient.IsNotModified(err))
}

func TestClient_ListDirectory_Delimiter(t *testing.T) {
	c := New()
	c.Seed("/dir/a.txt", "text/plain", []byte("a"))
	c.Seed("/dir/sub/b.txt", "text/plain", []byte("b"))
	c.Seed("/other.txt", "text/plain", []byte("c"))

	page, err := c.ListDirectory(context.Background(), objectclient.ListOptions{Prefix: "/dir/", Delimiter: "/"})
	require.NoError(t, err)

	var files, prefixes int
	for _, o := range page.Objects {
		if o.IsPrefix {
			prefixes++
		} else {
			files++
		}
	}
	assert.Equal(t, 1, files)
	assert.Equal(t, 1, prefixes)
}

func TestClient_PutObject_CopySource(t *testing.T) {
	c := New()
	ctx := context.Background()
	c.Seed("/src.txt", "text/plain", []byte("payload"))

	info, err := c.PutObject(ctx, "/dst.txt", 0, nil, objectclient.PutOptions{CopySource: "/src.txt"})
	require.NoError(t, err)
	assert.Equal(t, int64(len("payload")), info.Size)

	r, err := c.GetObject(ctx, "/dst.txt", objectclient.GetOptions{})
	require.NoError(t, err)
	defer r.Close()
	body, _ := io.ReadAll(r)
	assert.Equal(t, "payload", string(body))
}

func TestClient_MultipartUpload(t *testing.T) {
	c := New()
	ctx := context.Background()

	uploadID, err := c.InitiateMultipartUpload(ctx, "/big.bin", "application/octet-stream")
	require.NoError(t, err)

	p1, err := c.UploadPart(ctx, "/big.bin", uploadID, 1, bytesReader("AAAA"), 4)
	require.NoError(t, err)
	p2, err := c.UploadPart(ctx, "/big.bin", uploadID, 2, bytesReader("BBBB"), 4)
	require.NoError(t, err)

	info, err := c.CompleteMultipartUpload(ctx, "/big.bin", uploadID, []objectclient.PartResult{p2, p1})
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size)

	r, err := c.GetObject(ctx, "/big.bin", objectclient.GetOptions{})
	require.NoError(t, err)
	defer r.Close()
	body, _ := io.ReadAll(r)
	assert.Equal(t, "AAAABBBB", string(body), "parts must be joined in part-number order regardless of completion order")
}

func TestClient_AbortMultipartUpload(t *testing.T) {
	c := New()
	ctx := context.Background()
	uploadID, _ := c.InitiateMultipartUpload(ctx, "/big.bin", "")
	_, _ = c.UploadPart(ctx, "/big.bin", uploadID, 1, bytesReader("AAAA"), 4)

	require.NoError(t, c.AbortMultipartUpload(ctx, "/big.bin", uploadID))

	_, err := c.CompleteMultipartUpload(ctx, "/big.bin", uploadID, nil)
	assert.ErrorIs(t, err, objectclient.ErrNoSuchUpload)
}

func bytesReader(s string) io.Reader { return strings.NewReader(s) }

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

package transfer

import (
	"context"
	"testing"

	"github.com/qingstor-incubating/qsfs-fuse/internal/block"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BufferSize = MinBufferSize
	cfg.MultipartThreshold = 3 * MinBufferSize
	cfg.MinPartSize = MinBufferSize
	cfg.ParallelTransfers = 4
	return cfg
}

func TestNew_RejectsUndersizedBuffer(t *testing.T) {
	_, err := New(fake.New(), Config{BufferSize: 1024, ParallelTransfers: 1})
	assert.Error(t, err)
}

func TestManager_Download_SinglePart(t *testing.T) {
	client := fake.New()
	body := make([]byte, 1024)
	for i := range body {
		body[i] = byte(i)
	}
	client.Seed("/a.bin", "application/octet-stream", body)

	mgr, err := New(client, testConfig())
	require.NoError(t, err)

	file := block.NewFile("/a.bin")
	h := mgr.Download(context.Background(), "/a.bin", 0, int64(len(body)), file)
	h.Wait()

	require.False(t, h.HasFailedParts())
	got := make([]byte, len(body))
	n, err := file.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, len(body), n)
	assert.Equal(t, body, got)
}

func TestManager_Download_MultiplePartsAcrossBufferBoundary(t *testing.T) {
	client := fake.New()
	size := int(2*MinBufferSize + 123)
	body := make([]byte, size)
	for i := range body {
		body[i] = byte(i % 251)
	}
	client.Seed("/big.bin", "application/octet-stream", body)

	mgr, err := New(client, testConfig())
	require.NoError(t, err)

	file := block.NewFile("/big.bin")
	h := mgr.Download(context.Background(), "/big.bin", 0, int64(size), file)
	h.Wait()

	require.False(t, h.HasFailedParts())
	assert.True(t, len(h.Parts()) >= 3, "a %d-byte download with an %d-byte buffer must split into multiple parts", size, MinBufferSize)

	got := make([]byte, size)
	n, err := file.ReadAt(got, 0)
	require.NoError(t, err)
	assert.Equal(t, size, n)
	assert.Equal(t, body, got)
}

func TestManager_Upload_SinglePartBelowThreshold(t *testing.T) {
	client := fake.New()
	mgr, err := New(client, testConfig())
	require.NoError(t, err)

	file := block.NewFile("/a.txt")
	_, err = file.AddPage(0, []byte("hello world"), "")
	require.NoError(t, err)

	h := mgr.Upload(context.Background(), "/a.txt", int64(len("hello world")), "text/plain", file)
	h.Wait()
	require.False(t, h.HasFailedParts())

	info, err := client.HeadObject(context.Background(), "/a.txt", objectclient.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), info.Size)
}

func TestManager_Upload_MultipartAboveThreshold(t *testing.T) {
	client := fake.New()
	cfg := testConfig()
	mgr, err := New(client, cfg)
	require.NoError(t, err)

	size := int(cfg.MultipartThreshold + 1024)
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}

	file := block.NewFile("/big.bin")
	_, err = file.AddPage(0, data, "")
	require.NoError(t, err)

	h := mgr.Upload(context.Background(), "/big.bin", int64(size), "application/octet-stream", file)
	h.Wait()
	require.False(t, h.HasFailedParts(), "%v", h.Err())
	assert.True(t, len(h.Parts()) > 1, "an upload above the multipart threshold must be split into several parts")
}

func TestManager_Abort_NoopWithoutTrackedUpload(t *testing.T) {
	mgr, err := New(fake.New(), testConfig())
	require.NoError(t, err)
	assert.NoError(t, mgr.Abort(context.Background(), "/never-uploaded.bin"))
}

func TestPartBounds_FoldsUndersizedRemainderIntoFinalPart(t *testing.T) {
	bounds := partBounds(21<<20, 10<<20, 4<<20)
	require.Len(t, bounds, 2)
	assert.Equal(t, int64(10<<20), bounds[0].length)
	assert.Equal(t, int64(11<<20), bounds[1].length, "a 1 MiB remainder below the 4 MiB minimum must fold into the prior part")
}

func TestPartBounds_EvenSplit(t *testing.T) {
	bounds := partBounds(20<<20, 10<<20, 4<<20)
	require.Len(t, bounds, 2)
	assert.Equal(t, int64(10<<20), bounds[0].length)
	assert.Equal(t, int64(10<<20), bounds[1].length)
}

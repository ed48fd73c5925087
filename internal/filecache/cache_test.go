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

package filecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetOrCreate_ReturnsSameFile(t *testing.T) {
	c := New(1<<20, t.TempDir(), 1)

	f1 := c.GetOrCreate("a")
	f2 := c.GetOrCreate("a")
	assert.Same(t, f1, f2)
	assert.Equal(t, 1, c.NumFiles())
}

func TestCache_Get_MissingKey(t *testing.T) {
	c := New(1<<20, t.TempDir(), 1)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestCache_Reserve_WithinBudget(t *testing.T) {
	c := New(100, t.TempDir(), 1)
	require.NoError(t, c.Reserve("a", 50))
	assert.Equal(t, int64(50), c.SizeBytes())
}

func TestCache_Reserve_SpillsLRUFileOnPressure(t *testing.T) {
	dir := t.TempDir()
	c := New(10, dir, 1)

	fa := c.GetOrCreate("a")
	_, err := fa.AddPage(0, []byte("0123456789"), dir)
	require.NoError(t, err)
	require.NoError(t, c.Reserve("a", 10))

	// "a" is full at the budget. Touching "b" must reclaim space by
	// spilling "a" (the LRU file) to disk rather than failing outright.
	fb := c.GetOrCreate("b")
	_, err = fb.AddPage(0, []byte("xyz"), dir)
	require.NoError(t, err)
	require.NoError(t, c.Reserve("b", 3))

	assert.Equal(t, int64(0), fa.CacheBytes(), "least recently used file should have been spilled to disk")
}

func TestCache_Reserve_PinnedFileNotEvicted(t *testing.T) {
	dir := t.TempDir()
	c := New(10, dir, 1)

	c.GetOrCreate("a")
	require.NoError(t, c.Reserve("a", 10))
	c.Pin("a")

	c.GetOrCreate("b")
	// "a" is pinned (open) and cannot be spilled/evicted, but the grow
	// factor of 1 means there is no slack: this must fail.
	err := c.Reserve("b", 10)
	assert.Error(t, err)
}

func TestCache_Reserve_GrowFactorAllowsOverBudget(t *testing.T) {
	dir := t.TempDir()
	c := New(10, dir, 2)

	c.GetOrCreate("a")
	require.NoError(t, c.Reserve("a", 10))
	c.Pin("a")

	c.GetOrCreate("b")
	// With growFactor 2, the hard limit is 20 bytes; pinned "a" occupies
	// 10, so "b" can still grow into the remaining slack.
	require.NoError(t, c.Reserve("b", 10))
	assert.Equal(t, int64(20), c.SizeBytes())
}

func TestCache_Remove_Unconditional(t *testing.T) {
	c := New(1<<20, t.TempDir(), 1)
	f := c.GetOrCreate("a")
	_, err := f.AddPage(0, []byte("data"), "")
	require.NoError(t, err)
	require.NoError(t, c.Reserve("a", f.CacheBytes()))

	c.Pin("a")
	c.Remove("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.SizeBytes())
}

// fakeProber reports a fixed amount of free space per call, regardless of
// dir, so tests can drive FreeDiskCache without touching a real
// filesystem.
type fakeProber struct {
	free []int64
}

func (f *fakeProber) FreeBytes(string) (int64, error) {
	v := f.free[0]
	if len(f.free) > 1 {
		f.free = f.free[1:]
	}
	return v, nil
}

func TestCache_FreeDiskCache_NoopWhenAlreadySafe(t *testing.T) {
	dir := t.TempDir()
	c := New(1<<20, dir, 1)
	c.GetOrCreate("a")

	require.NoError(t, c.FreeDiskCache(&fakeProber{free: []int64{1000}}, 100))
	_, ok := c.Get("a")
	assert.True(t, ok, "nothing should have been evicted when already safe")
}

func TestCache_FreeDiskCache_EvictsUntilSafe(t *testing.T) {
	dir := t.TempDir()
	c := New(1<<20, dir, 1)
	c.GetOrCreate("a")
	c.GetOrCreate("b")
	c.Get("a") // promote "a" to most recently used, leaving "b" as LRU

	// Reports too little free space until one file has been evicted.
	prober := &fakeProber{free: []int64{0, 100}}
	require.NoError(t, c.FreeDiskCache(prober, 100))

	_, bOK := c.Get("b")
	assert.False(t, bOK, "least recently used file should have been evicted")
	_, aOK := c.Get("a")
	assert.True(t, aOK)
}

func TestCache_FreeDiskCache_SkipsPinnedFiles(t *testing.T) {
	dir := t.TempDir()
	c := New(1<<20, dir, 1)
	c.GetOrCreate("a")
	c.Pin("a")

	err := c.FreeDiskCache(&fakeProber{free: []int64{0}}, 100)
	assert.Error(t, err, "a pinned file cannot be evicted to free space")
	_, ok := c.Get("a")
	assert.True(t, ok)
}

func TestCache_Rename_PreservesFile(t *testing.T) {
	c := New(1<<20, t.TempDir(), 1)
	f := c.GetOrCreate("old")

	c.Rename("old", "new")

	_, ok := c.Get("old")
	assert.False(t, ok)
	got, ok := c.Get("new")
	assert.True(t, ok)
	assert.Same(t, f, got)
	assert.Equal(t, "new", f.Key())
}

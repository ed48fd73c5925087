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

package mountctx

import (
	"context"
	"testing"

	"github.com/qingstor-incubating/qsfs-fuse/cfg"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient/fake"
	"github.com/qingstor-incubating/qsfs-fuse/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *cfg.Config {
	var c cfg.Config
	c.FileSystem.Uid = -1
	c.FileSystem.Gid = -1
	c.FileSystem.DirMode = 0755
	c.FileSystem.Umask = 0022
	c.FileCache.MaxSizeMb = 64
	c.FileCache.MaxCacheGrowFactor = 3
	c.Metadata.MaxEntries = 1000
	c.Transfer.PartSizeMb = 8
	c.Transfer.MaxInFlightReqs = 4
	c.Transfer.MaxRetryAttempts = 5
	return &c
}

func TestNew_BuildsRootNode(t *testing.T) {
	mctx, err := New(testConfig(), fake.New(), metrics.NewNoop(), nil, 1000, 1000)
	require.NoError(t, err)

	root, ok := mctx.Tree.Find("/")
	require.True(t, ok)
	assert.True(t, root.IsDir())

	_, ok = mctx.Metadata.Get("/")
	assert.True(t, ok, "the root node's metadata must be registered with the manager too")
}

func TestNew_UnboundedCacheSize(t *testing.T) {
	c := testConfig()
	c.FileCache.MaxSizeMb = -1
	mctx, err := New(c, fake.New(), metrics.NewNoop(), nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), mctx.Cache.SizeBytes())
}

func TestContext_Shutdown_AbortsTrackedUploads(t *testing.T) {
	mctx, err := New(testConfig(), fake.New(), metrics.NewNoop(), nil, 0, 0)
	require.NoError(t, err)
	assert.NoError(t, mctx.Shutdown(context.Background()))
}

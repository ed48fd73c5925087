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

// Package metrics defines the instrumentation surface the filesystem core
// reports through: per-operation counts/latencies for the FUSE op
// dispatch, the object store transfer path, and the block cache. The
// taxonomy is object-store-agnostic (Store*, not GCS*), since the core
// never assumes a particular backend.
package metrics

import (
	"context"
	"time"
)

// Attr is one attribute attached to a metric observation.
type Attr struct {
	Key, Value string
}

// Attribute keys used across the Handle methods below.
const (
	OpKey          = "fs_op"
	ErrorKey       = "error_category"
	StoreMethodKey = "store_method"
	ReadTypeKey    = "read_type"
	CacheHitKey    = "cache_hit"
)

// OpsHandle reports metrics for the FUSE op dispatch layer (drive).
type OpsHandle interface {
	OpsCount(ctx context.Context, inc int64, attrs []Attr)
	OpsLatency(ctx context.Context, latency time.Duration, attrs []Attr)
	OpsErrorCount(ctx context.Context, inc int64, attrs []Attr)
}

// StoreHandle reports metrics for calls against the object store client.
type StoreHandle interface {
	StoreRequestCount(ctx context.Context, inc int64, attrs []Attr)
	StoreRequestLatency(ctx context.Context, latency time.Duration, attrs []Attr)
	StoreReadBytesCount(ctx context.Context, inc int64, attrs []Attr)
	StoreUploadBytesCount(ctx context.Context, inc int64, attrs []Attr)
}

// BlockCacheHandle reports metrics for the page-indexed block cache.
type BlockCacheHandle interface {
	BlockCacheReadCount(ctx context.Context, inc int64, attrs []Attr)
	BlockCacheReadBytesCount(ctx context.Context, inc int64, attrs []Attr)
	BlockCacheReadLatency(ctx context.Context, latency time.Duration, attrs []Attr)
	BlockCacheEvictionCount(ctx context.Context, inc int64, attrs []Attr)
}

// Handle is the full instrumentation surface mountctx.Context carries and
// hands to every component that reports metrics.
type Handle interface {
	OpsHandle
	StoreHandle
	BlockCacheHandle
}

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

package metrics

import (
	"context"
	"time"
)

// NewNoop returns a Handle that discards every observation, used by tests
// and by any mount that disables metrics collection.
func NewNoop() Handle { return noopHandle{} }

type noopHandle struct{}

func (noopHandle) OpsCount(context.Context, int64, []Attr)                 {}
func (noopHandle) OpsLatency(context.Context, time.Duration, []Attr)       {}
func (noopHandle) OpsErrorCount(context.Context, int64, []Attr)            {}
func (noopHandle) StoreRequestCount(context.Context, int64, []Attr)        {}
func (noopHandle) StoreRequestLatency(context.Context, time.Duration, []Attr) {}
func (noopHandle) StoreReadBytesCount(context.Context, int64, []Attr)       {}
func (noopHandle) StoreUploadBytesCount(context.Context, int64, []Attr)     {}
func (noopHandle) BlockCacheReadCount(context.Context, int64, []Attr)       {}
func (noopHandle) BlockCacheReadBytesCount(context.Context, int64, []Attr)  {}
func (noopHandle) BlockCacheReadLatency(context.Context, time.Duration, []Attr) {}
func (noopHandle) BlockCacheEvictionCount(context.Context, int64, []Attr)   {}

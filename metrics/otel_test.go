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
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNew_RecordsOpsCount(t *testing.T) {
	ctx := context.Background()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(provider)

	h, err := New(t.Name())
	require.NoError(t, err)

	h.OpsCount(ctx, 1, []Attr{{Key: OpKey, Value: "LookUpInode"}})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "fs/ops_count" {
				found = true
			}
		}
	}
	require.True(t, found, "expected fs/ops_count to be recorded")
}

func TestNoop_NeverPanics(t *testing.T) {
	h := NewNoop()
	ctx := context.Background()
	h.OpsCount(ctx, 1, nil)
	h.OpsLatency(ctx, 0, nil)
	h.OpsErrorCount(ctx, 1, nil)
	h.StoreRequestCount(ctx, 1, nil)
	h.StoreRequestLatency(ctx, 0, nil)
	h.StoreReadBytesCount(ctx, 1, nil)
	h.StoreUploadBytesCount(ctx, 1, nil)
	h.BlockCacheReadCount(ctx, 1, nil)
	h.BlockCacheReadBytesCount(ctx, 1, nil)
	h.BlockCacheReadLatency(ctx, 0, nil)
	h.BlockCacheEvictionCount(ctx, 1, nil)
}

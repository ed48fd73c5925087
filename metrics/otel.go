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
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var defaultLatencyDistribution = metric.WithExplicitBucketBoundaries(
	1, 2, 3, 4, 5, 6, 8, 10, 13, 16, 20, 25, 30, 40, 50, 65, 80, 100,
	130, 160, 200, 250, 300, 400, 500, 650, 800, 1000, 2000, 5000, 10000,
)

// otelHandle is the production Handle, backed by the global otel meter
// provider (wired to a Prometheus exporter by mountctx).
type otelHandle struct {
	opsCount      metric.Int64Counter
	opsLatency    metric.Float64Histogram
	opsErrorCount metric.Int64Counter

	storeRequestCount    metric.Int64Counter
	storeRequestLatency  metric.Float64Histogram
	storeReadBytes       metric.Int64Counter
	storeUploadBytes     metric.Int64Counter

	blockCacheReadCount      metric.Int64Counter
	blockCacheReadBytes      metric.Int64Counter
	blockCacheReadLatency    metric.Float64Histogram
	blockCacheEvictionCount  metric.Int64Counter

	sets sync.Map // string key built from attrs -> metric.MeasurementOption
}

// New builds a Handle backed by the otel meter named instanceName.
func New(instanceName string) (Handle, error) {
	meter := otel.Meter(instanceName)

	opsCount, err1 := meter.Int64Counter("fs/ops_count", metric.WithDescription("Cumulative count of filesystem ops processed."))
	opsLatency, err2 := meter.Float64Histogram("fs/ops_latency", metric.WithDescription("Distribution of filesystem op latencies."), metric.WithUnit("ms"), defaultLatencyDistribution)
	opsErrorCount, err3 := meter.Int64Counter("fs/ops_error_count", metric.WithDescription("Cumulative count of filesystem op failures."))

	storeRequestCount, err4 := meter.Int64Counter("store/request_count", metric.WithDescription("Cumulative count of object store requests."))
	storeRequestLatency, err5 := meter.Float64Histogram("store/request_latency", metric.WithDescription("Distribution of object store request latencies."), metric.WithUnit("ms"), defaultLatencyDistribution)
	storeReadBytes, err6 := meter.Int64Counter("store/read_bytes", metric.WithDescription("Cumulative bytes downloaded from the object store."), metric.WithUnit("By"))
	storeUploadBytes, err7 := meter.Int64Counter("store/upload_bytes", metric.WithDescription("Cumulative bytes uploaded to the object store."), metric.WithUnit("By"))

	blockCacheReadCount, err8 := meter.Int64Counter("block_cache/read_count", metric.WithDescription("Cumulative count of block cache reads, hit or miss."))
	blockCacheReadBytes, err9 := meter.Int64Counter("block_cache/read_bytes", metric.WithDescription("Cumulative bytes served from the block cache."), metric.WithUnit("By"))
	blockCacheReadLatency, err10 := meter.Float64Histogram("block_cache/read_latency", metric.WithDescription("Distribution of block cache read latencies."), metric.WithUnit("us"), defaultLatencyDistribution)
	blockCacheEvictionCount, err11 := meter.Int64Counter("block_cache/eviction_count", metric.WithDescription("Cumulative count of cache entries spilled or evicted under pressure."))

	if err := errors.Join(err1, err2, err3, err4, err5, err6, err7, err8, err9, err10, err11); err != nil {
		return nil, err
	}

	return &otelHandle{
		opsCount:                opsCount,
		opsLatency:              opsLatency,
		opsErrorCount:           opsErrorCount,
		storeRequestCount:       storeRequestCount,
		storeRequestLatency:     storeRequestLatency,
		storeReadBytes:          storeReadBytes,
		storeUploadBytes:        storeUploadBytes,
		blockCacheReadCount:     blockCacheReadCount,
		blockCacheReadBytes:     blockCacheReadBytes,
		blockCacheReadLatency:   blockCacheReadLatency,
		blockCacheEvictionCount: blockCacheEvictionCount,
	}, nil
}

// attrSet turns attrs into a cached metric.MeasurementOption, keyed by the
// concatenation of its key/value pairs, so repeated calls with the same
// attribute set don't re-allocate an attribute.Set each time.
func (o *otelHandle) attrSet(attrs []Attr) metric.MeasurementOption {
	key := ""
	for _, a := range attrs {
		key += a.Key + "=" + a.Value + ";"
	}
	if v, ok := o.sets.Load(key); ok {
		return v.(metric.MeasurementOption)
	}
	kvs := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		kvs[i] = attribute.String(a.Key, a.Value)
	}
	opt := metric.WithAttributeSet(attribute.NewSet(kvs...))
	v, _ := o.sets.LoadOrStore(key, opt)
	return v.(metric.MeasurementOption)
}

func (o *otelHandle) OpsCount(ctx context.Context, inc int64, attrs []Attr) {
	o.opsCount.Add(ctx, inc, o.attrSet(attrs))
}

func (o *otelHandle) OpsLatency(ctx context.Context, latency time.Duration, attrs []Attr) {
	o.opsLatency.Record(ctx, float64(latency.Milliseconds()), o.attrSet(attrs))
}

func (o *otelHandle) OpsErrorCount(ctx context.Context, inc int64, attrs []Attr) {
	o.opsErrorCount.Add(ctx, inc, o.attrSet(attrs))
}

func (o *otelHandle) StoreRequestCount(ctx context.Context, inc int64, attrs []Attr) {
	o.storeRequestCount.Add(ctx, inc, o.attrSet(attrs))
}

func (o *otelHandle) StoreRequestLatency(ctx context.Context, latency time.Duration, attrs []Attr) {
	o.storeRequestLatency.Record(ctx, float64(latency.Milliseconds()), o.attrSet(attrs))
}

func (o *otelHandle) StoreReadBytesCount(ctx context.Context, inc int64, attrs []Attr) {
	o.storeReadBytes.Add(ctx, inc, o.attrSet(attrs))
}

func (o *otelHandle) StoreUploadBytesCount(ctx context.Context, inc int64, attrs []Attr) {
	o.storeUploadBytes.Add(ctx, inc, o.attrSet(attrs))
}

func (o *otelHandle) BlockCacheReadCount(ctx context.Context, inc int64, attrs []Attr) {
	o.blockCacheReadCount.Add(ctx, inc, o.attrSet(attrs))
}

func (o *otelHandle) BlockCacheReadBytesCount(ctx context.Context, inc int64, attrs []Attr) {
	o.blockCacheReadBytes.Add(ctx, inc, o.attrSet(attrs))
}

func (o *otelHandle) BlockCacheReadLatency(ctx context.Context, latency time.Duration, attrs []Attr) {
	o.blockCacheReadLatency.Record(ctx, float64(latency.Microseconds()), o.attrSet(attrs))
}

func (o *otelHandle) BlockCacheEvictionCount(ctx context.Context, inc int64, attrs []Attr) {
	o.blockCacheEvictionCount.Add(ctx, inc, o.attrSet(attrs))
}

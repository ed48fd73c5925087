// Copyright 2026 Google LLC
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

// Package tracing wraps OpenTelemetry span creation behind a small interface
// so request handling code can be built and tested without depending on a
// configured exporter.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Tracer starts and ends spans around filesystem operations that cross into
// an external collaborator (an object store call, a cache spill to disk).
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, trace.Span)
	StartServerSpan(ctx context.Context, name string) (context.Context, trace.Span)
	EndSpan(span trace.Span)
	RecordError(span trace.Span, err error)
	PropagateTraceContext(from, to context.Context) context.Context
}

type otelTracer struct {
	tracer trace.Tracer
}

// New returns a Tracer that creates spans via the given otel Tracer
// (typically obtained from otel.Tracer(name) once a provider is registered).
func New(t trace.Tracer) Tracer {
	return otelTracer{tracer: t}
}

func (o otelTracer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
}

func (o otelTracer) StartServerSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
}

func (o otelTracer) EndSpan(span trace.Span) {
	span.End()
}

func (o otelTracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

func (o otelTracer) PropagateTraceContext(from, to context.Context) context.Context {
	return trace.ContextWithSpan(to, trace.SpanFromContext(from))
}

type noopTracer struct{}

// NewNoopTracer returns a Tracer whose spans never record or export
// anything, for use when no tracing backend is configured.
func NewNoopTracer() Tracer {
	return noopTracer{}
}

func (noopTracer) StartSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

func (noopTracer) StartServerSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

func (noopTracer) EndSpan(trace.Span) {}

func (noopTracer) RecordError(trace.Span, error) {}

func (noopTracer) PropagateTraceContext(_, to context.Context) context.Context {
	return to
}

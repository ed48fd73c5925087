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
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/qingstor-incubating/qsfs-fuse/internal/logger"
)

// StartPrometheusExporter registers an otel Prometheus exporter as the
// global MeterProvider and serves it over addr's "/metrics" path, so every
// Handle built by New afterwards (which reads the global provider via
// otel.Meter) is scraped the same way the rest of this mount's ecosystem
// expects. Returns a function that shuts down both the HTTP server and the
// meter provider.
func StartPrometheusExporter(addr string) (shutdown func(context.Context) error, err error) {
	exporter, err := otelprometheus.New()
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Errorf("prometheus exporter: %v", serveErr)
		}
	}()

	shutdown = func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		srvErr := srv.Shutdown(shutdownCtx)
		provErr := provider.Shutdown(shutdownCtx)
		return errors.Join(srvErr, provErr)
	}
	return shutdown, nil
}

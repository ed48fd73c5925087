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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"cloud.google.com/go/storage"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"google.golang.org/api/option"

	"github.com/qingstor-incubating/qsfs-fuse/cfg"
	"github.com/qingstor-incubating/qsfs-fuse/drive"
	"github.com/qingstor-incubating/qsfs-fuse/internal/creds"
	"github.com/qingstor-incubating/qsfs-fuse/internal/logger"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient"
	"github.com/qingstor-incubating/qsfs-fuse/internal/perms"
	"github.com/qingstor-incubating/qsfs-fuse/metrics"
	"github.com/qingstor-incubating/qsfs-fuse/mountctx"
	"github.com/qingstor-incubating/qsfs-fuse/tracing"
)

// credsRoundTripper signs every outgoing request with HTTP Basic auth
// built from an accessKey/secretKey pair, the bridge between
// internal/creds' HMAC-style credential file and an object store
// reached at a custom (typically S3/GCS-interop-compatible) endpoint.
// A mount without bucket.credentials-file authenticates via Application
// Default Credentials instead and never constructs one of these.
type credsRoundTripper struct {
	accessKey, secretKey string
	base                 http.RoundTripper
}

func (t *credsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.accessKey, t.secretKey)
	return t.base.RoundTrip(req)
}

// storageClientOptions turns bucket config and an optional credential
// pair into the option.ClientOption set storage.NewClient needs.
func storageClientOptions(b cfg.BucketConfig, pair *creds.Pair) []option.ClientOption {
	var opts []option.ClientOption

	transport := &http.Transport{MaxConnsPerHost: b.MaxConnsPerHost}
	httpClient := &http.Client{Transport: transport, Timeout: b.HTTPClientTimeout}

	if pair != nil {
		httpClient.Transport = &credsRoundTripper{accessKey: pair.AccessKey, secretKey: pair.SecretKey, base: transport}
		opts = append(opts, option.WithHTTPClient(httpClient), option.WithoutAuthentication())
	} else if b.MaxConnsPerHost > 0 || b.HTTPClientTimeout > 0 {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	if b.CustomEndpoint != "" {
		opts = append(opts, option.WithEndpoint(b.CustomEndpoint))
	}

	return opts
}

// newObjectClient builds the production objectclient.Client for c.Bucket,
// loading a credentials file when one is configured and falling back to
// Application Default Credentials otherwise.
func newObjectClient(ctx context.Context, c *cfg.Config) (objectclient.Client, error) {
	var pair *creds.Pair
	if string(c.Bucket.CredentialsFile) != "" {
		store, err := creds.Load(string(c.Bucket.CredentialsFile))
		if err != nil {
			return nil, fmt.Errorf("loading credentials: %w", err)
		}
		p, ok := store.ForBucket(c.Bucket.Name)
		if !ok {
			return nil, fmt.Errorf("no credentials configured for bucket %q", c.Bucket.Name)
		}
		pair = &p
	}

	client, err := storage.NewClient(ctx, storageClientOptions(c.Bucket, pair)...)
	if err != nil {
		return nil, fmt.Errorf("constructing storage client: %w", err)
	}

	replicas := make([]*storage.Client, 0, len(c.Bucket.ReadReplicaEndpoints))
	for _, endpoint := range c.Bucket.ReadReplicaEndpoints {
		replicaBucket := c.Bucket
		replicaBucket.CustomEndpoint = endpoint
		replicaClient, rerr := storage.NewClient(ctx, storageClientOptions(replicaBucket, pair)...)
		if rerr != nil {
			return nil, fmt.Errorf("constructing read-replica storage client for %s: %w", endpoint, rerr)
		}
		replicas = append(replicas, replicaClient)
	}

	return objectclient.NewGCSClient(client, c.Bucket.Name, replicas...), nil
}

// newMetricsHandle starts the Prometheus exporter when debug.metrics-port
// is configured, returning the resulting metrics.Handle and a shutdown
// func the caller must run at unmount. When metrics are disabled the
// shutdown func is a no-op.
func newMetricsHandle(c *cfg.Config) (metrics.Handle, func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	if c.Debug.MetricsPort <= 0 {
		return metrics.NewNoop(), noopShutdown, nil
	}

	shutdown, err := metrics.StartPrometheusExporter(fmt.Sprintf(":%d", c.Debug.MetricsPort))
	if err != nil {
		return nil, nil, fmt.Errorf("starting metrics exporter: %w", err)
	}

	instanceName := c.AppName
	if instanceName == "" {
		instanceName = "qsfs-fuse"
	}
	handle, err := metrics.New(instanceName)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, nil, fmt.Errorf("constructing metrics handle: %w", err)
	}
	return handle, shutdown, nil
}

// newTracer builds the op Tracer for c: a stdout-printing tracer when
// debug.trace-to-stdout is set, a no-op otherwise. Returns a shutdown
// func the caller must run at unmount; a no-op when tracing is disabled.
func newTracer(c *cfg.Config) (tracing.Tracer, func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	if !c.Debug.TraceToStdout {
		return tracing.NewNoopTracer(), noopShutdown, nil
	}

	instanceName := c.AppName
	if instanceName == "" {
		instanceName = "qsfs-fuse"
	}
	tracer, shutdown, err := tracing.StartStdoutTracer(instanceName)
	if err != nil {
		return nil, nil, fmt.Errorf("starting stdout tracer: %w", err)
	}
	return tracer, shutdown, nil
}

// resolveOwner determines the uid/gid every inode this mount presents
// is owned by: the mounting process's identity, overridden by
// file-system.uid/gid when either is configured to something other
// than -1.
func resolveOwner(c *cfg.Config) (uid, gid uint32, err error) {
	uid, gid, err = perms.MyUserAndGroup()
	if err != nil {
		return 0, 0, fmt.Errorf("resolving mounting user: %w", err)
	}
	if c.FileSystem.Uid >= 0 {
		uid = uint32(c.FileSystem.Uid)
	}
	if c.FileSystem.Gid >= 0 {
		gid = uint32(c.FileSystem.Gid)
	}
	return uid, gid, nil
}

// fuseMountConfig builds the jacobsa/fuse mount options for c, wiring its
// logging severity into the fuse binding's own debug/error log hooks so a
// TRACE-level mount also surfaces the fuse driver's own op trace.
func fuseMountConfig(c *cfg.Config) *fuse.MountConfig {
	mc := &fuse.MountConfig{
		FSName:      "qsfs-fuse:" + c.Bucket.Name,
		Subtype:     "qsfs-fuse",
		VolumeName:  c.Bucket.Name,
		ErrorLogger: logger.NewLegacyLogger(logger.LevelError, "", c.Bucket.Name),
	}

	if c.Logging.Severity.Rank() <= cfg.TraceLogSeverity.Rank() {
		mc.DebugLogger = logger.NewLegacyLogger(logger.LevelTrace, "", c.Bucket.Name)
	}

	return mc
}

// registerSIGINTHandler tries to unmount mountPoint on every SIGINT,
// the same graceful-shutdown trigger the teacher's daemon registers, so
// an interactive `qsfs-fuse` run under a terminal can be stopped with
// ctrl-C instead of requiring a separate `fusermount -u`.
func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for range signalChan {
			logger.Infof("received SIGINT, unmounting %s...", mountPoint)
			if err := fuse.Unmount(mountPoint); err != nil {
				logger.Errorf("unmounting %s: %v", mountPoint, err)
			}
		}
	}()
}

// mountAndJoin wires a *cfg.Config into a live mount: it constructs the
// object store client, assembles the mount context, mounts the FUSE
// filesystem at mountPoint, and blocks until it is unmounted.
func mountAndJoin(ctx context.Context, mountPoint string, c *cfg.Config) (err error) {
	if err := logger.InitLogFile(c.Logging); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		if cerr := logger.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if c.Logging.Format != "" {
		logger.SetLogFormat(c.Logging.Format)
	}

	uid, gid, err := resolveOwner(c)
	if err != nil {
		return err
	}
	if uid == 0 {
		logger.Warn("mounting with uid 0; every inode in the mount will be owned by root")
	}

	client, err := newObjectClient(ctx, c)
	if err != nil {
		return err
	}
	if err := client.HeadBucket(ctx); err != nil {
		return fmt.Errorf("bucket %q is not reachable: %w", c.Bucket.Name, err)
	}

	metricsHandle, metricsShutdown, err := newMetricsHandle(c)
	if err != nil {
		return err
	}

	tracer, tracerShutdown, err := newTracer(c)
	if err != nil {
		return err
	}

	mctx, err := mountctx.New(c, client, metricsHandle, tracer, uid, gid)
	if err != nil {
		return fmt.Errorf("assembling mount context: %w", err)
	}

	fs := drive.New(mctx)
	server := fuseutil.NewFileSystemServer(fs)

	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return fmt.Errorf("creating mount point: %w", err)
	}

	mfs, err := fuse.Mount(mountPoint, server, fuseMountConfig(c))
	if err != nil {
		return fmt.Errorf("mounting at %s: %w", mountPoint, err)
	}

	registerSIGINTHandler(mountPoint)
	logger.Infof("mounted bucket %q at %s", c.Bucket.Name, mountPoint)

	joinErr := mfs.Join(ctx)

	shutdownCtx := context.Background()
	if serr := mctx.Shutdown(shutdownCtx); serr != nil {
		logger.Errorf("shutting down mount context: %v", serr)
	}
	if serr := metricsShutdown(shutdownCtx); serr != nil {
		logger.Errorf("shutting down metrics exporter: %v", serr)
	}
	if serr := tracerShutdown(shutdownCtx); serr != nil {
		logger.Errorf("shutting down tracer: %v", serr)
	}

	return joinErr
}

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

// Package mountctx assembles the components one mount needs — config,
// clock, object store client, directory tree, metadata table, block
// cache, transfer manager, metrics — into a single explicitly
// constructed value, rather than reaching for package-level globals or
// sync.Once singletons the way the teacher's gcsfuse once did. drive.New
// takes a *Context and nothing else.
package mountctx

import (
	"context"
	"math"
	"os"
	"time"

	"github.com/qingstor-incubating/qsfs-fuse/cfg"
	"github.com/qingstor-incubating/qsfs-fuse/clock"
	"github.com/qingstor-incubating/qsfs-fuse/common"
	"github.com/qingstor-incubating/qsfs-fuse/internal/filecache"
	"github.com/qingstor-incubating/qsfs-fuse/internal/metadata"
	"github.com/qingstor-incubating/qsfs-fuse/internal/mimetypes"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient"
	"github.com/qingstor-incubating/qsfs-fuse/internal/perms"
	"github.com/qingstor-incubating/qsfs-fuse/internal/transfer"
	"github.com/qingstor-incubating/qsfs-fuse/internal/tree"
	"github.com/qingstor-incubating/qsfs-fuse/metrics"
	"github.com/qingstor-incubating/qsfs-fuse/ratelimit"
	"github.com/qingstor-incubating/qsfs-fuse/tracing"
)

// Context bundles every component one mount's Drive needs.
type Context struct {
	Config *cfg.Config
	Clock  clock.Clock

	Client    objectclient.Client
	Metadata  *metadata.Manager
	Tree      *tree.DirectoryTree
	Cache     *filecache.Cache
	Transfer  *transfer.Manager
	Metrics   metrics.Handle
	Tracer    tracing.Tracer
	MimeTypes *mimetypes.Table

	// DiskProber reports free disk space under FileCache.CacheDir so a
	// download about to spill a page to disk can evict cached files first
	// if headroom is tight. It is nil when disk spill is disabled, since
	// there is then no disk budget to protect.
	DiskProber filecache.DiskSpaceProber

	// PermOptions carries the uid/gid override and umask every access
	// check in drive consults.
	PermOptions perms.Options

	shutdownFns []common.ShutdownFn
}

// New assembles a Context from cfg, a constructed object store client,
// metrics handle and tracer, and the uid/gid that own every inode this
// mount presents (resolved by the caller from the mounting process's
// identity, or from cfg.FileSystem.Uid/Gid when those are not -1). A nil
// tracer is treated as tracing.NewNoopTracer().
func New(c *cfg.Config, client objectclient.Client, metricsHandle metrics.Handle, tracer tracing.Tracer, uid, gid uint32) (*Context, error) {
	if tracer == nil {
		tracer = tracing.NewNoopTracer()
	}
	clk := clock.RealClock{}
	now := clk.Now()

	dirMode := os.FileMode(c.FileSystem.DirMode)
	rootMeta := metadata.NewDirectory("/", now, uid, gid, dirMode)

	dirTree := tree.New(rootMeta)

	maxEntries := c.Metadata.MaxEntries
	if maxEntries <= 0 {
		maxEntries = math.MaxInt64
	}
	metaManager := metadata.NewManager(uint64(maxEntries), dirTree)
	metaManager.Add(rootMeta)

	capacityBytes := c.FileCache.MaxSizeMb << 20
	if c.FileCache.MaxSizeMb < 0 {
		capacityBytes = math.MaxInt64
	}
	growFactor := c.FileCache.MaxCacheGrowFactor
	if growFactor <= 0 {
		growFactor = 1
	}
	cache := filecache.New(capacityBytes, string(c.FileCache.CacheDir), growFactor)

	var diskProber filecache.DiskSpaceProber
	if cfg.IsDiskSpillEnabled(c) {
		diskProber = filecache.StatfsProber{}
	}

	transferCfg := transferConfigFrom(c)
	transferMgr, err := transfer.New(client, transferCfg)
	if err != nil {
		return nil, err
	}

	mimeTable := mimetypes.New()

	var permOpts perms.Options
	if c.FileSystem.Uid >= 0 {
		u := uint32(c.FileSystem.Uid)
		permOpts.OverrideUID = &u
	}
	if c.FileSystem.Gid >= 0 {
		g := uint32(c.FileSystem.Gid)
		permOpts.OverrideGID = &g
	}
	umask := os.FileMode(c.FileSystem.Umask)
	permOpts.Umask = &umask

	return &Context{
		Config:      c,
		Clock:       clk,
		Client:      client,
		Metadata:    metaManager,
		Tree:        dirTree,
		Cache:       cache,
		DiskProber:  diskProber,
		Transfer:    transferMgr,
		Metrics:     metricsHandle,
		Tracer:      tracer,
		MimeTypes:   mimeTable,
		PermOptions: permOpts,
		shutdownFns: []common.ShutdownFn{func(ctx context.Context) error { return transferMgr.Shutdown(ctx) }},
	}, nil
}

// transferConfigFrom derives a transfer.Config from the mount-wide
// config's part-size/concurrency knobs, flooring the part size at
// transfer.MinBufferSize (the multipart buffer-size floor) and
// deriving a multipart threshold and minimum part size proportionally,
// since cfg.TransferConfig only names a single nominal part size.
func transferConfigFrom(c *cfg.Config) transfer.Config {
	bufSize := int64(c.Transfer.PartSizeMb) << 20
	if bufSize < transfer.MinBufferSize {
		bufSize = transfer.MinBufferSize
	}

	parallel := c.Transfer.MaxInFlightReqs
	if parallel <= 0 {
		parallel = 1
	}

	return transfer.Config{
		BufferSize:         bufSize,
		ParallelTransfers:  parallel,
		MultipartThreshold: 2 * bufSize,
		MinPartSize:        bufSize / 2,
		DiskSpillDir:       string(c.FileCache.CacheDir),
		RetryPolicy: objectclient.RetryPolicy{
			MaxAttempts: c.Transfer.MaxRetryAttempts,
			Scale:       orDefault(c.Transfer.InitialBackoff, 100*time.Millisecond),
			MaxDelay:    orDefault(c.Bucket.MaxRetrySleep, 30*time.Second),
		},
		DownloadThrottle: throttleFor(c.Transfer.MaxDownloadBytesPerSec),
		UploadThrottle:   throttleFor(c.Transfer.MaxUploadBytesPerSec),
	}
}

// throttleFor builds a wall-clock token bucket rate-limiting bytesPerSec,
// with a one-second burst capacity, or nil if bytesPerSec is unset.
func throttleFor(bytesPerSec int64) ratelimit.Throttle {
	if bytesPerSec <= 0 {
		return nil
	}
	return &ratelimit.SystemTimeTokenBucket{
		Bucket:    ratelimit.NewTokenBucket(float64(bytesPerSec), uint64(bytesPerSec)),
		StartTime: time.Now(),
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Shutdown tears down every component that owns background state or
// server-side resources (in-flight multipart uploads, etc.), joining
// every component's error via common.JoinShutdownFunc.
func (c *Context) Shutdown(ctx context.Context) error {
	return common.JoinShutdownFunc(c.shutdownFns...)(ctx)
}

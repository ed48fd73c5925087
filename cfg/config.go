// Copyright 2024 Google Inc. All Rights Reserved.
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

package cfg

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved mount configuration: CLI flags, config file,
// and defaults all merged by viper into one struct via mapstructure.
type Config struct {
	AppName string `yaml:"app-name"`

	Bucket     BucketConfig     `yaml:"bucket"`
	Debug      DebugConfig      `yaml:"debug"`
	FileSystem FileSystemConfig `yaml:"file-system"`
	FileCache  FileCacheConfig  `yaml:"file-cache"`
	Metadata   MetadataConfig   `yaml:"metadata-cache"`
	Transfer   TransferConfig   `yaml:"transfer"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// BucketConfig names the object store bucket to project and how to reach it.
type BucketConfig struct {
	Name string `yaml:"name"`

	CredentialsFile ResolvedPath `yaml:"credentials-file"`
	CustomEndpoint  string       `yaml:"custom-endpoint"`
	Protocol        Protocol     `yaml:"protocol"`

	// ReadReplicaEndpoints names additional endpoints, equivalent to
	// CustomEndpoint, whose read traffic (GetObject/HeadObject/
	// ListDirectory) is round-robined alongside the primary endpoint.
	ReadReplicaEndpoints []string `yaml:"read-replica-endpoints"`

	MaxConnsPerHost    int           `yaml:"max-conns-per-host"`
	HTTPClientTimeout  time.Duration `yaml:"http-client-timeout"`
	MaxRetrySleep      time.Duration `yaml:"max-retry-sleep"`
	RetryMultiplier    float64       `yaml:"retry-multiplier"`
}

// DebugConfig toggles verbose internal diagnostics.
type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`
	LogMutex                 bool `yaml:"log-mutex"`

	// MetricsPort, when > 0, serves Prometheus-formatted metrics at
	// :MetricsPort/metrics for the lifetime of the mount.
	MetricsPort int `yaml:"metrics-port"`

	// VisualizeReadPatterns traces each file handle's accumulated read
	// ranges to the log at close, to help diagnose whether a workload is
	// reading sequentially or at random.
	VisualizeReadPatterns bool `yaml:"visualize-read-patterns"`

	// TraceToStdout registers an OpenTelemetry TracerProvider that prints
	// every dispatched op's span to stdout as it completes, for local
	// inspection of op tracing without standing up a collector.
	TraceToStdout bool `yaml:"trace-to-stdout"`
}

// FileSystemConfig controls the POSIX identity and permission bits the
// mounted filesystem presents.
type FileSystemConfig struct {
	FileMode Octal `yaml:"file-mode"`
	DirMode  Octal `yaml:"dir-mode"`

	Uid int `yaml:"uid"`
	Gid int `yaml:"gid"`

	Umask Octal `yaml:"umask"`

	RenameDirLimit int `yaml:"rename-dir-limit"`
}

// FileCacheConfig sizes the page-indexed block cache and its disk spill.
type FileCacheConfig struct {
	MaxSizeMb int64 `yaml:"max-size-mb"`

	CacheDir           ResolvedPath `yaml:"cache-dir"`
	MaxDiskSizeMb      int64        `yaml:"max-disk-size-mb"`
	MaxCacheGrowFactor float64      `yaml:"max-cache-grow-factor"`

	DownloadChunkSizeMb int `yaml:"download-chunk-size-mb"`
}

// MetadataConfig sizes and ages the directory tree's metadata bookkeeping.
type MetadataConfig struct {
	TtlSecs         int64 `yaml:"ttl-secs"`
	MaxEntries      int64 `yaml:"max-entries"`
	ListingCacheTtl time.Duration `yaml:"listing-cache-ttl"`
}

// TransferConfig sizes the request orchestrator's worker pool.
type TransferConfig struct {
	PartSizeMb      int `yaml:"part-size-mb"`
	MaxUploadParts  int `yaml:"max-upload-parts"`
	MaxInFlightReqs int `yaml:"max-in-flight-requests"`

	MaxRetryAttempts int           `yaml:"max-retry-attempts"`
	InitialBackoff   time.Duration `yaml:"initial-backoff"`

	// MaxDownloadBytesPerSec/MaxUploadBytesPerSec cap the aggregate byte
	// rate across every in-flight part of that direction; 0 means
	// unthrottled.
	MaxDownloadBytesPerSec int64 `yaml:"max-download-bytes-per-sec"`
	MaxUploadBytesPerSec   int64 `yaml:"max-upload-bytes-per-sec"`
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	Severity  LogSeverity          `yaml:"severity"`
	Format    string               `yaml:"format"`
	File      ResolvedPath         `yaml:"file"`
	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

// LogRotateLoggingConfig configures lumberjack-backed log rotation.
type LogRotateLoggingConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

// BindFlags registers every config field as a pflag and binds it into
// viper, so the merged precedence is: explicit flag > config file > default.
func BindFlags(flagSet *pflag.FlagSet) error {
	bindings := []struct {
		key string
	}{
		{"app-name"},
		{"bucket.name"},
		{"bucket.credentials-file"},
		{"bucket.custom-endpoint"},
		{"bucket.protocol"},
		{"bucket.read-replica-endpoints"},
		{"bucket.max-conns-per-host"},
		{"bucket.http-client-timeout"},
		{"bucket.max-retry-sleep"},
		{"bucket.retry-multiplier"},
		{"debug.exit-on-invariant-violation"},
		{"debug.log-mutex"},
		{"debug.metrics-port"},
		{"debug.visualize-read-patterns"},
		{"debug.trace-to-stdout"},
		{"file-system.file-mode"},
		{"file-system.dir-mode"},
		{"file-system.uid"},
		{"file-system.gid"},
		{"file-system.umask"},
		{"file-system.rename-dir-limit"},
		{"file-cache.max-size-mb"},
		{"file-cache.cache-dir"},
		{"file-cache.max-disk-size-mb"},
		{"file-cache.max-cache-grow-factor"},
		{"file-cache.download-chunk-size-mb"},
		{"metadata-cache.ttl-secs"},
		{"metadata-cache.max-entries"},
		{"metadata-cache.listing-cache-ttl"},
		{"transfer.part-size-mb"},
		{"transfer.max-upload-parts"},
		{"transfer.max-in-flight-requests"},
		{"transfer.max-retry-attempts"},
		{"transfer.initial-backoff"},
		{"transfer.max-download-bytes-per-sec"},
		{"transfer.max-upload-bytes-per-sec"},
		{"logging.severity"},
		{"logging.format"},
		{"logging.file"},
		{"logging.log-rotate.max-file-size-mb"},
		{"logging.log-rotate.backup-file-count"},
		{"logging.log-rotate.compress"},
	}

	registerDefaultFlags(flagSet)

	for _, b := range bindings {
		if flagSet.Lookup(b.key) == nil {
			continue
		}
		if err := viper.BindPFlag(b.key, flagSet.Lookup(b.key)); err != nil {
			return err
		}
	}
	return nil
}

func registerDefaultFlags(flagSet *pflag.FlagSet) {
	flagSet.StringP("app-name", "", "", "The application name of this mount.")
	flagSet.StringP("bucket.name", "", "", "Name of the bucket to project as a filesystem.")
	flagSet.StringP("bucket.credentials-file", "", "", "Path to a credentials file (see internal/creds).")
	flagSet.StringP("bucket.custom-endpoint", "", "", "Override endpoint for the object store.")
	flagSet.StringP("bucket.protocol", "", string(HTTP1), "Wire protocol: http1, http2 or grpc.")
	flagSet.StringSliceP("bucket.read-replica-endpoints", "", nil, "Additional endpoints whose read traffic is round-robined alongside the primary endpoint.")
	flagSet.IntP("bucket.max-conns-per-host", "", 100, "Maximum number of connections per host.")
	flagSet.DurationP("bucket.http-client-timeout", "", 0, "HTTP client timeout; 0 means no timeout.")
	flagSet.DurationP("bucket.max-retry-sleep", "", 30*time.Second, "Cap on the retry backoff delay.")
	flagSet.Float64P("bucket.retry-multiplier", "", 2.0, "Exponential backoff multiplier.")

	flagSet.BoolP("debug.exit-on-invariant-violation", "", false, "Exit the process when an internal invariant check fails.")
	flagSet.BoolP("debug.log-mutex", "", false, "Log when a lock is held for longer than expected.")
	flagSet.IntP("debug.metrics-port", "", 0, "Serve Prometheus metrics on this port; 0 disables metrics entirely.")
	flagSet.BoolP("debug.visualize-read-patterns", "", false, "Trace each file handle's accumulated read ranges to the log at close.")
	flagSet.BoolP("debug.trace-to-stdout", "", false, "Print every dispatched op's trace span to stdout.")

	flagSet.StringP("file-system.file-mode", "", "0644", "Permission bits for regular files, in octal.")
	flagSet.StringP("file-system.dir-mode", "", "0755", "Permission bits for directories, in octal.")
	flagSet.IntP("file-system.uid", "", -1, "UID owner of all inodes; -1 uses the mounting user.")
	flagSet.IntP("file-system.gid", "", -1, "GID owner of all inodes; -1 uses the mounting user's primary group.")
	flagSet.StringP("file-system.umask", "", "0022", "Umask applied on top of file-mode/dir-mode.")
	flagSet.IntP("file-system.rename-dir-limit", "", 0, "Max descendants a directory rename may move; 0 means unlimited.")

	flagSet.Int64P("file-cache.max-size-mb", "", -1, "Byte budget for the in-memory block cache, in MiB; -1 means unbounded.")
	flagSet.StringP("file-cache.cache-dir", "", "", "Directory used for spilling pages to disk when the memory budget is exceeded.")
	flagSet.Int64P("file-cache.max-disk-size-mb", "", -1, "Byte budget for the disk spill area, in MiB; -1 means unbounded.")
	flagSet.Float64P("file-cache.max-cache-grow-factor", "", 3.0, "Hard ceiling on how far an unevictable working set may raise the cache budget, as a multiple of the configured max size.")
	flagSet.IntP("file-cache.download-chunk-size-mb", "", 8, "Download chunk size, in MiB. No component reads this value.")

	flagSet.Int64P("metadata-cache.ttl-secs", "", 60, "How long a directory tree node is trusted before a fresh LookUp, in seconds; -1 means forever.")
	flagSet.Int64P("metadata-cache.max-entries", "", 20000, "Max number of metadata records kept in memory before the LRU evicts.")
	flagSet.DurationP("metadata-cache.listing-cache-ttl", "", 10*time.Second, "How long a directory's listing is served from cache before a fresh ListObjects call.")

	flagSet.IntP("transfer.part-size-mb", "", 8, "Size, in MiB, of each multipart upload/download part.")
	flagSet.IntP("transfer.max-upload-parts", "", 16, "Max number of concurrently in-flight parts for a single multipart transfer.")
	flagSet.IntP("transfer.max-in-flight-requests", "", 64, "Max number of concurrently in-flight object-store requests across all transfers.")
	flagSet.IntP("transfer.max-retry-attempts", "", 5, "Max retry attempts for a retryable object-store error.")
	flagSet.DurationP("transfer.initial-backoff", "", 100*time.Millisecond, "Initial backoff delay before the first retry.")
	flagSet.Int64P("transfer.max-download-bytes-per-sec", "", 0, "Cap aggregate download throughput, in bytes/sec; 0 means unthrottled.")
	flagSet.Int64P("transfer.max-upload-bytes-per-sec", "", 0, "Cap aggregate upload throughput, in bytes/sec; 0 means unthrottled.")

	flagSet.StringP("logging.severity", "", string(InfoLogSeverity), "Minimum severity to log: TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	flagSet.StringP("logging.format", "", "text", "Log line format: text or json.")
	flagSet.StringP("logging.file", "", "", "Path to the log file; empty logs to stderr.")
	flagSet.IntP("logging.log-rotate.max-file-size-mb", "", 512, "Rotate the log file once it exceeds this size, in MiB.")
	flagSet.IntP("logging.log-rotate.backup-file-count", "", 10, "Number of rotated log files to retain.")
	flagSet.BoolP("logging.log-rotate.compress", "", true, "Gzip rotated log files.")
}

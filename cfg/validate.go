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
	"fmt"
	"math"
	"time"
)

const (
	MetadataCacheTtlSecsInvalidValueError = "the value of ttl-secs for metadata-cache can't be less than -1"
	MetadataCacheTtlSecsTooHighError      = "the value of ttl-secs in metadata-cache is too high to be supported"

	// MaxSupportedTtlInSeconds is the largest TTL, in seconds, representable
	// by a time.Duration without overflow.
	MaxSupportedTtlInSeconds = math.MaxInt64 / int64(time.Second)
)

func isValidLogRotateConfig(config *LogRotateLoggingConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be at least 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (retain all) or positive")
	}
	return nil
}

func isValidURL(u string) error {
	_, err := decodeURL(u)
	return err
}

func isValidMetadataConfig(c *MetadataConfig) error {
	if c.TtlSecs < -1 {
		return fmt.Errorf(MetadataCacheTtlSecsInvalidValueError)
	}
	if c.TtlSecs > MaxSupportedTtlInSeconds {
		return fmt.Errorf(MetadataCacheTtlSecsTooHighError)
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("max-entries for metadata-cache can't be negative")
	}
	return nil
}

func isValidFileCacheConfig(c *FileCacheConfig) error {
	if c.MaxSizeMb < -1 {
		return fmt.Errorf("max-size-mb for file-cache can't be less than -1")
	}
	if c.MaxDiskSizeMb < -1 {
		return fmt.Errorf("max-disk-size-mb for file-cache can't be less than -1")
	}
	if c.MaxCacheGrowFactor < 1 {
		return fmt.Errorf("max-cache-grow-factor must be at least 1")
	}
	return nil
}

func isValidTransferConfig(c *TransferConfig) error {
	if c.PartSizeMb <= 0 {
		return fmt.Errorf("part-size-mb must be positive")
	}
	if c.MaxUploadParts <= 0 {
		return fmt.Errorf("max-upload-parts must be positive")
	}
	if c.MaxInFlightReqs <= 0 {
		return fmt.Errorf("max-in-flight-requests must be positive")
	}
	if c.MaxRetryAttempts < 0 {
		return fmt.Errorf("max-retry-attempts can't be negative")
	}
	return nil
}

// ValidateConfig returns a non-nil error describing the first invalid field
// it finds, or nil if config is well-formed.
func ValidateConfig(config *Config) error {
	if err := isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}
	if err := isValidURL(config.Bucket.CustomEndpoint); err != nil {
		return fmt.Errorf("error parsing custom-endpoint config: %w", err)
	}
	if err := isValidMetadataConfig(&config.Metadata); err != nil {
		return fmt.Errorf("error parsing metadata-cache config: %w", err)
	}
	if err := isValidFileCacheConfig(&config.FileCache); err != nil {
		return fmt.Errorf("error parsing file-cache config: %w", err)
	}
	if err := isValidTransferConfig(&config.Transfer); err != nil {
		return fmt.Errorf("error parsing transfer config: %w", err)
	}
	if config.Bucket.Name == "" {
		return fmt.Errorf("bucket.name is required")
	}
	return nil
}

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
	"math"
	"net/url"
	"time"
)

func decodeURL(u string) (string, error) {
	if u == "" {
		return "", nil
	}
	decoded, err := url.Parse(u)
	if err != nil {
		return "", err
	}
	return decoded.String(), nil
}

// Rationalize updates derived config fields once flags, config file, and
// defaults have all been merged, resolving cross-field dependencies that a
// single flag default can't express.
func Rationalize(c *Config) error {
	endpoint, err := decodeURL(c.Bucket.CustomEndpoint)
	if err != nil {
		return err
	}
	c.Bucket.CustomEndpoint = endpoint

	if c.Debug.LogMutex {
		c.Logging.Severity = TraceLogSeverity
	}

	if c.Metadata.TtlSecs == -1 {
		c.Metadata.TtlSecs = int64(math.MaxInt64 / int64(time.Second))
	}

	if c.FileCache.MaxCacheGrowFactor < 1 {
		c.FileCache.MaxCacheGrowFactor = 1
	}

	return nil
}

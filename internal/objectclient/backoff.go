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

package objectclient

import "time"

// retryBackoff computes the capped exponential delay before retry
// attempt (1-indexed): (1<<attempt) * scale, capped at max. Ported from
// the original client's RetryStrategy; deliberately jitter-free to keep
// the delay schedule deterministic in tests.
func retryBackoff(attempt int, scale, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		attempt = 20 // guard against overflow of the shift below
	}
	d := scale * time.Duration(int64(1)<<uint(attempt))
	if d > max || d <= 0 {
		return max
	}
	return d
}

// RetryPolicy bounds how many times a retryable ClientError is retried
// and the backoff schedule between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Scale       time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the original client's defaults: a handful
// of attempts with a one-second scale factor capped at thirty seconds.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, Scale: time.Second, MaxDelay: 30 * time.Second}

// Backoff returns the delay before the given retry attempt (1-indexed).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return retryBackoff(attempt, p.Scale, p.MaxDelay)
}

// ShouldRetry reports whether err warrants another attempt under this
// policy, consulting both the error's own Retryable flag and the
// attempt count already made.
func (p RetryPolicy) ShouldRetry(err error, attemptsMade int) bool {
	if attemptsMade >= p.MaxAttempts {
		return false
	}
	ce, ok := err.(*ClientError)
	return ok && ce.Retryable
}

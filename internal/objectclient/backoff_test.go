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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryBackoff_Exponential(t *testing.T) {
	scale := time.Second
	max := 30 * time.Second

	assert.Equal(t, 2*time.Second, retryBackoff(1, scale, max))
	assert.Equal(t, 4*time.Second, retryBackoff(2, scale, max))
	assert.Equal(t, 8*time.Second, retryBackoff(3, scale, max))
}

func TestRetryBackoff_CapsAtMax(t *testing.T) {
	assert.Equal(t, 30*time.Second, retryBackoff(10, time.Second, 30*time.Second))
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, Scale: time.Millisecond, MaxDelay: time.Second}

	retryable := newError(KindRequestSendError, true, "x", "x")
	fatal := newError(KindSignInvalid, false, "x", "x")

	assert.True(t, p.ShouldRetry(retryable, 0))
	assert.True(t, p.ShouldRetry(retryable, 1))
	assert.False(t, p.ShouldRetry(retryable, 2), "exhausted attempts must not retry")
	assert.False(t, p.ShouldRetry(fatal, 0), "non-retryable kind must not retry")
}

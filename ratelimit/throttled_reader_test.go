// Copyright 2015 Google Inc. All Rights Reserved.
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

package ratelimit_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/qingstor-incubating/qsfs-fuse/ratelimit"
	"github.com/stretchr/testify/assert"
)

type funcThrottle struct {
	f func(ctx context.Context, tokens uint64) bool
}

func (ft *funcThrottle) Capacity() uint64 { return 1024 }

func (ft *funcThrottle) Wait(ctx context.Context, tokens uint64) bool {
	return ft.f(ctx, tokens)
}

func TestThrottledReader_CallsThrottle(t *testing.T) {
	ctx := context.Background()
	wrapped := strings.NewReader("0123456789abcdef0123456789")

	var throttleCalled bool
	var gotTokens uint64
	throttle := &funcThrottle{f: func(ctx context.Context, tokens uint64) bool {
		throttleCalled = true
		gotTokens = tokens
		return true
	}}

	r := ratelimit.ThrottledReader(ctx, wrapped, throttle)
	buf := make([]byte, 17)
	n, err := r.Read(buf)

	assert.NoError(t, err)
	assert.Equal(t, 17, n)
	assert.True(t, throttleCalled)
	assert.Equal(t, uint64(17), gotTokens)
}

func TestThrottledReader_ThrottleSaysCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wrapped := strings.NewReader("0123456789")

	throttle := &funcThrottle{f: func(ctx context.Context, tokens uint64) bool {
		return false
	}}

	r := ratelimit.ThrottledReader(ctx, wrapped, throttle)
	_, err := r.Read(make([]byte, 4))

	assert.True(t, errors.Is(err, context.Canceled))
}

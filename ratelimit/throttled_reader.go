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

package ratelimit

import (
	"context"
	"io"
)

type throttledReader struct {
	ctx      context.Context
	wrapped  io.Reader
	throttle Throttle
}

// ThrottledReader returns an io.Reader that wraps r, asking throttle for
// permission before each call to Read is allowed to proceed. Reads whose
// requested size exceeds throttle's capacity are clamped so they can still
// be granted.
func ThrottledReader(ctx context.Context, r io.Reader, throttle Throttle) io.Reader {
	return &throttledReader{
		ctx:      ctx,
		wrapped:  r,
		throttle: throttle,
	}
}

func (tr *throttledReader) Read(p []byte) (n int, err error) {
	tokens := uint64(len(p))
	if c := throttleCapacity(tr.throttle); tokens > c {
		tokens = c
		p = p[:tokens]
	}

	if !tr.throttle.Wait(tr.ctx, tokens) {
		err = tr.ctx.Err()
		return
	}

	return tr.wrapped.Read(p)
}

func throttleCapacity(t Throttle) uint64 {
	c := t.Capacity()
	if c == 0 {
		return 1
	}
	return c
}

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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qingstor-incubating/qsfs-fuse/ratelimit"
	"github.com/stretchr/testify/assert"
)

func TestSystemTimeTokenBucket_LimitsSuccessfully(t *testing.T) {
	const perCaseDuration = 200 * time.Millisecond
	const limitRateHz = 200.0

	capacity, err := ratelimit.ChooseTokenBucketCapacity(limitRateHz, perCaseDuration)
	assert.NoError(t, err)

	tb := &ratelimit.SystemTimeTokenBucket{
		Bucket:    ratelimit.NewTokenBucket(limitRateHz, capacity),
		StartTime: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), perCaseDuration)
	defer cancel()

	var admitted atomic.Uint64
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if !tb.Wait(ctx, 1) {
					return
				}
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	expected := limitRateHz * perCaseDuration.Seconds()
	assert.InDelta(t, expected, float64(admitted.Load()), expected*0.5+5)
}

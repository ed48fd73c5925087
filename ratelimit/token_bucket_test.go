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
	"testing"
	"time"

	"github.com/qingstor-incubating/qsfs-fuse/ratelimit"
	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_CarefulAccounting(t *testing.T) {
	// A bucket that ticks at the resolution of time.Duration (1ns) and has
	// a depth of four.
	require := assert.New(t)
	tb := ratelimit.NewTokenBucket(1e9, 4)

	// The bucket starts empty, so initially we should be required to wait
	// one tick per token.
	require.Equal(time.Duration(2), tb.Remove(0, 2))
	require.Equal(time.Duration(3), tb.Remove(2, 1))

	// After the bucket recharges fully, we should be allowed to claim up to
	// its capacity immediately.
	require.Equal(time.Duration(4), tb.Remove(4, 1))
	require.Equal(time.Duration(8), tb.Remove(8, 4))

	// Taking capacity "concurrently" at the same instant works fine.
	require.Equal(time.Duration(200), tb.Remove(200, 1))
}

func TestChooseTokenBucketCapacity(t *testing.T) {
	cap, err := ratelimit.ChooseTokenBucketCapacity(100, time.Second)
	assert.NoError(t, err)
	assert.Equal(t, uint64(100), cap)

	_, err = ratelimit.ChooseTokenBucketCapacity(0, time.Second)
	assert.Error(t, err)

	_, err = ratelimit.ChooseTokenBucketCapacity(100, 0)
	assert.Error(t, err)
}

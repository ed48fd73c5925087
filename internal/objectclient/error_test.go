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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientError_IsMatchesByKind(t *testing.T) {
	err := newError(KindNotFound, false, "NotFound", "no such key")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrNoSuchUpload))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(newError(KindNotFound, false, "NotFound", "x")))
	assert.False(t, IsNotFound(newError(KindRequestSendError, true, "x", "x")))
}

func TestIsNotModified(t *testing.T) {
	assert.True(t, IsNotModified(ErrNotModified))
	assert.False(t, IsNotModified(ErrNotFound))
}

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

package perms

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck_RootAlwaysAllowed(t *testing.T) {
	subj := Subject{UID: 1000, GID: 1000, Mode: 0}
	assert.True(t, Check(subj, 0, 0, Read|Write, Options{}, nil))
}

func TestCheck_OwnerReadWrite(t *testing.T) {
	subj := Subject{UID: 1000, GID: 1000, Mode: 0600}
	assert.True(t, Check(subj, 1000, 1000, Read|Write, Options{}, nil))
	assert.False(t, Check(subj, 2000, 2000, Read, Options{}, nil))
}

func TestCheck_OtherBitsAlwaysApply(t *testing.T) {
	subj := Subject{UID: 1000, GID: 1000, Mode: 0644}
	assert.True(t, Check(subj, 2000, 2000, Read, Options{}, nil))
	assert.False(t, Check(subj, 2000, 2000, Write, Options{}, nil))
}

func TestCheck_GroupViaGroupChecker(t *testing.T) {
	subj := Subject{UID: 1000, GID: 1000, Mode: 0660}
	groups := groupCheckerFunc(func(uid, gid uint32) bool { return uid == 3000 && gid == 1000 })
	assert.True(t, Check(subj, 3000, 9999, Read|Write, Options{}, groups))
}

func TestCheck_OverrideUID_SelfAlwaysAllowed(t *testing.T) {
	uid := uint32(42)
	subj := Subject{UID: 1000, GID: 1000, Mode: 0}
	assert.True(t, Check(subj, 42, 42, Read|Write|Execute, Options{OverrideUID: &uid}, nil))
}

func TestCheck_Umask(t *testing.T) {
	umask := os.FileMode(0o022)
	subj := Subject{UID: 1000, GID: 1000, Mode: 0}
	assert.True(t, Check(subj, 1000, 1000, Read, Options{Umask: &umask}, nil))
	assert.False(t, Check(subj, 2000, 2000, Write, Options{Umask: &umask}, nil))
}

func TestCheckStickyBit(t *testing.T) {
	dir := Subject{UID: 1000, Mode: os.ModeSticky | 0777}
	assert.True(t, CheckStickyBit(dir, 1000, 1000), "entry owner may remove own entry")
	assert.True(t, CheckStickyBit(dir, 2000, 1000), "directory owner may remove any entry")
	assert.False(t, CheckStickyBit(dir, 2000, 3000), "neither owner may not remove")
	assert.True(t, CheckStickyBit(dir, 2000, 0), "root may always remove")
}

type groupCheckerFunc func(uid, gid uint32) bool

func (f groupCheckerFunc) InGroup(uid, gid uint32) bool { return f(uid, gid) }

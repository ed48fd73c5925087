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

package creds

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DefaultAndPerBucket(t *testing.T) {
	input := "# comment\n\nAKID:SECRET\nmybucket:AKID2:SECRET2\n"
	store, err := Parse(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, Pair{AccessKey: "AKID", SecretKey: "SECRET"}, store.Default)
	p, ok := store.ForBucket("mybucket")
	require.True(t, ok)
	assert.Equal(t, "AKID2", p.AccessKey)

	p, ok = store.ForBucket("other-bucket")
	require.True(t, ok)
	assert.Equal(t, "AKID", p.AccessKey, "falls back to the default credential")
}

func TestParse_RejectsWhitespace(t *testing.T) {
	_, err := Parse(strings.NewReader("AKID : SECRET\n"))
	assert.Error(t, err)
}

func TestParse_RejectsBracketLines(t *testing.T) {
	_, err := Parse(strings.NewReader("[default]\n"))
	assert.Error(t, err)
}

func TestParse_RejectsMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("justonefield\n"))
	assert.Error(t, err)
}

func TestLoad_RejectsGroupReadablePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds")
	require.NoError(t, os.WriteFile(path, []byte("AKID:SECRET\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_AcceptsOwnerOnlyPermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds")
	require.NoError(t, os.WriteFile(path, []byte("AKID:SECRET\n"), 0600))

	store, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "AKID", store.Default.AccessKey)
}

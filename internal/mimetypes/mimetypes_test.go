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

package mimetypes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_ForFile_FallsBackToDefault(t *testing.T) {
	table := New()
	assert.Equal(t, DefaultContentType, table.ForFile("noext"))
}

func TestTable_ForFile_StdlibFallback(t *testing.T) {
	table := New()
	assert.Equal(t, "text/html", table.ForFile("index.html"))
}

func TestTable_Load_CustomTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mime.types")
	content := "application/x-custom cst\n# comment\ntext/markdown md markdown\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	table := New()
	require.NoError(t, table.Load(path))

	assert.Equal(t, "application/x-custom", table.ForFile("report.cst"))
	assert.Equal(t, "text/markdown", table.ForFile("README.md"))
	assert.Equal(t, "text/markdown", table.ForFile("README.MARKDOWN"))
}

func TestTable_Load_MissingFileIsNotError(t *testing.T) {
	table := New()
	require.NoError(t, table.Load("/nonexistent/mime.types"))
	assert.Equal(t, DefaultContentType, table.ForFile("foo.xyz123"))
}

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

// Package mimetypes resolves a filename to a content type for objects the
// filesystem creates, and recognizes the two synthetic types the
// filesystem itself assigns to prefixes and symlinks.
package mimetypes

import (
	"bufio"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Well-known content types the filesystem assigns itself, rather than
// looking up from an extension table.
const (
	DirectoryContentType = "application/x-directory"
	SymlinkContentType   = "application/symlink"
	DefaultContentType   = "application/octet-stream"
)

// Table is a loadable extension-to-content-type map, consulted before
// falling back to the standard library's mime package and finally to
// DefaultContentType.
type Table struct {
	mu  sync.RWMutex
	ext map[string]string
}

// New returns an empty table; use Load to populate it from a file in the
// "extension type" format (one per line, '#' starts a comment), matching
// the conventional /etc/mime.types layout.
func New() *Table {
	return &Table{ext: make(map[string]string)}
}

// Load reads extension-to-type mappings from path, replacing the table's
// current contents. An empty path or a missing file leaves the table
// empty, which is not an error: callers fall back to the standard
// library's built-in table and the default content type.
func (t *Table) Load(path string) error {
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	next := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		mimeType := fields[0]
		for _, ext := range fields[1:] {
			next["."+strings.ToLower(ext)] = mimeType
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	t.ext = next
	t.mu.Unlock()
	return nil
}

// ForFile resolves name's content type: the loaded table first, then
// mime.TypeByExtension, then DefaultContentType.
func (t *Table) ForFile(name string) string {
	ext := strings.ToLower(filepath.Ext(name))

	t.mu.RLock()
	if ct, ok := t.ext[ext]; ok {
		t.mu.RUnlock()
		return ct
	}
	t.mu.RUnlock()

	if ct := mime.TypeByExtension(ext); ct != "" {
		if semicolon := strings.IndexByte(ct, ';'); semicolon != -1 {
			ct = strings.TrimSpace(ct[:semicolon])
		}
		return ct
	}

	return DefaultContentType
}

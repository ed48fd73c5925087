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

// Package creds parses the plain-text credentials file format: one
// entry per line, either "accessKey:secretKey" (the default credential)
// or "bucket:accessKey:secretKey" (a per-bucket override). Lines
// beginning with '#' are comments; blank lines are ignored.
package creds

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Pair is one access/secret key pair.
type Pair struct {
	AccessKey string
	SecretKey string
}

// Store holds the default credential and any per-bucket overrides parsed
// from a credentials file.
type Store struct {
	Default  Pair
	ByBucket map[string]Pair
}

// ForBucket returns the credential to use for bucket: its per-bucket
// override if one was configured, otherwise the default.
func (s *Store) ForBucket(bucket string) (Pair, bool) {
	if p, ok := s.ByBucket[bucket]; ok {
		return p, true
	}
	if s.Default != (Pair{}) {
		return s.Default, true
	}
	return Pair{}, false
}

// Load reads and parses the credentials file at path, enforcing that its
// permission bits grant no access to group or other and no execute bit
// for the owner (u=rw only, or stricter).
func Load(path string) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("creds: stat %s: %w", path, err)
	}
	if err := checkPermissions(info); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("creds: open %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads credential entries from r. Exposed separately from Load so
// callers (and tests) can parse from an in-memory reader without
// touching the filesystem's permission check.
func Parse(r io.Reader) (*Store, error) {
	store := &Store{ByBucket: make(map[string]Pair)}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.ContainsAny(line, " \t") {
			return nil, fmt.Errorf("creds: line %d: whitespace/tabs not allowed", lineNo)
		}
		if strings.HasPrefix(trimmed, "[") {
			return nil, fmt.Errorf("creds: line %d: lines beginning with '[' are rejected", lineNo)
		}

		fields := strings.Split(trimmed, ":")
		switch len(fields) {
		case 2:
			store.Default = Pair{AccessKey: fields[0], SecretKey: fields[1]}
		case 3:
			store.ByBucket[fields[0]] = Pair{AccessKey: fields[1], SecretKey: fields[2]}
		default:
			return nil, fmt.Errorf("creds: line %d: expected accessKey:secretKey or bucket:accessKey:secretKey", lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("creds: scanning: %w", err)
	}

	return store, nil
}

// checkPermissions rejects a credentials file readable or writable by
// anyone but its owner. This check is a no-op on platforms without a
// meaningful Unix permission bitmask (e.g. Windows).
func checkPermissions(info os.FileInfo) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		return fmt.Errorf("creds: permissions %#o too permissive, must not grant group/other access", mode)
	}
	if mode&0o100 != 0 {
		return fmt.Errorf("creds: permissions %#o must not be owner-executable", mode)
	}
	return nil
}

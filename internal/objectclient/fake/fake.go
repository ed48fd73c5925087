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

// Package fake implements an in-memory objectclient.Client for tests,
// a lighter, in-process analogue of the teacher's fsouza/fake-gcs-server
// dependency purpose-built for table-driven tests rather than serving a
// real HTTP endpoint.
package fake

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient"
)

type object struct {
	body        []byte
	contentType string
	etag        string
	modified    time.Time
}

// Client is an in-memory bucket satisfying objectclient.Client.
type Client struct {
	mu sync.Mutex

	objects map[string]*object
	parts   map[string]map[int][]byte

	// Err, when set, is returned by every method instead of performing
	// the operation, letting tests exercise error propagation.
	Err error
}

// New creates an empty fake bucket.
func New() *Client {
	return &Client{
		objects: make(map[string]*object),
		parts:   make(map[string]map[int][]byte),
	}
}

var _ objectclient.Client = (*Client)(nil)

func (c *Client) HeadBucket(ctx context.Context) error {
	return c.Err
}

func (c *Client) StatVFS(ctx context.Context) (objectclient.StatVFS, error) {
	if c.Err != nil {
		return objectclient.StatVFS{}, c.Err
	}
	return objectclient.StatVFS{BlockSize: 4096, Blocks: 1 << 20, BlocksFree: 1 << 20, BlocksAvail: 1 << 20}, nil
}

func (c *Client) HeadObject(ctx context.Context, key string, opts objectclient.GetOptions) (objectclient.ObjectInfo, error) {
	if c.Err != nil {
		return objectclient.ObjectInfo{}, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[key]
	if !ok {
		return objectclient.ObjectInfo{}, objectclient.ErrNotFound
	}
	if opts.IfNoneMatch != "" && opts.IfNoneMatch == obj.etag {
		return objectclient.ObjectInfo{}, objectclient.ErrNotModified
	}
	return info(key, obj), nil
}

func (c *Client) ListDirectory(ctx context.Context, opts objectclient.ListOptions) (objectclient.ListPage, error) {
	if c.Err != nil {
		return objectclient.ListPage{}, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.objects))
	for k := range c.objects {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var page objectclient.ListPage
	seenPrefixes := make(map[string]bool)
	for _, k := range keys {
		rest := strings.TrimPrefix(k, opts.Prefix)
		if opts.Delimiter != "" {
			if idx := strings.Index(rest, opts.Delimiter); idx >= 0 {
				prefix := opts.Prefix + rest[:idx+len(opts.Delimiter)]
				if !seenPrefixes[prefix] {
					seenPrefixes[prefix] = true
					page.Objects = append(page.Objects, objectclient.ObjectInfo{Key: prefix, IsPrefix: true})
				}
				continue
			}
		}
		page.Objects = append(page.Objects, info(k, c.objects[k]))
		if opts.MaxKeys > 0 && len(page.Objects) >= opts.MaxKeys {
			break
		}
	}
	return page, nil
}

func (c *Client) GetObject(ctx context.Context, key string, opts objectclient.GetOptions) (io.ReadCloser, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	c.mu.Lock()
	obj, ok := c.objects[key]
	c.mu.Unlock()
	if !ok {
		return nil, objectclient.ErrNotFound
	}

	start := opts.Offset
	end := int64(len(obj.body))
	if opts.Length > 0 && start+opts.Length < end {
		end = start + opts.Length
	}
	if start > int64(len(obj.body)) {
		start = int64(len(obj.body))
	}
	return io.NopCloser(bytes.NewReader(obj.body[start:end])), nil
}

func (c *Client) PutObject(ctx context.Context, key string, size int64, body io.Reader, opts objectclient.PutOptions) (objectclient.ObjectInfo, error) {
	if c.Err != nil {
		return objectclient.ObjectInfo{}, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if opts.CopySource != "" {
		src, ok := c.objects[opts.CopySource]
		if !ok {
			return objectclient.ObjectInfo{}, objectclient.ErrNotFound
		}
		ct := src.contentType
		if opts.ContentType != "" {
			ct = opts.ContentType
		}
		dst := &object{body: append([]byte(nil), src.body...), contentType: ct, modified: time.Now()}
		dst.etag = etagOf(dst.body)
		c.objects[key] = dst
		return info(key, dst), nil
	}

	buf, err := io.ReadAll(body)
	if err != nil {
		return objectclient.ObjectInfo{}, objectclient.ErrNotFound
	}
	obj := &object{body: buf, contentType: opts.ContentType, modified: time.Now(), etag: etagOf(buf)}
	c.objects[key] = obj
	return info(key, obj), nil
}

func (c *Client) DeleteObject(ctx context.Context, key string) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, key)
	return nil
}

func (c *Client) InitiateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	if c.Err != nil {
		return "", c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	uploadID := fmt.Sprintf("upload-%d", len(c.parts)+1)
	c.parts[uploadID] = make(map[int][]byte)
	return uploadID, nil
}

func (c *Client) UploadPart(ctx context.Context, key, uploadID string, partNumber int, body io.Reader, size int64) (objectclient.PartResult, error) {
	if c.Err != nil {
		return objectclient.PartResult{}, c.Err
	}
	buf, err := io.ReadAll(body)
	if err != nil {
		return objectclient.PartResult{}, objectclient.ErrNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	parts, ok := c.parts[uploadID]
	if !ok {
		return objectclient.PartResult{}, objectclient.ErrNoSuchUpload
	}
	parts[partNumber] = buf
	return objectclient.PartResult{PartNumber: partNumber, ETag: etagOf(buf), Size: int64(len(buf))}, nil
}

func (c *Client) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []objectclient.PartResult) (objectclient.ObjectInfo, error) {
	if c.Err != nil {
		return objectclient.ObjectInfo{}, c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.parts[uploadID]
	if !ok {
		return objectclient.ObjectInfo{}, objectclient.ErrNoSuchUpload
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(stored[p.PartNumber])
	}

	obj := &object{body: buf.Bytes(), modified: time.Now(), etag: etagOf(buf.Bytes())}
	c.objects[key] = obj
	delete(c.parts, uploadID)
	return info(key, obj), nil
}

func (c *Client) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if c.Err != nil {
		return c.Err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.parts, uploadID)
	return nil
}

// Seed directly installs an object, bypassing PutObject, for tests that
// need to start from a pre-populated bucket.
func (c *Client) Seed(key, contentType string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = &object{body: body, contentType: contentType, modified: time.Now(), etag: etagOf(body)}
}

func info(key string, obj *object) objectclient.ObjectInfo {
	return objectclient.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.body)),
		ContentType:  obj.contentType,
		ETag:         obj.etag,
		LastModified: obj.modified,
	}
}

func etagOf(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

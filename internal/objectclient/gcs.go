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
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/qingstor-incubating/qsfs-fuse/common"
	"github.com/qingstor-incubating/qsfs-fuse/roundrobinslice"
)

// gcsObjectClient is the production Client, wrapping a single bucket
// handle from cloud.google.com/go/storage. No other package imports
// that SDK directly.
type gcsObjectClient struct {
	bucket *storage.BucketHandle
	name   string

	// reads round-robins read-only requests (HeadObject, ListDirectory,
	// GetObject) across bucket plus any configured read replicas, to
	// spread load across a pool of equivalent gateway endpoints fronting
	// the same bucket. Always has at least one entry (bucket itself).
	// Writes always go through bucket: replicas of a read-through cache
	// or regional mirror are not assumed to accept writes.
	reads *roundrobinslice.RoundRobin[*storage.BucketHandle]
}

// NewGCSClient wraps an already-authenticated *storage.Client bound to
// bucketName. Credential/token-source construction lives in cmd/, not
// here, so this package stays testable without network access. Any
// replicas are additional clients (typically pointed at different
// endpoints via option.WithEndpoint) whose read traffic is round-robined
// alongside client's, for deployments fronted by multiple equivalent
// gateway replicas.
func NewGCSClient(client *storage.Client, bucketName string, replicas ...*storage.Client) Client {
	primary := client.Bucket(bucketName)
	handles := make([]*storage.BucketHandle, 0, 1+len(replicas))
	handles = append(handles, primary)
	for _, r := range replicas {
		handles = append(handles, r.Bucket(bucketName))
	}
	return &gcsObjectClient{bucket: primary, name: bucketName, reads: roundrobinslice.New(handles)}
}

// readBucket returns the next bucket handle read traffic should use.
func (c *gcsObjectClient) readBucket() *storage.BucketHandle {
	b, ok := c.reads.Get()
	if !ok {
		return c.bucket
	}
	return b
}

func (c *gcsObjectClient) HeadBucket(ctx context.Context) error {
	_, err := c.bucket.Attrs(ctx)
	if err != nil {
		return translateError(err)
	}
	return nil
}

// StatVFS reports a synthetic block device derived from nothing the
// bucket itself exposes: an effectively unbounded volume. drive.StatFS
// returns these figures unchanged.
func (c *gcsObjectClient) StatVFS(ctx context.Context) (StatVFS, error) {
	return StatVFS{
		BlockSize:   4096,
		Blocks:      1 << 32,
		BlocksFree:  1 << 32,
		BlocksAvail: 1 << 32,
		Files:       1 << 32,
		FilesFree:   1 << 32,
	}, nil
}

func (c *gcsObjectClient) HeadObject(ctx context.Context, key string, opts GetOptions) (ObjectInfo, error) {
	obj := c.readBucket().Object(key)
	if opts.IfNoneMatch != "" {
		obj = obj.If(storage.Conditions{DoesNotMatch: opts.IfNoneMatch})
	}
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if opts.IfNoneMatch != "" && isPreconditionFailed(err) {
			return ObjectInfo{}, ErrNotModified
		}
		return ObjectInfo{}, translateError(err)
	}
	return toObjectInfo(attrs), nil
}

func (c *gcsObjectClient) ListDirectory(ctx context.Context, opts ListOptions) (ListPage, error) {
	query := &storage.Query{Prefix: opts.Prefix, Delimiter: opts.Delimiter}
	it := c.readBucket().Objects(ctx, query)

	var page ListPage
	pageSize := opts.MaxKeys
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return ListPage{}, translateError(err)
		}
		if attrs.Prefix != "" {
			page.Objects = append(page.Objects, ObjectInfo{Key: attrs.Prefix, IsPrefix: true})
		} else {
			page.Objects = append(page.Objects, toObjectInfo(attrs))
		}
		if pageSize > 0 && len(page.Objects) >= pageSize {
			break
		}
	}
	return page, nil
}

func (c *gcsObjectClient) GetObject(ctx context.Context, key string, opts GetOptions) (io.ReadCloser, error) {
	obj := c.readBucket().Object(key)
	r, err := obj.NewRangeReader(ctx, opts.Offset, rangeLength(opts.Length))
	if err != nil {
		return nil, translateError(err)
	}
	return r, nil
}

func (c *gcsObjectClient) PutObject(ctx context.Context, key string, size int64, body io.Reader, opts PutOptions) (ObjectInfo, error) {
	obj := c.bucket.Object(key)

	if opts.CopySource != "" {
		src := c.bucket.Object(opts.CopySource)
		copier := obj.CopierFrom(src)
		if opts.ContentType != "" {
			copier.ContentType = opts.ContentType
		}
		attrs, err := copier.Run(ctx)
		if err != nil {
			return ObjectInfo{}, translateError(err)
		}
		return toObjectInfo(attrs), nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.Size = size
	if _, err := common.CopyWhole(w, body, size); err != nil {
		_ = w.Close()
		return ObjectInfo{}, translateError(err)
	}
	if err := w.Close(); err != nil {
		return ObjectInfo{}, translateError(err)
	}
	return toObjectInfo(w.Attrs()), nil
}

func (c *gcsObjectClient) DeleteObject(ctx context.Context, key string) error {
	err := c.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return translateError(err)
	}
	return nil
}

// GCS has no native multipart-upload protocol; large uploads are
// composed server-side from sequentially-uploaded part objects via
// Compose, mirroring the part/complete shape §4.6 specifies for
// backends that do have true multipart (S3-style) uploads.
func (c *gcsObjectClient) InitiateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	return key, nil // the destination key doubles as the upload id
}

func (c *gcsObjectClient) UploadPart(ctx context.Context, key, uploadID string, partNumber int, body io.Reader, size int64) (PartResult, error) {
	partKey := partObjectName(uploadID, partNumber)
	obj := c.bucket.Object(partKey)
	w := obj.NewWriter(ctx)
	w.Size = size
	if _, err := common.CopyWhole(w, body, size); err != nil {
		_ = w.Close()
		return PartResult{}, translateError(err)
	}
	if err := w.Close(); err != nil {
		return PartResult{}, translateError(err)
	}
	return PartResult{PartNumber: partNumber, ETag: w.Attrs().Etag, Size: w.Attrs().Size}, nil
}

func (c *gcsObjectClient) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []PartResult) (ObjectInfo, error) {
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	srcs := make([]*storage.ObjectHandle, len(parts))
	for i, p := range parts {
		srcs[i] = c.bucket.Object(partObjectName(uploadID, p.PartNumber))
	}

	dst := c.bucket.Object(key)
	composer := dst.ComposerFrom(srcs...)
	attrs, err := composer.Run(ctx)
	if err != nil {
		return ObjectInfo{}, translateError(err)
	}

	for _, src := range srcs {
		_ = src.Delete(ctx)
	}
	return toObjectInfo(attrs), nil
}

func (c *gcsObjectClient) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	it := c.bucket.Objects(ctx, &storage.Query{Prefix: partObjectPrefix(uploadID)})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return translateError(err)
		}
		_ = c.bucket.Object(attrs.Name).Delete(ctx)
	}
	return nil
}

func partObjectPrefix(uploadID string) string { return ".qsfs-parts/" + uploadID + "/" }

func partObjectName(uploadID string, partNumber int) string {
	return fmt.Sprintf("%spart-%06d", partObjectPrefix(uploadID), partNumber)
}

func rangeLength(length int64) int64 {
	if length <= 0 {
		return -1
	}
	return length
}

// translateError maps the storage SDK's error surface onto the Kind
// taxonomy of §7, the one place that surface is examined.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return newError(KindNotFound, false, "ErrObjectNotExist", err.Error())
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 404:
			return newError(KindNotFound, false, "NotFound", gerr.Message)
		case gerr.Code == 412:
			return newError(KindUnexpectedResponse, false, "PreconditionFailed", gerr.Message)
		case gerr.Code == 429 || gerr.Code >= 500:
			return newError(KindRequestSendError, true, fmt.Sprintf("HTTP%d", gerr.Code), gerr.Message)
		case gerr.Code == 401 || gerr.Code == 403:
			return newError(KindSignInvalid, false, fmt.Sprintf("HTTP%d", gerr.Code), gerr.Message)
		default:
			return newError(KindUnexpectedResponse, false, fmt.Sprintf("HTTP%d", gerr.Code), gerr.Message)
		}
	}

	return newError(KindRequestSendError, true, "Unknown", err.Error())
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}

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

// Package objectclient defines the narrow capability the core consumes
// from an object store: head/list/get/put/delete and multipart upload,
// plus the structured error taxonomy every caller maps errno/retry
// decisions from. The core never imports an object-store SDK directly;
// only this package's production implementation does.
package objectclient

import (
	"context"
	"io"
	"time"
)

// ObjectInfo is the boundary-crossing shape the client returns for a
// single object or prefix, independent of any particular SDK's object
// attribute struct.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
	// IsPrefix is true for a synthetic directory entry returned by a
	// delimited LIST (a "common prefix") rather than a real object.
	IsPrefix bool
}

// ListPage is one page of a delimited LIST.
type ListPage struct {
	Objects []ObjectInfo
	// NextPageToken is empty once the listing is exhausted.
	NextPageToken string
}

// ListOptions configures a single list-directory call.
type ListOptions struct {
	Prefix    string
	Delimiter string
	// MaxKeys bounds the page size; zero means unbounded (spec §8).
	MaxKeys int
	PageToken string
}

// GetOptions configures a single ranged download.
type GetOptions struct {
	// Offset and Length select a byte range; Length <= 0 means "to EOF".
	Offset int64
	Length int64
	// IfNoneMatch, when set, turns the GET/HEAD into a conditional
	// request; the client returns ErrNotModified when the backend
	// reports the object is unchanged.
	IfNoneMatch string
}

// PutOptions configures a single PUT, including the server-side copy
// form used for same-backend moves.
type PutOptions struct {
	ContentType string
	// CopySource, when set, makes this a server-side copy from an
	// existing key rather than a body upload.
	CopySource string
}

// Client is the capability surface §4.6 describes. Every method that
// reaches the network takes a ctx and returns a *ClientError on failure
// so callers can branch on Kind without a type switch.
type Client interface {
	// HeadBucket confirms the configured bucket exists and is reachable.
	HeadBucket(ctx context.Context) error

	// StatVFS reports the synthetic capacity/usage figures drive.StatFS
	// needs, chosen by the client itself rather than read from a real
	// filesystem.
	StatVFS(ctx context.Context) (StatVFS, error)

	// HeadObject fetches a single object's metadata. Returns
	// ErrNotModified if opts.IfNoneMatch matches the current ETag.
	HeadObject(ctx context.Context, key string, opts GetOptions) (ObjectInfo, error)

	// ListDirectory performs one page of a delimited LIST under prefix.
	ListDirectory(ctx context.Context, opts ListOptions) (ListPage, error)

	// GetObject opens a ranged download. The caller must Close the
	// returned reader.
	GetObject(ctx context.Context, key string, opts GetOptions) (io.ReadCloser, error)

	// PutObject uploads a body of the given size (or performs a
	// server-side copy when opts.CopySource is set, in which case body
	// and size are ignored).
	PutObject(ctx context.Context, key string, size int64, body io.Reader, opts PutOptions) (ObjectInfo, error)

	// DeleteObject removes a single object. Deleting an already-absent
	// key is not an error.
	DeleteObject(ctx context.Context, key string) error

	// InitiateMultipartUpload begins a multipart upload and returns its
	// upload id.
	InitiateMultipartUpload(ctx context.Context, key string, contentType string) (string, error)

	// UploadPart uploads one part of a multipart upload.
	UploadPart(ctx context.Context, key, uploadID string, partNumber int, body io.Reader, size int64) (PartResult, error)

	// CompleteMultipartUpload finishes a multipart upload from its
	// completed parts, which the caller must have sorted by part number.
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []PartResult) (ObjectInfo, error)

	// AbortMultipartUpload cancels an in-progress multipart upload,
	// releasing any server-side storage already consumed by its parts.
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
}

// StatVFS is the synthetic block-count/free-space report drive.StatFS
// serves, reported by the client itself rather than read from a real
// block device (original_source's Drive::Statvfs).
type StatVFS struct {
	BlockSize   uint32
	Blocks      uint64
	BlocksFree  uint64
	BlocksAvail uint64
	Files       uint64
	FilesFree   uint64
}

// PartResult records one completed multipart part.
type PartResult struct {
	PartNumber int
	ETag       string
	Size       int64
}

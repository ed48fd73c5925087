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

// Package transfer turns arbitrarily large reads and writes into bounded
// size parts against an objectclient.Client, coordinating the parts'
// buffers through a fixed-capacity pool so memory usage stays
// predictable regardless of how many transfers are in flight.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/qingstor-incubating/qsfs-fuse/internal/block"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient"
	"github.com/qingstor-incubating/qsfs-fuse/ratelimit"
)

// Config bounds a TransferManager's resource usage.
type Config struct {
	// BufferSize is the size of one part buffer. Must be at least
	// MinBufferSize. A multipart upload folds a tail remainder shorter
	// than MinPartSize into the final part rather than leaving an
	// undersized last part.
	BufferSize int64
	// ParallelTransfers caps the number of parts in flight at once.
	ParallelTransfers int
	// MultipartThreshold is the size above which an upload is split into
	// a multipart upload rather than a single PUT.
	MultipartThreshold int64
	// MinPartSize is the smallest part a multipart upload will produce.
	MinPartSize int64
	// DiskSpillDir is where downloaded bytes are staged if the cache has
	// to spill them; AddPage is a no-op disk write only on pressure, so
	// this is passed straight through to block.File.AddPage.
	DiskSpillDir string
	RetryPolicy  objectclient.RetryPolicy

	// DownloadThrottle and UploadThrottle, when non-nil, cap the byte
	// rate of every part fetched or sent, shared across all parts in
	// flight. Nil means unthrottled.
	DownloadThrottle ratelimit.Throttle
	UploadThrottle   ratelimit.Throttle
}

// MinBufferSize is the floor spec.md requires for the buffer size.
const MinBufferSize = 8 << 20 // 8 MiB

// DefaultConfig matches the figures spec §4.7 gives as examples.
func DefaultConfig() Config {
	return Config{
		BufferSize:         10 << 20, // 10 MiB
		ParallelTransfers:  8,
		MultipartThreshold: 20 << 20, // 20 MiB
		MinPartSize:        4 << 20,  // 4 MiB
		RetryPolicy:        objectclient.DefaultRetryPolicy,
	}
}

// bufferPool is a fixed-capacity pool of reusable part buffers, the
// idiomatic Go analogue of the teacher's lease.FileLeaser fixed-capacity
// byte budget for staged transfer data.
type bufferPool struct {
	size int64
	ch   chan []byte
}

func newBufferPool(bufferSize int64, count int) *bufferPool {
	p := &bufferPool{size: bufferSize, ch: make(chan []byte, count)}
	for i := 0; i < count; i++ {
		p.ch <- make([]byte, bufferSize)
	}
	return p
}

func (p *bufferPool) get(ctx context.Context) ([]byte, error) {
	select {
	case buf := <-p.ch:
		return buf, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *bufferPool) put(buf []byte) {
	p.ch <- buf[:cap(buf)]
}

// Manager schedules downloads and uploads as bounded-size parts against
// an objectclient.Client.
type Manager struct {
	cfg    Config
	client objectclient.Client
	pool   *bufferPool
	sem    *semaphore.Weighted

	mu        sync.Mutex
	uploadIDs map[string]string // path -> upload id, for teardown abort
}

// New creates a Manager. cfg.BufferSize must be at least MinBufferSize.
func New(client objectclient.Client, cfg Config) (*Manager, error) {
	if cfg.BufferSize < MinBufferSize {
		return nil, fmt.Errorf("transfer: buffer size %d below minimum %d", cfg.BufferSize, MinBufferSize)
	}
	if cfg.ParallelTransfers <= 0 {
		cfg.ParallelTransfers = 1
	}
	return &Manager{
		cfg:       cfg,
		client:    client,
		pool:      newBufferPool(cfg.BufferSize, cfg.ParallelTransfers),
		sem:       semaphore.NewWeighted(int64(cfg.ParallelTransfers)),
		uploadIDs: make(map[string]string),
	}, nil
}

// CacheFile is the subset of *block.File the manager needs: a place to
// land downloaded bytes and a source for bytes being uploaded. Declared
// here (rather than depending on package block's concrete type for
// every call site) so tests can substitute a minimal fake.
type CacheFile interface {
	AddPage(offset int64, data []byte, diskDir string) (block.MemBudgetDelta, error)
	ReadAt(buf []byte, offset int64) (int, error)
}

// PartOutcome is one completed or failed part of a transfer.
type PartOutcome struct {
	Offset int64
	Size   int64
	Err    error
}

// Handle aggregates the outcome of every part of one transfer. Callers
// call Wait to block until every part has finished, then inspect Err.
type Handle struct {
	wg    sync.WaitGroup
	mu    sync.Mutex
	parts []PartOutcome
	err   error
}

func newHandle() *Handle { return &Handle{} }

func (h *Handle) recordPart(o PartOutcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.parts = append(h.parts, o)
	if o.Err != nil && h.err == nil {
		h.err = o.Err
	}
}

// Wait blocks until every scheduled part has completed.
func (h *Handle) Wait() { h.wg.Wait() }

// Err returns the first part failure observed, or nil if every part
// succeeded. Callers should call Wait before inspecting Err.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// HasFailedParts reports whether any scheduled part failed.
func (h *Handle) HasFailedParts() bool { return h.Err() != nil }

// Parts returns every part outcome recorded so far.
func (h *Handle) Parts() []PartOutcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]PartOutcome, len(h.parts))
	copy(out, h.parts)
	return out
}

// Download fetches [offset, offset+size) of path into file, splitting
// the range into bounded-size parts scheduled across the buffer pool.
// Returns immediately with a Handle; callers await completion with
// Handle.Wait.
func (m *Manager) Download(ctx context.Context, path string, offset, size int64, file CacheFile) *Handle {
	h := newHandle()
	if size <= 0 {
		return h
	}

	for start := offset; start < offset+size; start += m.cfg.BufferSize {
		partLen := m.cfg.BufferSize
		if start+partLen > offset+size {
			partLen = offset + size - start
		}

		h.wg.Add(1)
		go func(start, length int64) {
			defer h.wg.Done()
			h.recordPart(m.downloadPart(ctx, path, start, length, file))
		}(start, partLen)
	}
	return h
}

func (m *Manager) downloadPart(ctx context.Context, path string, offset, length int64, file CacheFile) PartOutcome {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return PartOutcome{Offset: offset, Size: length, Err: err}
	}
	defer m.sem.Release(1)

	buf, err := m.pool.get(ctx)
	if err != nil {
		return PartOutcome{Offset: offset, Size: length, Err: err}
	}
	defer m.pool.put(buf)

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = m.fetchOnce(ctx, path, offset, length, buf, file)
		if lastErr == nil {
			return PartOutcome{Offset: offset, Size: length}
		}
		if !m.cfg.RetryPolicy.ShouldRetry(lastErr, attempt) {
			return PartOutcome{Offset: offset, Size: length, Err: lastErr}
		}
	}
}

func (m *Manager) fetchOnce(ctx context.Context, path string, offset, length int64, buf []byte, file CacheFile) error {
	r, err := m.client.GetObject(ctx, path, objectclient.GetOptions{Offset: offset, Length: length})
	if err != nil {
		return err
	}
	defer r.Close()

	var reader io.Reader = r
	if m.cfg.DownloadThrottle != nil {
		reader = ratelimit.ThrottledReader(ctx, r, m.cfg.DownloadThrottle)
	}

	n, err := io.ReadFull(reader, buf[:length])
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	_, err = file.AddPage(offset, buf[:n], m.cfg.DiskSpillDir)
	return err
}

// Upload sends the full contents of file (of the given size) to path,
// as a single PUT below the multipart threshold or as a multipart
// upload above it.
func (m *Manager) Upload(ctx context.Context, path string, size int64, contentType string, file CacheFile) *Handle {
	h := newHandle()
	if size < m.cfg.MultipartThreshold {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.recordPart(m.uploadSingle(ctx, path, size, contentType, file))
		}()
		return h
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		m.uploadMultipart(ctx, path, size, contentType, file, h)
	}()
	return h
}

func (m *Manager) uploadSingle(ctx context.Context, path string, size int64, contentType string, file CacheFile) PartOutcome {
	buf := make([]byte, size)
	if _, err := file.ReadAt(buf, 0); err != nil && err != io.EOF {
		return PartOutcome{Size: size, Err: err}
	}
	_, err := m.client.PutObject(ctx, path, size, m.throttleUpload(ctx, boundReader(buf)), objectclient.PutOptions{ContentType: contentType})
	return PartOutcome{Size: size, Err: err}
}

// throttleUpload wraps r in an upload-rate-limited reader when
// cfg.UploadThrottle is configured, passing r through unchanged
// otherwise.
func (m *Manager) throttleUpload(ctx context.Context, r io.Reader) io.Reader {
	if m.cfg.UploadThrottle == nil {
		return r
	}
	return ratelimit.ThrottledReader(ctx, r, m.cfg.UploadThrottle)
}

func (m *Manager) uploadMultipart(ctx context.Context, path string, size int64, contentType string, file CacheFile, h *Handle) {
	uploadID, err := m.client.InitiateMultipartUpload(ctx, path, contentType)
	if err != nil {
		h.recordPart(PartOutcome{Size: size, Err: err})
		return
	}
	m.mu.Lock()
	m.uploadIDs[path] = uploadID
	m.mu.Unlock()

	bounds := partBounds(size, m.cfg.BufferSize, m.cfg.MinPartSize)

	group, groupCtx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var results []objectclient.PartResult

	for i, b := range bounds {
		partNumber, start, length := i+1, b.offset, b.length
		group.Go(func() error {
			if err := m.sem.Acquire(groupCtx, 1); err != nil {
				h.recordPart(PartOutcome{Offset: start, Size: length, Err: err})
				return err
			}
			defer m.sem.Release(1)

			buf, err := m.pool.get(groupCtx)
			if err != nil {
				h.recordPart(PartOutcome{Offset: start, Size: length, Err: err})
				return err
			}
			defer m.pool.put(buf)
			if length > int64(len(buf)) {
				// A final part that absorbed a short remainder is longer
				// than one pooled buffer.
				buf = make([]byte, length)
			}

			if _, err := file.ReadAt(buf[:length], start); err != nil && err != io.EOF {
				h.recordPart(PartOutcome{Offset: start, Size: length, Err: err})
				return err
			}

			part, err := m.client.UploadPart(groupCtx, path, uploadID, partNumber, m.throttleUpload(groupCtx, boundReader(buf[:length])), length)
			h.recordPart(PartOutcome{Offset: start, Size: length, Err: err})
			if err != nil {
				return err
			}

			mu.Lock()
			results = append(results, part)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return
	}

	sort.Slice(results, func(i, j int) bool { return results[i].PartNumber < results[j].PartNumber })
	if _, err := m.client.CompleteMultipartUpload(ctx, path, uploadID, results); err != nil {
		h.recordPart(PartOutcome{Size: size, Err: err})
		return
	}

	m.mu.Lock()
	delete(m.uploadIDs, path)
	m.mu.Unlock()
}

type partBound struct{ offset, length int64 }

// partBounds splits size into parts of bufferSize bytes, except that a
// final remainder shorter than minPart is merged into the last part
// (which may then exceed bufferSize) rather than left as an undersized
// trailing part.
func partBounds(size, bufferSize, minPart int64) []partBound {
	if size <= 0 {
		return nil
	}
	var bounds []partBound
	offset := int64(0)
	for offset < size {
		remaining := size - offset
		length := bufferSize
		if length > remaining {
			length = remaining
		}
		if remaining-length > 0 && remaining-length < minPart && len(bounds) > 0 {
			// The remainder after this part would be undersized; fold it
			// into this part instead of producing a too-small final part.
			length = remaining
		}
		bounds = append(bounds, partBound{offset: offset, length: length})
		offset += length
	}
	return bounds
}

// Abort cancels any unfinished multipart upload tracked for path.
func (m *Manager) Abort(ctx context.Context, path string) error {
	m.mu.Lock()
	uploadID, ok := m.uploadIDs[path]
	delete(m.uploadIDs, path)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.client.AbortMultipartUpload(ctx, path, uploadID)
}

// Shutdown aborts every still-tracked multipart upload, used on mount
// teardown so no orphaned server-side upload state is left behind.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	ids := make(map[string]string, len(m.uploadIDs))
	for k, v := range m.uploadIDs {
		ids[k] = v
	}
	m.uploadIDs = make(map[string]string)
	m.mu.Unlock()

	var firstErr error
	for path, uploadID := range ids {
		if err := m.client.AbortMultipartUpload(ctx, path, uploadID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func boundReader(buf []byte) io.Reader { return bytes.NewReader(buf) }

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

// Package block implements the page-indexed representation of a single
// cached file's contents: a Page is a contiguous byte range backed by
// memory or a spilled-to-disk temp file, and a File is an ordered,
// non-overlapping set of Pages covering the parts of an object that have
// been downloaded or written locally.
package block

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Range is a half-open byte range [Offset, Offset+Len).
type Range struct {
	Offset int64
	Len    int64
}

// Stop returns the exclusive end of the range.
func (r Range) Stop() int64 {
	return r.Offset + r.Len
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Offset, r.Stop())
}

// pageBody is the storage backing a Page: either an in-memory buffer or a
// spilled temp file on disk.
type pageBody interface {
	// Len returns the number of bytes currently stored.
	Len() int64
	// ReadAt reads into p starting at byte offset off within the body.
	ReadAt(p []byte, off int64) (int, error)
	// WriteAt writes p starting at byte offset off, growing the body if
	// off+len(p) exceeds Len.
	WriteAt(p []byte, off int64) (int, error)
	// Truncate shrinks or grows the body to exactly size bytes.
	Truncate(size int64) error
	// InMemory reports whether this body counts against the cache's
	// memory budget (false for disk-spilled bodies).
	InMemory() bool
	// Close releases any resources (e.g. removes a spill file).
	Close() error
}

// Page is a contiguous, offset-addressed range of a File's content.
type Page struct {
	mu     sync.Mutex
	offset int64
	body   pageBody
}

// Offset returns the page's starting byte offset within its owning file.
func (p *Page) Offset() int64 {
	return p.offset
}

// Len returns the number of bytes the page currently holds.
func (p *Page) Len() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body.Len()
}

// Stop returns the page's exclusive end offset.
func (p *Page) Stop() int64 {
	return p.offset + p.Len()
}

// Range returns the page's current byte range.
func (p *Page) Range() Range {
	return Range{Offset: p.offset, Len: p.Len()}
}

// InMemory reports whether the page's bytes live in process memory (as
// opposed to a disk spill file).
func (p *Page) InMemory() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body.InMemory()
}

// ReadAt reads from the page at a position relative to the page's own
// offset (i.e. pos 0 is p.offset in the owning file).
func (p *Page) ReadAt(buf []byte, pos int64) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body.ReadAt(buf, pos)
}

// WriteAt writes into the page at a position relative to the page's own
// offset, growing the page if necessary.
func (p *Page) WriteAt(buf []byte, pos int64) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body.WriteAt(buf, pos)
}

// Truncate shrinks or grows the page to size bytes.
func (p *Page) Truncate(size int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body.Truncate(size)
}

// Close releases the page's storage.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.body.Close()
}

// NewMemPage creates a page at offset holding a copy of data in memory.
func NewMemPage(offset int64, data []byte) *Page {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Page{offset: offset, body: &memBody{buf: buf}}
}

// NewDiskPage creates a page at offset backed by a freshly created temp
// file under dir, seeded with data.
func NewDiskPage(dir string, offset int64, data []byte) (*Page, error) {
	f, err := os.CreateTemp(dir, "page-")
	if err != nil {
		return nil, fmt.Errorf("block: creating spill file: %w", err)
	}
	body := &diskBody{file: f}
	if len(data) > 0 {
		if _, err := body.WriteAt(data, 0); err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, err
		}
	}
	return &Page{offset: offset, body: body}, nil
}

// SpillToDisk moves the page's content from memory onto a temp file under
// dir, returning an error if the page is already disk-backed.
func (p *Page) SpillToDisk(dir string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	mb, ok := p.body.(*memBody)
	if !ok {
		return fmt.Errorf("block: page at offset %d is not memory-backed", p.offset)
	}

	f, err := os.CreateTemp(dir, "page-")
	if err != nil {
		return fmt.Errorf("block: creating spill file: %w", err)
	}
	db := &diskBody{file: f}
	if _, err := db.WriteAt(mb.buf, 0); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	p.body = db
	return nil
}

type memBody struct {
	buf []byte
}

func (m *memBody) Len() int64 { return int64(len(m.buf)) }

func (m *memBody) InMemory() bool { return true }

func (m *memBody) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memBody) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:end], p)
	return len(p), nil
}

func (m *memBody) Truncate(size int64) error {
	switch {
	case size < int64(len(m.buf)):
		m.buf = m.buf[:size]
	case size > int64(len(m.buf)):
		grown := make([]byte, size)
		copy(grown, m.buf)
		m.buf = grown
	}
	return nil
}

func (m *memBody) Close() error { return nil }

type diskBody struct {
	file *os.File
	size int64
}

func (d *diskBody) Len() int64 { return d.size }

func (d *diskBody) InMemory() bool { return false }

func (d *diskBody) ReadAt(p []byte, off int64) (int, error) {
	if off >= d.size {
		return 0, io.EOF
	}
	n, err := d.file.ReadAt(p, off)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (d *diskBody) WriteAt(p []byte, off int64) (int, error) {
	n, err := d.file.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	if end := off + int64(n); end > d.size {
		d.size = end
	}
	return n, nil
}

func (d *diskBody) Truncate(size int64) error {
	if err := d.file.Truncate(size); err != nil {
		return err
	}
	d.size = size
	return nil
}

func (d *diskBody) Close() error {
	name := d.file.Name()
	if err := d.file.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}

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

package drive

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/qingstor-incubating/qsfs-fuse/cfg"
	"github.com/qingstor-incubating/qsfs-fuse/internal/metadata"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient/fake"
	"github.com/qingstor-incubating/qsfs-fuse/internal/perms"
	"github.com/qingstor-incubating/qsfs-fuse/metrics"
	"github.com/qingstor-incubating/qsfs-fuse/mountctx"
	"github.com/qingstor-incubating/qsfs-fuse/tracing"
)

// testDrive builds a Drive over a fake in-memory bucket, owned by uid/gid,
// ready for direct manipulation of its tree/metadata without going through
// the fuseops dispatch surface (which a same-process unit test has no way
// to construct; the kernel is the only caller that ever builds a
// fuseops.*Op value in a real mount).
func testDrive(t *testing.T, client *fake.Client, uid, gid uint32) *Drive {
	t.Helper()

	c := &cfg.Config{
		Bucket: cfg.BucketConfig{Name: "test-bucket"},
		FileSystem: cfg.FileSystemConfig{
			FileMode: 0644,
			DirMode:  0755,
			// -1 means no override: checkAccess must gate on each node's
			// own owner/mode bits against the caller identity a test
			// passes in, not a mount-wide fixed identity.
			Uid: -1,
			Gid: -1,
			// Per spec, a configured umask is applied in place of a
			// node's stored mode for every access check; 0077 keeps
			// group/other bits closed so owner-vs-stranger gating is
			// actually exercised below.
			Umask: 0077,
		},
		FileCache: cfg.FileCacheConfig{MaxSizeMb: 64, MaxCacheGrowFactor: 2},
		Metadata:  cfg.MetadataConfig{TtlSecs: 60, MaxEntries: 1000},
		Transfer:  cfg.TransferConfig{PartSizeMb: 1, MaxInFlightReqs: 2},
	}

	mctx, err := mountctx.New(c, client, metrics.NewNoop(), tracing.NewNoopTracer(), uid, gid)
	if err != nil {
		t.Fatalf("mountctx.New: %v", err)
	}
	return New(mctx)
}

// seedDir registers a directory at path (which must end in "/") directly
// in the tree and metadata manager, the same bookkeeping growAndRegister
// performs for a directory HeadObject reveals.
func (d *Drive) seedDir(path string, uid, gid uint32) *metadata.FileMetaData {
	meta := metadata.NewDirectory(path, time.Now(), uid, gid, 0755)
	d.ctx.Tree.Grow(meta)
	d.ctx.Metadata.Add(meta)
	return meta
}

// seedFile registers a regular file at path with the given contents both
// in the fake bucket and in the tree/metadata manager.
func (d *Drive) seedFile(t *testing.T, client *fake.Client, path string, uid, gid uint32, mode os.FileMode, body []byte) *metadata.FileMetaData {
	t.Helper()
	key := objectKey(path)
	client.Seed(key, "application/octet-stream", body)

	meta := metadata.New(path, int64(len(body)), time.Now(), uid, gid, mode, metadata.RegularFile, "application/octet-stream", "")
	d.ctx.Tree.Grow(meta)
	d.ctx.Metadata.Add(meta)
	return meta
}

func TestObjectKey(t *testing.T) {
	cases := map[string]string{
		"/":            "",
		"/foo":         "foo",
		"/foo/bar":     "foo/bar",
		"/dir/":        "dir/",
		"/dir/sub/":    "dir/sub/",
	}
	for path, want := range cases {
		if got := objectKey(path); got != want {
			t.Errorf("objectKey(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestChildPath(t *testing.T) {
	if got, want := childPath("/", "foo", false), "/foo"; got != want {
		t.Errorf("childPath(/, foo, false) = %q, want %q", got, want)
	}
	if got, want := childPath("/", "foo", true), "/foo/"; got != want {
		t.Errorf("childPath(/, foo, true) = %q, want %q", got, want)
	}
	if got, want := childPath("/dir/", "bar", true), "/dir/bar/"; got != want {
		t.Errorf("childPath(/dir/, bar, true) = %q, want %q", got, want)
	}
}

func TestParentPath(t *testing.T) {
	cases := map[string]string{
		"/foo":        "/",
		"/dir/":       "/",
		"/dir/sub/":   "/dir/",
		"/dir/sub":    "/dir/",
	}
	for path, want := range cases {
		if got := parentPath(path); got != want {
			t.Errorf("parentPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestCheckAccessGrantsOwnerAndDeniesOthers(t *testing.T) {
	d := testDrive(t, fake.New(), 1000, 1000)
	meta := metadata.New("/f", 0, time.Now(), 1000, 1000, 0600, metadata.RegularFile, "", "")

	owner := fuseops.OpHeader{Uid: 1000, Gid: 1000}
	if err := d.checkAccess(meta, owner, perms.Read|perms.Write); err != nil {
		t.Errorf("owner should be granted read+write, got %v", err)
	}

	stranger := fuseops.OpHeader{Uid: 2000, Gid: 2000}
	if err := d.checkAccess(meta, stranger, perms.Read); err == nil {
		t.Errorf("stranger should be denied read on a 0600 file owned by someone else")
	}

	root := fuseops.OpHeader{Uid: 0, Gid: 0}
	if err := d.checkAccess(meta, root, perms.Read|perms.Write); err != nil {
		t.Errorf("root should bypass owner-only mode bits, got %v", err)
	}
}

func TestCheckStickyAllowsOwnerAndDeniesOthers(t *testing.T) {
	d := testDrive(t, fake.New(), 1000, 1000)
	dirMeta := metadata.NewDirectory("/dir/", time.Now(), 1000, 1000, os.ModeSticky|0777)
	entryMeta := metadata.New("/dir/f", 0, time.Now(), 2000, 2000, 0644, metadata.RegularFile, "", "")

	entryOwner := fuseops.OpHeader{Uid: 2000, Gid: 2000}
	if err := d.checkSticky(dirMeta, entryMeta, entryOwner); err != nil {
		t.Errorf("entry owner should be allowed to remove their own file under a sticky dir, got %v", err)
	}

	stranger := fuseops.OpHeader{Uid: 3000, Gid: 3000}
	if err := d.checkSticky(dirMeta, entryMeta, stranger); err == nil {
		t.Errorf("a non-owner, non-dir-owner, non-root caller should be denied under a sticky dir")
	}
}

func TestCheckOwnerGate(t *testing.T) {
	d := testDrive(t, fake.New(), 1000, 1000)
	meta := metadata.New("/f", 0, time.Now(), 1000, 1000, 0644, metadata.RegularFile, "", "")

	if err := d.checkOwner(meta, fuseops.OpHeader{Uid: 1000}); err != nil {
		t.Errorf("owner should pass checkOwner, got %v", err)
	}
	if err := d.checkOwner(meta, fuseops.OpHeader{Uid: 0}); err != nil {
		t.Errorf("root should pass checkOwner, got %v", err)
	}
	if err := d.checkOwner(meta, fuseops.OpHeader{Uid: 2000}); err == nil {
		t.Errorf("a non-owner, non-root caller should be denied by checkOwner")
	}
}

func TestRenameMovesObjectTreeAndCache(t *testing.T) {
	client := fake.New()
	d := testDrive(t, client, 1000, 1000)

	d.seedDir("/dir/", 1000, 1000)
	d.seedFile(t, client, "/dir/f", 1000, 1000, 0644, []byte("hello"))

	if err := d.Rename(context.Background(), "/dir/f", "/dir/g", 1000, 1000); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, ok := d.ctx.Tree.Find("/dir/f"); ok {
		t.Errorf("old path should no longer be in the tree after rename")
	}
	if _, ok := d.ctx.Tree.Find("/dir/g"); !ok {
		t.Errorf("new path should be in the tree after rename")
	}
	if _, ok := d.ctx.Metadata.Get("/dir/g"); !ok {
		t.Errorf("new path should be in the metadata manager after rename")
	}

	r, err := client.GetObject(context.Background(), "dir/g", objectclient.GetOptions{})
	if err != nil {
		t.Fatalf("GetObject(dir/g): %v", err)
	}
	defer r.Close()
	buf := make([]byte, 5)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("reading renamed object: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("renamed object body = %q, want %q", buf, "hello")
	}

	if _, err := client.HeadObject(context.Background(), "dir/f", objectclient.GetOptions{}); err == nil {
		t.Errorf("the source object should no longer exist after rename")
	}
}

func TestRenameRejectsExistingDestination(t *testing.T) {
	client := fake.New()
	d := testDrive(t, client, 1000, 1000)

	d.seedDir("/dir/", 1000, 1000)
	d.seedFile(t, client, "/dir/f", 1000, 1000, 0644, []byte("a"))
	d.seedFile(t, client, "/dir/g", 1000, 1000, 0644, []byte("b"))

	if err := d.Rename(context.Background(), "/dir/f", "/dir/g", 1000, 1000); err == nil {
		t.Errorf("rename onto an existing destination should fail")
	}
}

func TestRenameDeniesWithoutParentWriteAccess(t *testing.T) {
	client := fake.New()
	d := testDrive(t, client, 1000, 1000)

	d.seedDir("/dir/", 1000, 1000)
	d.seedFile(t, client, "/dir/f", 1000, 1000, 0644, []byte("hello"))

	// Neither owner nor group of /dir/, and umask closes group/other
	// bits, so this caller has no write access to the source parent.
	if err := d.Rename(context.Background(), "/dir/f", "/dir/g", 2000, 2000); err == nil {
		t.Errorf("rename should be denied when the caller lacks write access to the source parent")
	}
}

func TestStatFSReflectsFakeBucket(t *testing.T) {
	client := fake.New()
	d := testDrive(t, client, 1000, 1000)

	vfs, err := d.StatFS(context.Background())
	if err != nil {
		t.Fatalf("StatFS: %v", err)
	}
	if vfs.Blocks == 0 {
		t.Errorf("expected a non-zero synthetic block count")
	}
}

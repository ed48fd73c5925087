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
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/qingstor-incubating/qsfs-fuse/clock"
	"github.com/qingstor-incubating/qsfs-fuse/internal/metadata"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient/fake"
)

// Scenario 4 of spec.md's end-to-end scenarios: a directory rename moves
// every descendant object, not just the renamed entry's own marker. The
// FUSE-dispatched half of Rename (permission gating on the old/new parents)
// is already covered by TestRenameDeniesWithoutParentWriteAccess in
// drive_test.go; this exercises the subtree walk itself two levels deep.
func TestScenario_DirectoryRenameMovesNestedSubtree(t *testing.T) {
	client := fake.New()
	d := testDrive(t, client, 1000, 1000)

	d.seedDir("/d/", 1000, 1000)
	d.seedDir("/d/sub/", 1000, 1000)
	d.seedFile(t, client, "/d/f1", 1000, 1000, 0644, []byte("one"))
	d.seedFile(t, client, "/d/sub/f2", 1000, 1000, 0644, []byte("two"))

	if err := d.Rename(context.Background(), "/d", "/e", 1000, 1000); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	for _, old := range []string{"/d", "/d/f1", "/d/sub", "/d/sub/f2"} {
		if _, ok := d.ctx.Tree.Find(old); ok {
			t.Errorf("old path %q should be gone from the tree after rename", old)
		}
	}
	for _, want := range []string{"/e", "/e/f1", "/e/sub", "/e/sub/f2"} {
		if _, ok := d.ctx.Tree.Find(want); !ok {
			t.Errorf("new path %q should be present in the tree after rename", want)
		}
	}

	for key, wantBody := range map[string]string{"e/f1": "one", "e/sub/f2": "two"} {
		r, err := client.GetObject(context.Background(), key, objectclient.GetOptions{})
		if err != nil {
			t.Fatalf("GetObject(%s): %v", key, err)
		}
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(r); err != nil {
			t.Fatalf("reading %s: %v", key, err)
		}
		r.Close()
		if buf.String() != wantBody {
			t.Errorf("object %s body = %q, want %q", key, buf.String(), wantBody)
		}
	}
	for _, oldKey := range []string{"d/f1", "d/sub/f2"} {
		if _, err := client.HeadObject(context.Background(), oldKey, objectclient.GetOptions{}); err == nil {
			t.Errorf("source object %s should no longer exist after rename", oldKey)
		}
	}
}

// Scenario 5: a directory with its sticky bit set, owned by root, forbids a
// non-owning, non-root caller from unlinking another user's file inside it.
func TestScenario_StickyBitForbidsUnlinkByNonOwner(t *testing.T) {
	d := testDrive(t, fake.New(), 0, 0)
	stickyDir := metadata.NewDirectory("/t/", time.Now(), 0, 0, os.ModeSticky|0777)
	entry := metadata.New("/t/x", 0, time.Now(), 1001, 1001, 0644, metadata.RegularFile, "", "")

	intruder := fuseops.OpHeader{Uid: 1002, Gid: 1002}
	if err := d.checkSticky(stickyDir, entry, intruder); err == nil {
		t.Errorf("a caller that owns neither the sticky dir nor the entry should be denied unlink")
	}

	owner := fuseops.OpHeader{Uid: 1001, Gid: 1001}
	if err := d.checkSticky(stickyDir, entry, owner); err != nil {
		t.Errorf("the entry's own owner should still be allowed to unlink it, got %v", err)
	}
}

// Scenario 6: a tree entry older than the configured stat-expiry triggers a
// re-HEAD on the next lookup. When the backing object hasn't changed, the
// node's identity (etag) is unchanged; when it has, resolveChild picks up
// the new content by growing a fresh metadata record over the same path.
func TestScenario_StaleTreeEntryTriggersRevalidatingHead(t *testing.T) {
	client := fake.New()
	d := testDrive(t, client, 1000, 1000)

	simClock := clock.NewSimulatedClock(time.Now())
	d.ctx.Clock = simClock

	d.seedDir("/d/", 1000, 1000)
	d.seedFile(t, client, "/d/f", 1000, 1000, 0644, []byte("v1"))

	n, ok := d.ctx.Tree.Find("/d/f")
	if !ok {
		t.Fatalf("seeded file should be in the tree")
	}
	n.MetaData().Refresh(simClock.Now())

	// Still within the freshness window: resolveChild must not re-HEAD,
	// so the tree node served back is the exact one already cached.
	cached, err := d.resolveChild(context.Background(), "/d/", "f")
	if err != nil {
		t.Fatalf("resolveChild (fresh): %v", err)
	}
	if cached != n {
		t.Errorf("resolveChild should return the cached node within the freshness window")
	}

	// Advance well past metadata.ttl-secs (60s in testDrive's config) and
	// change the backing object, simulating a server-side modification the
	// source confirms via a changed etag.
	simClock.AdvanceTime(2 * time.Minute)
	if _, err := client.PutObject(context.Background(), "d/f", 2, bytes.NewReader([]byte("v2")), objectclient.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	revalidated, err := d.resolveChild(context.Background(), "/d/", "f")
	if err != nil {
		t.Fatalf("resolveChild (stale): %v", err)
	}
	if revalidated.MetaData().Size() != 2 {
		t.Errorf("revalidated node size = %d, want 2 (picked up the new object)", revalidated.MetaData().Size())
	}
	if revalidated.MetaData().ETag() == n.MetaData().ETag() {
		t.Errorf("revalidated node should carry the new object's etag, not the stale one")
	}
}

// GetInodeAttributes is the kernel's periodic getattr() callback: an
// inode minted once must not be served stale attributes forever just
// because its own node object is still the same one in the inode table.
// refreshIfStale is what GetInodeAttributes calls to revalidate; it is
// exercised directly here, the same way resolveChild is exercised
// directly above, since a same-process unit test has no way to construct
// a real fuseops.GetInodeAttributesOp (see testDrive's comment).
func TestScenario_GetInodeAttributesRevalidatesStaleNode(t *testing.T) {
	client := fake.New()
	d := testDrive(t, client, 1000, 1000)

	simClock := clock.NewSimulatedClock(time.Now())
	d.ctx.Clock = simClock

	meta := d.seedFile(t, client, "/f", 1000, 1000, 0644, []byte("v1"))
	meta.Refresh(simClock.Now())

	fresh, err := d.refreshIfStale(context.Background(), "/f")
	if err != nil {
		t.Fatalf("refreshIfStale (fresh): %v", err)
	}
	if fresh.MetaData().Size() != 2 {
		t.Errorf("fresh attributes size = %d, want 2", fresh.MetaData().Size())
	}

	simClock.AdvanceTime(2 * time.Minute)
	if _, err := client.PutObject(context.Background(), "f", 4, bytes.NewReader([]byte("v2v2")), objectclient.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	revalidated, err := d.refreshIfStale(context.Background(), "/f")
	if err != nil {
		t.Fatalf("refreshIfStale (stale): %v", err)
	}
	if revalidated.MetaData().Size() != 4 {
		t.Errorf("refreshIfStale served stale size %d, want 4 after the backing object changed", revalidated.MetaData().Size())
	}
}

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

// Package perms implements the POSIX-style access check the filesystem
// runs before honoring a FUSE op against a node's owner/group/mode bits,
// including the uid/gid override and umask options a mount can be
// configured with.
package perms

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// AccessMask mirrors the access(2) request bits.
type AccessMask int

const (
	Read AccessMask = 1 << iota
	Write
	Execute
)

// Options carries the mount-wide overrides that affect every access
// check: an overridden uid/gid that is substituted for the caller's real
// identity, and a umask applied in place of a file's own mode bits.
type Options struct {
	OverrideUID *uint32
	OverrideGID *uint32
	Umask       *os.FileMode
}

// Subject describes the owner/permission bits of the node being checked.
type Subject struct {
	UID  uint32
	GID  uint32
	Mode os.FileMode // permission bits only
}

// GroupChecker reports whether uid belongs to gid, consulted when the caller's
// gid doesn't match the node's group directly. The filesystem has no
// access to the host's group database for arbitrary uids crossing a FUSE
// boundary, so this is always a narrow capability passed in rather than
// a syscall made directly from this package.
type GroupChecker interface {
	InGroup(uid, gid uint32) bool
}

// Check reports whether a caller with the given uid/gid may access a
// node matching Subject for the requested mask, applying opts' uid/gid
// override and umask. uid 0 (root) is always allowed.
func Check(subject Subject, callerUID, callerGID uint32, mask AccessMask, opts Options, groups GroupChecker) bool {
	if callerUID == 0 {
		return true
	}

	if opts.OverrideUID != nil && callerUID == *opts.OverrideUID {
		return true
	}
	if opts.OverrideUID != nil {
		callerUID = *opts.OverrideUID
	}
	if opts.OverrideGID != nil {
		callerGID = *opts.OverrideGID
	}

	mode := subject.Mode
	if opts.Umask != nil {
		mode = os.FileMode(0o777) &^ *opts.Umask
	}

	var allowedBits os.FileMode
	allowedBits |= mode & 0o007 // other bits always apply
	if callerUID == subject.UID {
		allowedBits |= mode & 0o700
	}
	if callerGID == subject.GID || (groups != nil && groups.InGroup(callerUID, subject.GID)) {
		allowedBits |= mode & 0o070
	}

	if allowedBits == 0 {
		return false
	}
	if mask&Execute != 0 && allowedBits&0o111 == 0 {
		return false
	}
	if mask&Write != 0 && allowedBits&0o222 == 0 {
		return false
	}
	if mask&Read != 0 && allowedBits&0o444 == 0 {
		return false
	}
	return true
}

// CheckStickyBit reports whether callerUID may remove/rename an entry
// inside a directory with the sticky bit set: only the directory's owner,
// the entry's owner, or root may do so.
func CheckStickyBit(dir Subject, entryOwnerUID, callerUID uint32) bool {
	if dir.Mode&os.ModeSticky == 0 {
		return true
	}
	return callerUID == 0 || callerUID == dir.UID || callerUID == entryOwnerUID
}

// MyUserAndGroup returns the uid/gid of the current process, the default
// owner for every inode a mount presents when file-system.uid/gid are left
// at -1.
func MyUserAndGroup() (uid uint32, gid uint32, err error) {
	u, err := user.Current()
	if err != nil {
		err = fmt.Errorf("user.Current: %w", err)
		return
	}

	uid64, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		err = fmt.Errorf("parsing uid %q: %w", u.Uid, err)
		return
	}

	gid64, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		err = fmt.Errorf("parsing gid %q: %w", u.Gid, err)
		return
	}

	uid, gid = uint32(uid64), uint32(gid64)
	return
}

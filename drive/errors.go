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
	"errors"

	"github.com/jacobsa/fuse"
	"github.com/qingstor-incubating/qsfs-fuse/internal/coreerr"
	"github.com/qingstor-incubating/qsfs-fuse/internal/filecache"
	"github.com/qingstor-incubating/qsfs-fuse/internal/objectclient"
)

// errnoFor translates an error surfaced by the tree, metadata manager,
// cache, transfer manager, or object client into the fuse.Errno the
// kernel should see, per spec §6's error -> errno table. Conditions
// with no cleaner match collapse to EIO, the same catch-all the kernel
// binding itself falls back to for an unrecognized error.
func errnoFor(err error) error {
	if err == nil {
		return nil
	}

	var coreErr *coreerr.Error
	if errors.As(err, &coreErr) {
		switch coreErr.Kind {
		case coreerr.InvalidArgument:
			return fuse.EINVAL
		case coreerr.PermissionDenied:
			return fuse.EACCES
		case coreerr.StickyBit:
			return fuse.EPERM
		case coreerr.StaleLocalState:
			return fuse.EIO
		case coreerr.CacheFull:
			return fuse.EIO
		}
		return fuse.EIO
	}

	var clientErr *objectclient.ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Kind {
		case objectclient.KindNotFound:
			return fuse.ENOENT
		case objectclient.KindParameterMissing:
			return fuse.EINVAL
		default:
			return fuse.EIO
		}
	}

	var cacheFullErr *filecache.CacheFullError
	if errors.As(err, &cacheFullErr) {
		return fuse.EIO
	}

	if errors.Is(err, objectclient.ErrNotFound) {
		return fuse.ENOENT
	}

	return fuse.EIO
}

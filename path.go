// Copyright 2015 Google Inc. All Rights Reserved.
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

package vfs

import (
	"golang.org/x/net/context"
)

// Copy the next path element out of path, skipping leading slashes and
// consuming trailing ones, and return the remainder. Elements longer than
// DirNameLen bytes are truncated to DirNameLen — a 15-byte component may
// therefore resolve to the wrong target, matching legacy behaviour.
//
// Examples:
//
//	SplitPathElem("a/bb/c")  = ("a", "bb/c", true)
//	SplitPathElem("///a//bb") = ("a", "bb", true)
//	SplitPathElem("a")       = ("a", "", true)
//	SplitPathElem("")        = SplitPathElem("////") = ("", "", false)
func SplitPathElem(path string) (name string, rest string, ok bool) {
	i := 0
	for i < len(path) && path[i] == '/' {
		i++
	}
	if i == len(path) {
		return
	}

	j := i
	for j < len(path) && path[j] != '/' {
		j++
	}

	name = path[i:j]
	if len(name) > DirNameLen {
		name = name[:DirNameLen]
	}

	for j < len(path) && path[j] == '/' {
		j++
	}

	rest = path[j:]
	ok = true
	return
}

// Look up and return the inode for a path name, starting from start for
// relative paths. The result is referenced but unlocked.
func (v *VFS) Namei(ctx context.Context, path string, start *Inode) (*Inode, error) {
	ip, _, err := v.namex(ctx, path, start, false)
	return ip, err
}

// Look up the parent directory of the final path element, returning it
// together with that element. The parent is returned *unlocked* but
// referenced; callers that go on to mutate it must Lock it themselves.
func (v *VFS) NameiParent(ctx context.Context, path string, start *Inode) (*Inode, string, error) {
	return v.namex(ctx, path, start, true)
}

// The generic walk underlying Namei and NameiParent.
//
// At most one inode sleep lock is held at any point: the current directory
// is unlocked and put before the child it resolved to is locked on the next
// iteration. This precludes parent/child deadlocks during concurrent walks.
func (v *VFS) namex(
	ctx context.Context,
	path string,
	start *Inode,
	wantParent bool) (*Inode, string, error) {
	var ip *Inode
	if len(path) > 0 && path[0] == '/' {
		ip = v.GetInode(RootDev, RootIno)
	} else {
		if start == nil {
			return nil, "", EINVAL
		}
		ip = start.Dup()
	}

	name, rest, ok := SplitPathElem(path)
	for ok {
		ip.Lock()

		if ip.Type != TypeDir {
			ip.UnlockPut()
			return nil, "", ENOTDIR
		}

		if wantParent && rest == "" {
			// Stop one level early, retaining the reference.
			ip.Unlock()
			return ip, name, nil
		}

		de, err := ip.Ops.DirLookup(ctx, ip, name)
		if err != nil {
			ip.UnlockPut()
			return nil, "", err
		}

		next := de.Inode
		de.Release()
		if next == nil {
			ip.UnlockPut()
			return nil, "", ENOENT
		}

		ip.UnlockPut()
		ip = next

		name, rest, ok = SplitPathElem(rest)
	}

	if wantParent {
		// The path named the root or had no final component.
		ip.Put()
		return nil, "", ENOENT
	}

	return ip, "", nil
}

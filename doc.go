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

// Package vfs implements the generic layer of a virtual file system: a
// uniform namespace and operation vocabulary (open, read, write, link,
// unlink, create, lookup, truncate) above pluggable backends.
//
// The package owns the objects shared between backends and callers — the
// in-memory inode table, the open file table, and dentry bundles — together
// with the reference counting, sleep locking, and path resolution rules that
// keep them coherent under concurrent access. Every filesystem-specific
// action is dispatched through an Ops vector implemented by a backend; see
// the xv6fs package for the disk-backed implementation and the pipe package
// for anonymous pipes.
//
// The lifecycle of an inode follows the classic kernel discipline:
//
//	ip := v.GetInode(dev, inum)
//	ip.Lock()
//	... examine and modify ip ...
//	ip.Unlock()
//	ip.Put()
//
// GetInode is separate from Lock so that callers can hold a long-term
// reference to an inode (as for an open file) while locking it only for
// short periods. Lock reads the on-disk inode into memory the first time it
// is acquired after the inode enters the table. Put is the only place
// references are released (DropRef merely undoes a lookup's increment while
// another reference is held); when the last reference goes away and the link
// count is zero, the inode and its content are freed on disk.
//
// Lock ordering: at most one inode sleep lock is held per goroutine during
// path resolution, and a parent is always unlocked and released before its
// child is locked. Block buffers nest inside inode locks, never the other
// way around.
package vfs

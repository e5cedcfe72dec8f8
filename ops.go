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

// An interface that must be implemented by filesystem backends to be mounted
// under the generic layer. One instance exists per filesystem type; the
// generic layer invokes it for every filesystem-specific action.
//
// Methods that perform disk I/O from a path- or file-level entry point take a
// context. Methods called from inode lock and release paths do not; they run
// to completion or panic (see the comment on the errno constants).
//
// Must be safe for concurrent access via all methods.
type Ops interface {
	///////////////////////////////////
	// Mount and superblock
	///////////////////////////////////

	// One-time filesystem-type initialization, e.g. reading and validating
	// the on-disk superblock. Called exactly once, before Mount.
	Init(ctx context.Context) error

	// Return an initialized superblock rooted at a valid inode. Called once
	// per filesystem instance.
	Mount(ctx context.Context, source string) (*Superblock, error)

	// Quiesce the filesystem instance. The single mounted root is never torn
	// down mid-flight; this exists so a shutdown path can flush state.
	Umount(ctx context.Context, sb *Superblock) error

	///////////////////////////////////
	// Inodes
	///////////////////////////////////

	// Allocate a fresh inode on disk and return it referenced but unlocked.
	// Fails with ENOSPC when no free slot remains on disk.
	AllocInode(ctx context.Context, sb *Superblock) (*Inode, error)

	// Flush all on-disk-visible inode fields (type, device numbers, link
	// count, size, block list). Must be called after every change to a field
	// that lives on disk.
	//
	// LOCKS_REQUIRED(ip)
	WriteInode(ip *Inode)

	// Drop the in-memory backend state hung off ip.Private. Called by Put
	// when the reference count falls to zero while nlink > 0.
	//
	// LOCKS_REQUIRED(ip)
	ReleaseInode(ip *Inode)

	// Permanently free the inode on disk. Called by Put when the reference
	// count falls to zero and nlink == 0, after Truncate and WriteInode.
	//
	// LOCKS_REQUIRED(ip)
	FreeInode(ip *Inode)

	// Release all data blocks owned by the inode and set its size to zero,
	// persisting the result.
	//
	// LOCKS_REQUIRED(ip)
	Truncate(ip *Inode)

	// Return the inode table entry for (dev, inum), materializing the
	// backend mirror if the entry is fresh. If incRef is false, undo the
	// implicit reference acquired by the table lookup.
	GetInode(dev uint32, inum uint32, incRef bool) *Inode

	// Materialize on-disk fields into ip.Private (and the generic mirror
	// fields) the first time the inode is locked after entering the table.
	//
	// LOCKS_REQUIRED(ip)
	UpdateLock(ip *Inode)

	///////////////////////////////////
	// Files
	///////////////////////////////////

	// Allocate a file object bound to ip, honouring the mode flags. For
	// device inodes, reject out-of-range major numbers with ENODEV.
	//
	// LOCKS_REQUIRED(ip)
	Open(ctx context.Context, ip *Inode, mode int) (*File, error)

	// Tear down a file object whose last reference has been released: drop
	// the owning inode via Put and free backend state. The generic layer
	// performs the reference counting; f is a detached copy whose table slot
	// has already been recycled.
	Close(ctx context.Context, f *File)

	// Copy up to len(p) bytes starting at off into p. Returns the number of
	// bytes copied; reads beyond the current size return 0.
	//
	// LOCKS_REQUIRED(ip)
	Read(ctx context.Context, ip *Inode, p []byte, off uint32) (int, error)

	// Symmetric to Read. Extends the size when writing past the end and
	// always persists the inode, bounded by the backend's maximum-file
	// policy (EFBIG beyond it, ENOSPC when the disk is full).
	//
	// LOCKS_REQUIRED(ip)
	Write(ctx context.Context, ip *Inode, p []byte, off uint32) (int, error)

	///////////////////////////////////
	// Directories
	///////////////////////////////////

	// Finalize backend state for a freshly linked child inode, e.g. device
	// major/minor numbers. target bundles (parent, name, child).
	//
	// LOCKS_REQUIRED(target.Inode)
	Create(ctx context.Context, dir *Inode, target *Dentry, typ int16, major int16, minor int16) error

	// Insert target (parent, name, child) into the parent directory. Fails
	// with EEXIST if the name is already present.
	//
	// LOCKS_REQUIRED(target.Parent)
	Link(ctx context.Context, target *Dentry) error

	// Remove the named entry from the parent directory.
	//
	// LOCKS_REQUIRED(target.Parent)
	Unlink(ctx context.Context, target *Dentry) error

	// Search dir for name. On a hit, return a fresh dentry bound to the
	// resolved child, which carries an inode reference. The caller owns the
	// dentry: it must Release it, and must either adopt the child reference
	// or Put it. A miss returns ENOENT.
	//
	// LOCKS_REQUIRED(dir)
	DirLookup(ctx context.Context, dir *Inode, name string) (*Dentry, error)

	// Return whether dir contains only "." and "..".
	//
	// LOCKS_REQUIRED(dir)
	IsDirEmpty(ctx context.Context, dir *Inode) bool
}

// A filesystem type known to the generic layer, pairing a name with the
// operations vector that implements it.
type FilesystemType struct {
	Name string
	Ops  Ops
}

// An optional interface for Ops implementations that need a reference to the
// VFS whose tables they serve (for GetInode, AllocFile, and friends). New
// calls Attach before any operation is dispatched.
type Attacher interface {
	Attach(v *VFS)
}

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
	"fmt"
	"sync"

	"github.com/jacobsa/syncutil"
	"golang.org/x/net/context"
)

// Geometry and table sizes shared across the system.
const (
	// The size in bytes of a disk block, everywhere: the block cache, the
	// backend's on-disk layout, and the write chunking policy all agree on
	// this value.
	BlockSize = 1024

	// The device and inode number of the root directory.
	RootDev = 1
	RootIno = 1

	// The maximum length of a path component. Longer components are
	// truncated, not rejected; see SplitPathElem.
	DirNameLen = 14

	// The maximum length of a path accepted by the system-call layer.
	MaxPath = 128

	// The maximum number of blocks a single atomic filesystem operation may
	// dirty. Bounds the per-chunk working set of File.Write.
	MaxOpBlocks = 10

	// Capacities of the in-memory tables. Exhausting the inode table is
	// fatal; exhausting the file table is ENFILE.
	NumInodes  = 50
	NumFiles   = 100
	NumDevices = 10
)

// File types stored in Inode.Type.
const (
	// Type zero is reserved to denote "freed". A caller that observes it
	// after Put must not touch the inode's backend state.
	TypeFree int16 = iota
	TypeDir
	TypeFile
	TypeDevice
)

// Open mode flags accepted by open.
const (
	ReadOnly  = 0x000
	WriteOnly = 0x001
	ReadWrite = 0x002
	Create    = 0x200
	Truncate  = 0x400
)

// Per-mount root object: the filesystem type and operations table, the root
// inode, and the backend's on-disk superblock image.
type Superblock struct {
	Type *FilesystemType
	Ops  Ops

	// Reserved for nested mounts; nil for the single mounted root.
	Parent     *Superblock
	Mountpoint *Dentry

	Root    *Inode
	Device  string
	Private interface{}
}

// Functions implementing a device major number. Read and write move bytes
// between the device and p, returning the count moved.
type DevSw struct {
	Read  func(p []byte) (int, error)
	Write func(p []byte) (int, error)
}

// VFS ties together the shared tables of the generic layer: the inode table,
// the open file table, the device switch, and the mounted root. Create one
// with New, then Mount it.
type VFS struct {
	fstype *FilesystemType

	/////////////////////////
	// Mutable state
	/////////////////////////

	// Guards the allocation fields (ref, Dev, Inum) of every inode table
	// entry. All other inode fields are guarded by the per-inode sleep lock.
	//
	// Order: may not be held while acquiring an inode sleep lock, except in
	// Put where ref == 1 guarantees the acquisition cannot block.
	itableMu syncutil.InvariantMutex
	inodes   [NumInodes]Inode

	// Guards the ref field of every file table entry.
	ftableMu syncutil.InvariantMutex
	files    [NumFiles]File

	devMu sync.RWMutex
	devsw [NumDevices]DevSw // GUARDED_BY(devMu)

	root *Superblock // set once by Mount
}

// Create a VFS that dispatches to the supplied filesystem type. The result
// is not usable until Mount succeeds.
func New(fstype *FilesystemType) *VFS {
	v := &VFS{
		fstype: fstype,
	}

	for i := range v.inodes {
		v.inodes[i].v = v
	}
	for i := range v.files {
		v.files[i].v = v
	}

	v.itableMu = syncutil.NewInvariantMutex(v.checkInodeInvariants)
	v.ftableMu = syncutil.NewInvariantMutex(v.checkFileInvariants)

	if a, ok := fstype.Ops.(Attacher); ok {
		a.Attach(v)
	}

	return v
}

// Initialize the filesystem type and mount its root. Call once.
func (v *VFS) Mount(ctx context.Context, source string) error {
	if v.root != nil {
		panic("Mount called twice")
	}

	if err := v.fstype.Ops.Init(ctx); err != nil {
		return fmt.Errorf("Init: %v", err)
	}

	sb, err := v.fstype.Ops.Mount(ctx, source)
	if err != nil {
		return fmt.Errorf("Mount: %v", err)
	}

	sb.Type = v.fstype
	v.root = sb

	getLogger().Printf("mounted %q root (dev %v, inum %v)",
		source, sb.Root.Dev, sb.Root.Inum)

	return nil
}

// Return the mounted root superblock, or nil before Mount.
func (v *VFS) Root() *Superblock {
	return v.root
}

// Register the device functions for a major number. Registration happens at
// boot, before device inodes are opened.
func (v *VFS) RegisterDevice(major int16, sw DevSw) {
	if major < 0 || major >= NumDevices {
		panic(fmt.Sprintf("RegisterDevice: bad major %v", major))
	}

	v.devMu.Lock()
	defer v.devMu.Unlock()

	v.devsw[major] = sw
}

// Look up the device functions for a major number.
func (v *VFS) device(major int16) (DevSw, bool) {
	if major < 0 || major >= NumDevices {
		return DevSw{}, false
	}

	v.devMu.RLock()
	defer v.devMu.RUnlock()

	return v.devsw[major], true
}

////////////////////////////////////////////////////////////////////////
// Invariants
////////////////////////////////////////////////////////////////////////

// LOCKS_REQUIRED(v.itableMu)
func (v *VFS) checkInodeInvariants() {
	// INVARIANT: No entry has a negative reference count.
	//
	// INVARIANT: No two live entries name the same (dev, inum).
	type key struct{ dev, inum uint32 }
	live := make(map[key]struct{})

	for i := range v.inodes {
		ip := &v.inodes[i]
		if ip.ref < 0 {
			panic(fmt.Sprintf("negative ref for inode table entry %v", i))
		}

		if ip.ref > 0 {
			k := key{ip.Dev, ip.Inum}
			if _, ok := live[k]; ok {
				panic(fmt.Sprintf("duplicate table entry for (%v, %v)", ip.Dev, ip.Inum))
			}
			live[k] = struct{}{}
		}
	}
}

// LOCKS_REQUIRED(v.ftableMu)
func (v *VFS) checkFileInvariants() {
	for i := range v.files {
		f := &v.files[i]

		// INVARIANT: No entry has a negative reference count.
		if f.ref < 0 {
			panic(fmt.Sprintf("negative ref for file table entry %v", i))
		}

		// INVARIANT: No entry is bound to both an inode and a pipe.
		if f.Inode != nil && f.Pipe != nil {
			panic(fmt.Sprintf("file table entry %v is both inode and pipe", i))
		}
	}
}

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
	"github.com/jacobsa/vfs/internal/sleeplock"
)

// In-memory representation of one unnamed file, identified by (device, inode
// number). Entries live in the VFS's fixed-size inode table; they are handed
// out by GetInode and recycled when the last reference is Put.
type Inode struct {
	// The operations table and owning superblock, set when the entry is
	// claimed. Immutable while ref > 0.
	Ops Ops
	SB  *Superblock

	// The identity of the entry. GUARDED_BY(v.itableMu).
	Dev  uint32
	Inum uint32

	// The number of live pointers to this entry: dentries, open files, and
	// process working directories. GUARDED_BY(v.itableMu).
	ref int

	lk sleeplock.Mutex

	// The fields below mirror the on-disk inode as of the last WriteInode.
	// They are meaningless until the first Lock materializes them.
	//
	// GUARDED_BY(lk)
	Type  int16
	Major int16
	Minor int16
	Nlink int16
	Size  uint32

	// The backend's mirror of the on-disk inode. nil means "present in the
	// table, disk fields not yet materialized" — the next Lock must fill it
	// in via Ops.UpdateLock.
	//
	// GUARDED_BY(lk)
	Private interface{}

	v *VFS
}

// Metadata snapshot copied out of a locked inode by Inode.Stat.
type Stat struct {
	Dev   uint32
	Ino   uint32
	Type  int16
	Nlink int16
	Size  uint32
}

// Find the inode with number inum on device dev and return the in-memory
// copy with its reference count incremented. Does not lock the inode and
// does not read it from disk.
//
// Panics when the table is full; running out of in-memory inodes is a
// capacity planning bug, not a user mistake.
func (v *VFS) GetInode(dev uint32, inum uint32) *Inode {
	v.itableMu.Lock()
	defer v.itableMu.Unlock()

	// Is the inode already in the table? Remember the first empty slot as we
	// scan.
	var empty *Inode
	for i := range v.inodes {
		ip := &v.inodes[i]
		if ip.ref > 0 && ip.Dev == dev && ip.Inum == inum {
			ip.ref++
			return ip
		}

		if empty == nil && ip.ref == 0 {
			empty = ip
		}
	}

	// Recycle an entry.
	if empty == nil {
		panic("GetInode: no free inode table entries")
	}

	ip := empty
	ip.Dev = dev
	ip.Inum = inum
	ip.ref = 1
	ip.Ops = v.fstype.Ops
	ip.SB = v.root
	ip.Private = nil

	return ip
}

// Increment the reference count. Returns ip to enable the
// ip := other.Dup() idiom.
func (ip *Inode) Dup() *Inode {
	ip.v.itableMu.Lock()
	defer ip.v.itableMu.Unlock()

	if ip.ref < 1 {
		panic("inode.Dup: no refs")
	}
	ip.ref++

	return ip
}

// Acquire the inode's sleep lock, reading the on-disk inode into memory if
// this is the first acquisition since the entry was claimed.
func (ip *Inode) Lock() {
	if ip == nil || ip.refCount() < 1 {
		panic("inode.Lock: no refs")
	}

	ip.lk.Lock()

	if ip.Private == nil {
		ip.Ops.UpdateLock(ip)
	}
}

// Release the inode's sleep lock.
func (ip *Inode) Unlock() {
	if ip == nil {
		panic("inode.Unlock: nil inode")
	}
	if !ip.lk.Held() {
		panic("inode.Unlock: lock not held")
	}
	if ip.refCount() < 1 {
		panic("inode.Unlock: no refs")
	}

	ip.lk.Unlock()
}

// Drop a reference to an in-memory inode. If that was the last reference the
// table entry can be recycled; if additionally the inode has no links, the
// inode and its content are freed on disk.
//
// Apart from DropRef, which only undoes a lookup's increment while another
// reference is held, Put is the only place references are dropped, and it
// always decrements —
// including for entries that were admitted to the table but never locked
// (Private still nil), which have no backend state to tear down.
func (ip *Inode) Put() {
	v := ip.v

	v.itableMu.Lock()

	if ip.ref == 1 && ip.Private != nil {
		// ref == 1 means no other holder exists, so this acquisition cannot
		// block or deadlock. The table lock is dropped across the teardown,
		// which sleeps on buffer I/O; the held sleep lock keeps the entry
		// from being observed mid-teardown.
		ip.lk.Lock()
		v.itableMu.Unlock()

		if ip.Nlink == 0 {
			// No links and no other references: truncate and free.
			ip.Type = TypeFree
			ip.Ops.Truncate(ip)
			ip.Ops.WriteInode(ip)
			ip.Ops.FreeInode(ip)
		} else {
			ip.Ops.WriteInode(ip)
			ip.Ops.ReleaseInode(ip)
		}

		ip.lk.Unlock()
		v.itableMu.Lock()
	}

	ip.ref--
	if ip.ref < 0 {
		panic("inode.Put: ref underflow")
	}

	v.itableMu.Unlock()
}

// Undo a reference increment without the release semantics of Put. For use
// by backends implementing Ops.GetInode with incRef == false, where the
// caller knows another reference keeps the inode live.
func (ip *Inode) DropRef() {
	ip.v.itableMu.Lock()
	defer ip.v.itableMu.Unlock()

	if ip.ref < 1 {
		panic("inode.DropRef: no refs")
	}
	ip.ref--
}

// Common idiom: unlock, then put.
func (ip *Inode) UnlockPut() {
	ip.Unlock()
	ip.Put()
}

// Copy stat information out of the inode.
//
// LOCKS_REQUIRED(ip)
func (ip *Inode) Stat() Stat {
	if !ip.lk.Held() {
		panic("inode.Stat: lock not held")
	}

	return Stat{
		Dev:   ip.Dev,
		Ino:   ip.Inum,
		Type:  ip.Type,
		Nlink: ip.Nlink,
		Size:  ip.Size,
	}
}

// Return whether the sleep lock is held. For use in precondition checks by
// code that requires the caller to have locked the inode.
func (ip *Inode) LockHeld() bool {
	return ip.lk.Held()
}

func (ip *Inode) refCount() int {
	ip.v.itableMu.Lock()
	defer ip.v.itableMu.Unlock()

	return ip.ref
}

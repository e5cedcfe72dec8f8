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

import "sync"

// A name→inode binding within a directory, used as a short-lived descriptor
// that communicates (parent, name, child) to Link, Unlink, and Create in one
// bundle. Dentries are never authoritative: every lookup re-reads the
// directory.
//
// A dentry is owned by whoever allocated it (the caller of NewDentry, or the
// caller of DirLookup for returned dentries) and must be given back with
// Release.
type Dentry struct {
	Ops    Ops
	Parent *Inode
	Inode  *Inode

	// At most DirNameLen bytes; longer names are truncated before they get
	// here.
	Name string

	IsMount bool
	Deleted bool

	Private interface{}
}

// The allocation pool standing in for a bounded dentry table. Dentries are
// small and short-lived; the pool keeps the common lookup path from
// allocating.
var dentryPool = sync.Pool{
	New: func() interface{} { return new(Dentry) },
}

// Allocate a dentry binding (parent, name, child). The dentry does not take
// its own references on the inodes; it borrows the caller's.
func NewDentry(parent *Inode, child *Inode, name string) *Dentry {
	d := dentryPool.Get().(*Dentry)
	d.Parent = parent
	d.Inode = child
	d.Name = name

	if parent != nil {
		d.Ops = parent.Ops
	}

	return d
}

// Return the dentry to the pool. The caller must not touch it afterwards.
// Releasing a dentry does not put the inodes it points at.
func (d *Dentry) Release() {
	*d = Dentry{}
	dentryPool.Put(d)
}

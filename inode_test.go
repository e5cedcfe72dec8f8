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

package vfs_test

import (
	"testing"

	. "github.com/jacobsa/ogletest"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/vfs"
	"golang.org/x/net/context"
)

func TestVFS(t *testing.T) { RunTests(t) }

////////////////////////////////////////////////////////////////////////
// Boilerplate
////////////////////////////////////////////////////////////////////////

const (
	fileInum      = 2
	dirInum       = 3
	nestedInum    = 4
	unlinkedInum  = 5
	untouchedInum = 6
)

type InodeTableTest struct {
	ctx context.Context

	fs *fakeFS
	v  *vfs.VFS
}

func init() { RegisterTestSuite(&InodeTableTest{}) }

func (t *InodeTableTest) SetUp(ti *TestInfo) {
	syncutil.EnableInvariantChecking()
	t.ctx = context.Background()

	t.fs = newFakeFS(map[uint32]*fakeInode{
		vfs.RootIno: {
			typ:   vfs.TypeDir,
			nlink: 1,
			children: map[string]uint32{
				"a": fileInum,
				"d": dirInum,
			},
		},
		fileInum: {typ: vfs.TypeFile, nlink: 1, size: 11},
		dirInum: {
			typ:   vfs.TypeDir,
			nlink: 2,
			children: map[string]uint32{
				"b": nestedInum,
			},
		},
		nestedInum:    {typ: vfs.TypeFile, nlink: 1},
		unlinkedInum:  {typ: vfs.TypeFile, nlink: 0},
		untouchedInum: {typ: vfs.TypeFile, nlink: 1},
	})

	t.v = vfs.New(&vfs.FilesystemType{Name: "fake", Ops: t.fs})
	AssertEq(nil, t.v.Mount(t.ctx, "fake"))
}

////////////////////////////////////////////////////////////////////////
// Table behavior
////////////////////////////////////////////////////////////////////////

func (t *InodeTableTest) SameEntryForSameIdentity() {
	i1 := t.v.GetInode(vfs.RootDev, fileInum)
	i2 := t.v.GetInode(vfs.RootDev, fileInum)

	ExpectEq(i1, i2)

	i1.Put()
	i2.Put()
}

func (t *InodeTableTest) LockMaterializesExactlyOnce() {
	ip := t.v.GetInode(vfs.RootDev, fileInum)
	AssertEq(nil, ip.Private)

	ip.Lock()
	ExpectNe(nil, ip.Private)
	ExpectEq(vfs.TypeFile, ip.Type)
	ExpectEq(11, ip.Size)
	ip.Unlock()

	updatesAfterFirst, _, _, _, _ := t.fs.counts()

	ip.Lock()
	ip.Unlock()

	updates, _, _, _, _ := t.fs.counts()
	ExpectEq(updatesAfterFirst, updates)

	ip.Put()
}

func (t *InodeTableTest) PutWritesBackLinkedInodes() {
	ip := t.v.GetInode(vfs.RootDev, fileInum)
	ip.Lock()
	ip.Unlock()

	ip.Put()

	_, writes, releases, frees, truncs := t.fs.counts()
	ExpectEq(1, writes)
	ExpectEq(1, releases)
	ExpectEq(0, frees)
	ExpectEq(0, truncs)
}

func (t *InodeTableTest) PutFreesUnlinkedInodes() {
	ip := t.v.GetInode(vfs.RootDev, unlinkedInum)
	ip.Lock()
	AssertEq(0, ip.Nlink)
	ip.Unlock()

	ip.Put()

	_, writes, releases, frees, truncs := t.fs.counts()
	ExpectEq(1, truncs)
	ExpectEq(1, writes)
	ExpectEq(1, frees)
	ExpectEq(0, releases)
}

func (t *InodeTableTest) PutDecrementsUnmaterializedEntries() {
	// An inode that enters the table but is never locked must still give its
	// slot back on Put. If it leaked, cycling more distinct inodes than the
	// table holds would panic.
	for i := 0; i < 2*vfs.NumInodes; i++ {
		ip := t.v.GetInode(vfs.RootDev, uint32(1000+i))
		ip.Put()
	}

	_, writes, releases, frees, truncs := t.fs.counts()
	ExpectEq(0, writes)
	ExpectEq(0, releases)
	ExpectEq(0, frees)
	ExpectEq(0, truncs)
}

func (t *InodeTableTest) DupKeepsEntryLive() {
	i1 := t.v.GetInode(vfs.RootDev, fileInum)
	i1.Lock()
	i1.Unlock()

	i2 := i1.Dup()
	AssertEq(i1, i2)

	i1.Put()

	// The second reference must keep the entry from being torn down.
	_, writes, releases, _, _ := t.fs.counts()
	ExpectEq(0, writes)
	ExpectEq(0, releases)

	i2.Put()
}

func (t *InodeTableTest) StatRequiresLock() {
	ip := t.v.GetInode(vfs.RootDev, fileInum)
	defer ip.Put()

	panicked := func() (p bool) {
		defer func() { p = recover() != nil }()
		ip.Stat()
		return
	}()
	ExpectTrue(panicked)

	ip.Lock()
	st := ip.Stat()
	ip.Unlock()

	ExpectEq(fileInum, st.Ino)
	ExpectEq(vfs.TypeFile, st.Type)
	ExpectEq(11, st.Size)
}

////////////////////////////////////////////////////////////////////////
// Path resolution
////////////////////////////////////////////////////////////////////////

func (t *InodeTableTest) ResolveRoot() {
	ip, err := t.v.Namei(t.ctx, "/", nil)

	AssertEq(nil, err)
	ExpectEq(uint32(vfs.RootIno), ip.Inum)

	ip.Put()
}

func (t *InodeTableTest) ResolveNested() {
	ip, err := t.v.Namei(t.ctx, "/d/b", nil)

	AssertEq(nil, err)
	ExpectEq(uint32(nestedInum), ip.Inum)
	ExpectFalse(ip.LockHeld())

	ip.Put()
}

func (t *InodeTableTest) ResolveSlashRuns() {
	ip, err := t.v.Namei(t.ctx, "///d//b///", nil)

	AssertEq(nil, err)
	ExpectEq(uint32(nestedInum), ip.Inum)

	ip.Put()
}

func (t *InodeTableTest) ResolveRelative() {
	start, err := t.v.Namei(t.ctx, "/d", nil)
	AssertEq(nil, err)

	ip, err := t.v.Namei(t.ctx, "b", start)
	AssertEq(nil, err)
	ExpectEq(uint32(nestedInum), ip.Inum)

	ip.Put()
	start.Put()
}

func (t *InodeTableTest) ResolveRelativeWithoutStart() {
	_, err := t.v.Namei(t.ctx, "b", nil)
	ExpectEq(vfs.EINVAL, err)
}

func (t *InodeTableTest) ResolveMissing() {
	_, err := t.v.Namei(t.ctx, "/nope", nil)
	ExpectEq(vfs.ENOENT, err)
}

func (t *InodeTableTest) ResolveThroughFile() {
	_, err := t.v.Namei(t.ctx, "/a/b", nil)
	ExpectEq(vfs.ENOTDIR, err)
}

func (t *InodeTableTest) ParentOfNested() {
	dp, name, err := t.v.NameiParent(t.ctx, "/d/b", nil)

	AssertEq(nil, err)
	ExpectEq(uint32(dirInum), dp.Inum)
	ExpectEq("b", name)

	// The parent comes back referenced but unlocked; the caller locks.
	ExpectFalse(dp.LockHeld())

	dp.Put()
}

func (t *InodeTableTest) ParentOfMissingFinalComponent() {
	// The final component need not exist; only the walk to the parent does.
	dp, name, err := t.v.NameiParent(t.ctx, "/d/newfile", nil)

	AssertEq(nil, err)
	ExpectEq(uint32(dirInum), dp.Inum)
	ExpectEq("newfile", name)

	dp.Put()
}

func (t *InodeTableTest) ParentOfRoot() {
	_, _, err := t.v.NameiParent(t.ctx, "/", nil)
	ExpectEq(vfs.ENOENT, err)
}

func (t *InodeTableTest) ResolutionIsBalanced() {
	// Every walk must drop the references it takes: repeating a resolution
	// more times than the table has entries panics if any leak.
	for i := 0; i < 2*vfs.NumInodes; i++ {
		ip, err := t.v.Namei(t.ctx, "/d/b", nil)
		AssertEq(nil, err)
		ip.Put()

		_, err = t.v.Namei(t.ctx, "/d/nope", nil)
		AssertEq(vfs.ENOENT, err)
	}
}

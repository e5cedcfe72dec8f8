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
	"sync"

	"github.com/jacobsa/vfs"
	"golang.org/x/net/context"
)

// A trivial in-memory backend for exercising the generic layer: a static
// set of inodes with directory children, plus counters for the lifecycle
// callbacks the tests care about.
type fakeInode struct {
	typ      int16
	nlink    int16
	size     uint32
	children map[string]uint32
}

type fakeFS struct {
	v *vfs.VFS

	mu sync.Mutex

	// The "disk": inode number → attributes.
	inodes map[uint32]*fakeInode // GUARDED_BY(mu)

	// Lifecycle counters.
	updates  int // GUARDED_BY(mu)
	writes   int // GUARDED_BY(mu)
	releases int // GUARDED_BY(mu)
	frees    int // GUARDED_BY(mu)
	truncs   int // GUARDED_BY(mu)
}

func newFakeFS(inodes map[uint32]*fakeInode) *fakeFS {
	return &fakeFS{inodes: inodes}
}

func (fs *fakeFS) counts() (updates, writes, releases, frees, truncs int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.updates, fs.writes, fs.releases, fs.frees, fs.truncs
}

func (fs *fakeFS) Attach(v *vfs.VFS) {
	fs.v = v
}

func (fs *fakeFS) Init(ctx context.Context) error {
	return nil
}

func (fs *fakeFS) Mount(ctx context.Context, source string) (*vfs.Superblock, error) {
	root := fs.GetInode(vfs.RootDev, vfs.RootIno, true)
	sb := &vfs.Superblock{
		Ops:    fs,
		Root:   root,
		Device: source,
	}
	root.SB = sb

	return sb, nil
}

func (fs *fakeFS) Umount(ctx context.Context, sb *vfs.Superblock) error {
	return nil
}

func (fs *fakeFS) load(ip *vfs.Inode) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.updates++

	d := fs.inodes[ip.Inum]
	if d == nil {
		panic("fakeFS.load: unknown inode")
	}

	ip.Type = d.typ
	ip.Nlink = d.nlink
	ip.Size = d.size
	ip.Private = d
}

func (fs *fakeFS) GetInode(dev uint32, inum uint32, incRef bool) *vfs.Inode {
	ip := fs.v.GetInode(dev, inum)
	if !incRef {
		ip.DropRef()
	}

	if ip.Private == nil {
		fs.load(ip)
	}

	return ip
}

func (fs *fakeFS) UpdateLock(ip *vfs.Inode) {
	fs.load(ip)
}

func (fs *fakeFS) WriteInode(ip *vfs.Inode) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.writes++

	d := ip.Private.(*fakeInode)
	d.typ = ip.Type
	d.nlink = ip.Nlink
	d.size = ip.Size
}

func (fs *fakeFS) ReleaseInode(ip *vfs.Inode) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.releases++
	ip.Private = nil
}

func (fs *fakeFS) FreeInode(ip *vfs.Inode) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.frees++
	ip.Private = nil
}

func (fs *fakeFS) Truncate(ip *vfs.Inode) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.truncs++
	ip.Size = 0
}

func (fs *fakeFS) DirLookup(ctx context.Context, dir *vfs.Inode, name string) (*vfs.Dentry, error) {
	d := dir.Private.(*fakeInode)

	inum, ok := d.children[name]
	if !ok {
		return nil, vfs.ENOENT
	}

	child := fs.GetInode(dir.Dev, inum, true)
	return vfs.NewDentry(dir, child, name), nil
}

// The resolver and table tests never reach the operations below.

func (fs *fakeFS) AllocInode(ctx context.Context, sb *vfs.Superblock) (*vfs.Inode, error) {
	panic("fakeFS.AllocInode not implemented")
}

func (fs *fakeFS) Open(ctx context.Context, ip *vfs.Inode, mode int) (*vfs.File, error) {
	panic("fakeFS.Open not implemented")
}

func (fs *fakeFS) Close(ctx context.Context, f *vfs.File) {
	panic("fakeFS.Close not implemented")
}

func (fs *fakeFS) Read(ctx context.Context, ip *vfs.Inode, p []byte, off uint32) (int, error) {
	panic("fakeFS.Read not implemented")
}

func (fs *fakeFS) Write(ctx context.Context, ip *vfs.Inode, p []byte, off uint32) (int, error) {
	panic("fakeFS.Write not implemented")
}

func (fs *fakeFS) Create(ctx context.Context, dir *vfs.Inode, target *vfs.Dentry, typ int16, major int16, minor int16) error {
	panic("fakeFS.Create not implemented")
}

func (fs *fakeFS) Link(ctx context.Context, target *vfs.Dentry) error {
	panic("fakeFS.Link not implemented")
}

func (fs *fakeFS) Unlink(ctx context.Context, target *vfs.Dentry) error {
	panic("fakeFS.Unlink not implemented")
}

func (fs *fakeFS) IsDirEmpty(ctx context.Context, dir *vfs.Inode) bool {
	panic("fakeFS.IsDirEmpty not implemented")
}

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

package xv6fs

import (
	"fmt"

	"github.com/jacobsa/vfs"
	"github.com/jacobsa/vfs/buf"
	"golang.org/x/net/context"
)

// The backend's in-memory mirror of an on-disk inode, hung off
// vfs.Inode.Private. Type, device numbers, link count, and size live on the
// generic inode; only the block list is backend-specific.
type inodeState struct {
	// GUARDED_BY(the owning inode's sleep lock)
	addrs [NDirect + 1]uint32
}

// FileSystem implements vfs.Ops over a block device holding the classic
// disk layout. Create one with New, hand it to vfs.New inside a
// FilesystemType, then Mount.
type FileSystem struct {
	dev   uint32
	cache *buf.Cache

	v *vfs.VFS // set by Attach before any dispatch

	// The on-disk superblock image, read once by Init and immutable
	// afterwards.
	sb Dsuperblock
}

// Create a backend for the filesystem on device dev, performing all block
// I/O through cache.
func New(dev uint32, cache *buf.Cache) *FileSystem {
	return &FileSystem{
		dev:   dev,
		cache: cache,
	}
}

// Attach is called by vfs.New so the backend can reach the inode and file
// tables.
func (fs *FileSystem) Attach(v *vfs.VFS) {
	fs.v = v
}

// Read and validate the on-disk superblock. A magic mismatch means the
// device does not hold a filesystem; mounting garbage is fatal.
func (fs *FileSystem) Init(ctx context.Context) error {
	bp := fs.cache.Read(fs.dev, 1)
	fs.sb = decodeSuperblock(bp.Data[:])
	bp.Release()

	if fs.sb.Magic != FSMagic {
		panic(fmt.Sprintf("xv6fs: bad superblock magic %#x", fs.sb.Magic))
	}

	return nil
}

// Return a superblock rooted at the filesystem's root directory inode.
func (fs *FileSystem) Mount(ctx context.Context, source string) (*vfs.Superblock, error) {
	root := fs.GetInode(fs.dev, vfs.RootIno, true)

	sb := &vfs.Superblock{
		Ops:     fs,
		Root:    root,
		Device:  source,
		Private: &fs.sb,
	}
	root.SB = sb

	return sb, nil
}

// Writes are write-through, so there is nothing to flush; the single
// mounted root only quiesces.
func (fs *FileSystem) Umount(ctx context.Context, sb *vfs.Superblock) error {
	return nil
}

////////////////////////////////////////////////////////////////////////
// Blocks
////////////////////////////////////////////////////////////////////////

// Zero a block on disk.
func (fs *FileSystem) bzero(blockno uint32) {
	bp := fs.cache.Read(fs.dev, blockno)
	for i := range bp.Data {
		bp.Data[i] = 0
	}
	bp.Write()
	bp.Release()
}

// Allocate a zeroed disk block. Fails with ENOSPC when the bitmap has no
// clear bits.
func (fs *FileSystem) balloc() (uint32, error) {
	for b := uint32(0); b < fs.sb.Size; b += BPB {
		bp := fs.cache.Read(fs.dev, bblock(b, &fs.sb))
		for bi := uint32(0); bi < BPB && b+bi < fs.sb.Size; bi++ {
			m := byte(1) << (bi % 8)
			if bp.Data[bi/8]&m == 0 {
				bp.Data[bi/8] |= m
				bp.Write()
				bp.Release()
				fs.bzero(b + bi)
				return b + bi, nil
			}
		}
		bp.Release()
	}

	return 0, vfs.ENOSPC
}

// Free a disk block. Freeing a block that is already free means the block
// list and the bitmap disagree, which is corruption.
func (fs *FileSystem) bfree(b uint32) {
	bp := fs.cache.Read(fs.dev, bblock(b, &fs.sb))
	bi := b % BPB
	m := byte(1) << (bi % 8)
	if bp.Data[bi/8]&m == 0 {
		panic("bfree: freeing free block")
	}
	bp.Data[bi/8] &^= m
	bp.Write()
	bp.Release()
}

// Return the disk address of the bn'th logical block of ip, allocating it
// (and the indirect block) as necessary. An index beyond direct+indirect
// addressing is a caller bug.
//
// LOCKS_REQUIRED(ip)
func (fs *FileSystem) bmap(ip *vfs.Inode, bn uint32) (uint32, error) {
	state := ip.Private.(*inodeState)

	if bn < NDirect {
		addr := state.addrs[bn]
		if addr == 0 {
			var err error
			if addr, err = fs.balloc(); err != nil {
				return 0, err
			}
			state.addrs[bn] = addr
		}
		return addr, nil
	}
	bn -= NDirect

	if bn < NIndirect {
		// Load the indirect block, allocating if necessary.
		iaddr := state.addrs[NDirect]
		if iaddr == 0 {
			var err error
			if iaddr, err = fs.balloc(); err != nil {
				return 0, err
			}
			state.addrs[NDirect] = iaddr
		}

		bp := fs.cache.Read(fs.dev, iaddr)
		addr := readAddr(bp.Data[:], bn)
		if addr == 0 {
			var err error
			if addr, err = fs.balloc(); err != nil {
				bp.Release()
				return 0, err
			}
			writeAddr(bp.Data[:], bn, addr)
			bp.Write()
		}
		bp.Release()
		return addr, nil
	}

	panic("bmap: out of range")
}

func readAddr(p []byte, i uint32) uint32 {
	return uint32(p[4*i]) | uint32(p[4*i+1])<<8 | uint32(p[4*i+2])<<16 | uint32(p[4*i+3])<<24
}

func writeAddr(p []byte, i uint32, a uint32) {
	p[4*i] = byte(a)
	p[4*i+1] = byte(a >> 8)
	p[4*i+2] = byte(a >> 16)
	p[4*i+3] = byte(a >> 24)
}

////////////////////////////////////////////////////////////////////////
// Inodes
////////////////////////////////////////////////////////////////////////

// Read the on-disk inode into the generic fields and the backend mirror.
func (fs *FileSystem) loadInode(ip *vfs.Inode) {
	bp := fs.cache.Read(ip.Dev, iblock(ip.Inum, &fs.sb))
	di := decodeDinode(dinodeSlot(bp.Data[:], ip.Inum))
	bp.Release()

	ip.Type = di.Type
	ip.Major = di.Major
	ip.Minor = di.Minor
	ip.Nlink = di.Nlink
	ip.Size = di.Size

	state := &inodeState{}
	state.addrs = di.Addrs
	ip.Private = state
}

// Return the inode table entry for (dev, inum), materializing the disk
// fields if the entry is fresh.
func (fs *FileSystem) GetInode(dev uint32, inum uint32, incRef bool) *vfs.Inode {
	ip := fs.v.GetInode(dev, inum)
	if !incRef {
		ip.DropRef()
	}

	if ip.Private == nil {
		fs.loadInode(ip)
	}

	return ip
}

// Materialize the disk fields the first time the inode is locked after
// entering the table.
//
// LOCKS_REQUIRED(ip)
func (fs *FileSystem) UpdateLock(ip *vfs.Inode) {
	fs.loadInode(ip)
}

// Allocate a fresh inode on disk, returning it referenced but unlocked. The
// slot is claimed with a placeholder type; the caller sets and persists the
// real one.
func (fs *FileSystem) AllocInode(ctx context.Context, sb *vfs.Superblock) (*vfs.Inode, error) {
	for inum := uint32(1); inum < fs.sb.Ninodes; inum++ {
		bp := fs.cache.Read(fs.dev, iblock(inum, &fs.sb))
		slot := dinodeSlot(bp.Data[:], inum)
		di := decodeDinode(slot)
		if di.Type == vfs.TypeFree {
			di = dinode{Type: vfs.TypeFile}
			encodeDinode(&di, slot)
			bp.Write() // mark it allocated on the disk
			bp.Release()

			ip := fs.GetInode(fs.dev, inum, true)
			ip.SB = sb
			return ip, nil
		}
		bp.Release()
	}

	getLogger().Printf("AllocInode: out of inodes on dev %v", fs.dev)
	return nil, vfs.ENOSPC
}

// Copy the in-memory inode to disk. Must be called after every change to a
// field that lives on disk, including block-list changes made by bmap.
//
// LOCKS_REQUIRED(ip)
func (fs *FileSystem) WriteInode(ip *vfs.Inode) {
	state := ip.Private.(*inodeState)

	bp := fs.cache.Read(ip.Dev, iblock(ip.Inum, &fs.sb))
	di := dinode{
		Type:  ip.Type,
		Major: ip.Major,
		Minor: ip.Minor,
		Nlink: ip.Nlink,
		Size:  ip.Size,
		Addrs: state.addrs,
	}
	encodeDinode(&di, dinodeSlot(bp.Data[:], ip.Inum))
	bp.Write()
	bp.Release()
}

// Drop the in-memory mirror of an inode whose table entry is being
// recycled while links remain on disk.
//
// LOCKS_REQUIRED(ip)
func (fs *FileSystem) ReleaseInode(ip *vfs.Inode) {
	if ip.Private != nil {
		ip.Private = nil
		ip.Type = vfs.TypeFree
	}
}

// Drop the in-memory mirror of an inode that has been freed on disk. The
// on-disk slot was already released by the caller persisting a zero type.
//
// LOCKS_REQUIRED(ip)
func (fs *FileSystem) FreeInode(ip *vfs.Inode) {
	if ip.Private != nil {
		ip.Private = nil
	}
}

// Release all data blocks and reset the size, persisting the result.
//
// LOCKS_REQUIRED(ip)
func (fs *FileSystem) Truncate(ip *vfs.Inode) {
	state := ip.Private.(*inodeState)

	for i := 0; i < NDirect; i++ {
		if state.addrs[i] != 0 {
			fs.bfree(state.addrs[i])
			state.addrs[i] = 0
		}
	}

	if state.addrs[NDirect] != 0 {
		bp := fs.cache.Read(ip.Dev, state.addrs[NDirect])
		for j := uint32(0); j < NIndirect; j++ {
			if a := readAddr(bp.Data[:], j); a != 0 {
				fs.bfree(a)
			}
		}
		bp.Release()
		fs.bfree(state.addrs[NDirect])
		state.addrs[NDirect] = 0
	}

	ip.Size = 0
	fs.WriteInode(ip)
}

////////////////////////////////////////////////////////////////////////
// Files
////////////////////////////////////////////////////////////////////////

// Allocate a file object bound to ip.
//
// LOCKS_REQUIRED(ip)
func (fs *FileSystem) Open(ctx context.Context, ip *vfs.Inode, mode int) (*vfs.File, error) {
	if ip.Type == vfs.TypeDevice && (ip.Major < 0 || ip.Major >= vfs.NumDevices) {
		return nil, vfs.ENODEV
	}

	f, err := fs.v.AllocFile()
	if err != nil {
		return nil, err
	}

	f.Ops = ip.Ops
	f.Inode = ip
	f.Off = 0
	f.Readable = mode&vfs.WriteOnly == 0
	f.Writable = mode&vfs.WriteOnly != 0 || mode&vfs.ReadWrite != 0

	return f, nil
}

// Tear down a file whose last reference is gone, dropping its inode.
func (fs *FileSystem) Close(ctx context.Context, f *vfs.File) {
	f.Inode.Put()
}

// Read up to len(p) bytes starting at off. Reads past the end of the file
// return 0.
//
// LOCKS_REQUIRED(ip)
func (fs *FileSystem) Read(ctx context.Context, ip *vfs.Inode, p []byte, off uint32) (int, error) {
	n := uint32(len(p))

	if off > ip.Size || off+n < off {
		return 0, nil
	}
	if off+n > ip.Size {
		n = ip.Size - off
	}

	tot := uint32(0)
	for tot < n {
		addr, err := fs.bmap(ip, off/BSize)
		if err != nil {
			break
		}

		m := n - tot
		if m > BSize-off%BSize {
			m = BSize - off%BSize
		}

		bp := fs.cache.Read(ip.Dev, addr)
		copy(p[tot:tot+m], bp.Data[off%BSize:off%BSize+m])
		bp.Release()

		tot += m
		off += m
	}

	return int(tot), nil
}

// Write len(p) bytes starting at off, extending the size when writing past
// the end. The inode is persisted even when the size is unchanged, because
// bmap may have added blocks to the address list.
//
// LOCKS_REQUIRED(ip)
func (fs *FileSystem) Write(ctx context.Context, ip *vfs.Inode, p []byte, off uint32) (int, error) {
	n := uint32(len(p))

	if off > ip.Size || off+n < off {
		return 0, vfs.EINVAL
	}
	if off+n > MaxFile*BSize {
		return 0, vfs.EFBIG
	}

	var werr error
	tot := uint32(0)
	for tot < n {
		addr, err := fs.bmap(ip, off/BSize)
		if err != nil {
			werr = err
			break
		}

		m := n - tot
		if m > BSize-off%BSize {
			m = BSize - off%BSize
		}

		bp := fs.cache.Read(ip.Dev, addr)
		copy(bp.Data[off%BSize:off%BSize+m], p[tot:tot+m])
		bp.Write()
		bp.Release()

		tot += m
		off += m
	}

	if off > ip.Size {
		ip.Size = off
	}
	fs.WriteInode(ip)

	return int(tot), werr
}

////////////////////////////////////////////////////////////////////////
// Directories
////////////////////////////////////////////////////////////////////////

// Finalize a freshly linked child: record device numbers and persist them.
//
// LOCKS_REQUIRED(target.Inode)
func (fs *FileSystem) Create(
	ctx context.Context,
	dir *vfs.Inode,
	target *vfs.Dentry,
	typ int16,
	major int16,
	minor int16) error {
	ip := target.Inode
	ip.Major = major
	ip.Minor = minor
	fs.WriteInode(ip)

	return nil
}

// Search dir for an entry with the given name. On a hit the returned dentry
// carries an inode reference that the caller must adopt or put.
//
// LOCKS_REQUIRED(dir)
func (fs *FileSystem) DirLookup(ctx context.Context, dir *vfs.Inode, name string) (*vfs.Dentry, error) {
	if dir.Type != vfs.TypeDir {
		panic("DirLookup: not a directory")
	}

	var rec [direntSize]byte
	for off := uint32(0); off < dir.Size; off += direntSize {
		if n, _ := fs.Read(ctx, dir, rec[:], off); n != direntSize {
			panic("DirLookup: short directory read")
		}

		inum, entName := decodeDirent(rec[:])
		if inum == 0 {
			continue
		}
		if entName == name {
			child := fs.GetInode(dir.Dev, uint32(inum), true)
			return vfs.NewDentry(dir, child, name), nil
		}
	}

	return nil, vfs.ENOENT
}

// Insert target (parent, name, child) into the parent directory, reusing
// the first free record or appending a new one.
//
// LOCKS_REQUIRED(target.Parent)
func (fs *FileSystem) Link(ctx context.Context, target *vfs.Dentry) error {
	dp := target.Parent

	// Fail if the name is already present. The lookup's reference must be
	// dropped either way.
	if de, err := fs.DirLookup(ctx, dp, target.Name); err == nil {
		de.Inode.Put()
		de.Release()
		return vfs.EEXIST
	}

	// Look for an empty record.
	var rec [direntSize]byte
	off := uint32(0)
	for ; off < dp.Size; off += direntSize {
		if n, _ := fs.Read(ctx, dp, rec[:], off); n != direntSize {
			panic("Link: short directory read")
		}
		if inum, _ := decodeDirent(rec[:]); inum == 0 {
			break
		}
	}

	encodeDirent(uint16(target.Inode.Inum), target.Name, rec[:])
	if n, err := fs.Write(ctx, dp, rec[:], off); n != direntSize {
		if err == nil {
			err = vfs.ENOSPC
		}
		return err
	}

	return nil
}

// Remove the record naming target from the parent directory.
//
// LOCKS_REQUIRED(target.Parent)
func (fs *FileSystem) Unlink(ctx context.Context, target *vfs.Dentry) error {
	dp := target.Parent

	var rec [direntSize]byte
	for off := uint32(0); off < dp.Size; off += direntSize {
		if n, _ := fs.Read(ctx, dp, rec[:], off); n != direntSize {
			panic("Unlink: short directory read")
		}

		inum, entName := decodeDirent(rec[:])
		if inum == 0 || entName != target.Name {
			continue
		}

		for i := range rec {
			rec[i] = 0
		}
		if n, err := fs.Write(ctx, dp, rec[:], off); n != direntSize {
			if err == nil {
				err = vfs.ENOSPC
			}
			return err
		}
		return nil
	}

	return vfs.ENOENT
}

// Return whether dir contains only "." and "..", which occupy the first two
// records of every directory.
//
// LOCKS_REQUIRED(dir)
func (fs *FileSystem) IsDirEmpty(ctx context.Context, dir *vfs.Inode) bool {
	var rec [direntSize]byte
	for off := uint32(2 * direntSize); off < dir.Size; off += direntSize {
		if n, _ := fs.Read(ctx, dir, rec[:], off); n != direntSize {
			panic("IsDirEmpty: short directory read")
		}
		if inum, _ := decodeDirent(rec[:]); inum != 0 {
			return false
		}
	}

	return true
}

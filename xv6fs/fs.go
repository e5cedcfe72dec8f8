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

// Package xv6fs implements the on-disk filesystem backend dispatched to by
// the vfs package: a classic layout of boot block, superblock, packed inode
// blocks, allocation bitmap, and data blocks, with fixed-size directory
// records and direct plus singly-indirect block addressing.
package xv6fs

import (
	"encoding/binary"

	"github.com/jacobsa/vfs"
)

// On-disk layout parameters.
const (
	// Block size, shared with the generic layer and the block cache.
	BSize = vfs.BlockSize

	// Value of Dsuperblock.Magic for a valid filesystem.
	FSMagic = 0x10203040

	// Block addresses stored directly in an inode, plus one indirect block
	// holding BSize/4 further addresses.
	NDirect   = 12
	NIndirect = BSize / 4

	// The maximum length of a file, in blocks.
	MaxFile = NDirect + NIndirect

	// Size of an on-disk inode, and inodes per block.
	dinodeSize = 64
	IPB        = BSize / dinodeSize

	// Bitmap bits per block.
	BPB = BSize * 8

	// Size of an on-disk directory entry: a 2-byte inode number followed by
	// a fixed-width name.
	direntSize = 2 + vfs.DirNameLen
)

// The on-disk superblock, stored in block 1. Block 0 is reserved for boot.
type Dsuperblock struct {
	Magic      uint32
	Size       uint32 // total blocks on the device
	Nblocks    uint32 // data blocks
	Ninodes    uint32
	InodeStart uint32 // first block of the inode region
	BmapStart  uint32 // first block of the bitmap region
}

// The on-disk inode. Inodes are packed IPB per block starting at
// InodeStart; inode number n lives in block InodeStart + n/IPB.
type dinode struct {
	Type  int16
	Major int16
	Minor int16
	Nlink int16
	Size  uint32
	Addrs [NDirect + 1]uint32
}

// Block containing inode inum.
func iblock(inum uint32, sb *Dsuperblock) uint32 {
	return inum/IPB + sb.InodeStart
}

// Block of the bitmap containing the bit for block b.
func bblock(b uint32, sb *Dsuperblock) uint32 {
	return b/BPB + sb.BmapStart
}

////////////////////////////////////////////////////////////////////////
// Wire encoding
////////////////////////////////////////////////////////////////////////

func encodeSuperblock(sb *Dsuperblock, p []byte) {
	le := binary.LittleEndian
	le.PutUint32(p[0:], sb.Magic)
	le.PutUint32(p[4:], sb.Size)
	le.PutUint32(p[8:], sb.Nblocks)
	le.PutUint32(p[12:], sb.Ninodes)
	le.PutUint32(p[16:], sb.InodeStart)
	le.PutUint32(p[20:], sb.BmapStart)
}

func decodeSuperblock(p []byte) (sb Dsuperblock) {
	le := binary.LittleEndian
	sb.Magic = le.Uint32(p[0:])
	sb.Size = le.Uint32(p[4:])
	sb.Nblocks = le.Uint32(p[8:])
	sb.Ninodes = le.Uint32(p[12:])
	sb.InodeStart = le.Uint32(p[16:])
	sb.BmapStart = le.Uint32(p[20:])
	return
}

// Encode di into the dinodeSize-byte slot p.
func encodeDinode(di *dinode, p []byte) {
	le := binary.LittleEndian
	le.PutUint16(p[0:], uint16(di.Type))
	le.PutUint16(p[2:], uint16(di.Major))
	le.PutUint16(p[4:], uint16(di.Minor))
	le.PutUint16(p[6:], uint16(di.Nlink))
	le.PutUint32(p[8:], di.Size)
	for i, a := range di.Addrs {
		le.PutUint32(p[12+4*i:], a)
	}
}

func decodeDinode(p []byte) (di dinode) {
	le := binary.LittleEndian
	di.Type = int16(le.Uint16(p[0:]))
	di.Major = int16(le.Uint16(p[2:]))
	di.Minor = int16(le.Uint16(p[4:]))
	di.Nlink = int16(le.Uint16(p[6:]))
	di.Size = le.Uint32(p[8:])
	for i := range di.Addrs {
		di.Addrs[i] = le.Uint32(p[12+4*i:])
	}
	return
}

// Slot of inode inum within its block.
func dinodeSlot(p []byte, inum uint32) []byte {
	off := (inum % IPB) * dinodeSize
	return p[off : off+dinodeSize]
}

// Encode a directory entry into the direntSize-byte slot p. Names longer
// than DirNameLen are truncated without termination; shorter names are
// zero-padded.
func encodeDirent(inum uint16, name string, p []byte) {
	binary.LittleEndian.PutUint16(p[0:], inum)
	n := copy(p[2:2+vfs.DirNameLen], name)
	for i := 2 + n; i < direntSize; i++ {
		p[i] = 0
	}
}

func decodeDirent(p []byte) (inum uint16, name string) {
	inum = binary.LittleEndian.Uint16(p[0:])

	b := p[2 : 2+vfs.DirNameLen]
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	name = string(b[:n])
	return
}

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
)

// Parameters for Format.
type FormatOpts struct {
	// Total blocks on the device.
	TotalBlocks uint32

	// On-disk inode slots, including the unused slot zero.
	Ninodes uint32
}

// Write an empty filesystem onto the device: boot block, superblock, inode
// region with the root directory, bitmap covering the metadata, and a first
// data block holding the root's "." and ".." entries.
//
// The device must hold at least opts.TotalBlocks blocks; Format touches the
// device directly, bypassing any cache, so it must not race a mounted
// filesystem on the same device.
func Format(d buf.Device, opts FormatOpts) error {
	ninodeBlocks := opts.Ninodes/IPB + 1
	nbitmapBlocks := opts.TotalBlocks/BPB + 1

	// Metadata: boot, superblock, inode region, bitmap.
	nmeta := 2 + ninodeBlocks + nbitmapBlocks
	if nmeta+1 > opts.TotalBlocks {
		return fmt.Errorf("device too small: %v blocks, %v metadata", opts.TotalBlocks, nmeta)
	}

	sb := Dsuperblock{
		Magic:      FSMagic,
		Size:       opts.TotalBlocks,
		Nblocks:    opts.TotalBlocks - nmeta,
		Ninodes:    opts.Ninodes,
		InodeStart: 2,
		BmapStart:  2 + ninodeBlocks,
	}

	var block [vfs.BlockSize]byte

	// Zero the whole device so stale state never shows through.
	for b := uint32(0); b < opts.TotalBlocks; b++ {
		if err := d.WriteBlock(b, block[:]); err != nil {
			return fmt.Errorf("zeroing block %v: %v", b, err)
		}
	}

	// Superblock.
	encodeSuperblock(&sb, block[:])
	if err := d.WriteBlock(1, block[:]); err != nil {
		return fmt.Errorf("writing superblock: %v", err)
	}

	// Root directory inode, with its first data block immediately after the
	// metadata.
	rootData := nmeta
	di := dinode{
		Type:  vfs.TypeDir,
		Nlink: 1,
		Size:  2 * direntSize,
	}
	di.Addrs[0] = rootData

	for i := range block {
		block[i] = 0
	}
	encodeDinode(&di, dinodeSlot(block[:], vfs.RootIno))
	if err := d.WriteBlock(iblock(vfs.RootIno, &sb), block[:]); err != nil {
		return fmt.Errorf("writing root inode: %v", err)
	}

	// "." and ".." both name the root.
	for i := range block {
		block[i] = 0
	}
	encodeDirent(vfs.RootIno, ".", block[0:direntSize])
	encodeDirent(vfs.RootIno, "..", block[direntSize:2*direntSize])
	if err := d.WriteBlock(rootData, block[:]); err != nil {
		return fmt.Errorf("writing root directory: %v", err)
	}

	// Mark the metadata and the root's data block in use.
	for i := range block {
		block[i] = 0
	}
	used := nmeta + 1
	for b := uint32(0); b < used; b++ {
		block[b/8] |= 1 << (b % 8)
	}
	if err := d.WriteBlock(sb.BmapStart, block[:]); err != nil {
		return fmt.Errorf("writing bitmap: %v", err)
	}

	return nil
}

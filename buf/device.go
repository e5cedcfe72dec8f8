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

package buf

import (
	"fmt"
	"os"
	"sync"

	"github.com/jacobsa/vfs"
)

// An in-memory block device, convenient for tests and throwaway
// filesystems.
type MemDevice struct {
	mu   sync.Mutex
	data []byte // GUARDED_BY(mu)
}

// Create an in-memory device with the given number of blocks, all zero.
func NewMemDevice(nblocks uint32) *MemDevice {
	return &MemDevice{
		data: make([]byte, int(nblocks)*vfs.BlockSize),
	}
}

func (d *MemDevice) ReadBlock(blockno uint32, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	off := int(blockno) * vfs.BlockSize
	if off+vfs.BlockSize > len(d.data) {
		return fmt.Errorf("block %v out of range", blockno)
	}

	copy(p, d.data[off:off+vfs.BlockSize])
	return nil
}

func (d *MemDevice) WriteBlock(blockno uint32, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	off := int(blockno) * vfs.BlockSize
	if off+vfs.BlockSize > len(d.data) {
		return fmt.Errorf("block %v out of range", blockno)
	}

	copy(d.data[off:off+vfs.BlockSize], p)
	return nil
}

// A block device backed by a disk image file.
type FileDevice struct {
	f *os.File
}

// Wrap an open image file. The caller retains ownership of f and closes it
// after the cache is done.
func NewFileDevice(f *os.File) *FileDevice {
	return &FileDevice{f: f}
}

func (d *FileDevice) ReadBlock(blockno uint32, p []byte) error {
	_, err := d.f.ReadAt(p[:vfs.BlockSize], int64(blockno)*vfs.BlockSize)
	return err
}

func (d *FileDevice) WriteBlock(blockno uint32, p []byte) error {
	_, err := d.f.WriteAt(p[:vfs.BlockSize], int64(blockno)*vfs.BlockSize)
	return err
}

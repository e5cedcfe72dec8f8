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

// Package buf implements the block buffer cache: a bounded pool of in-memory
// copies of fixed-size disk blocks, synchronized so that each block has at
// most one cached copy and at most one user of that copy at a time.
//
// The contract mirrors the classic kernel one. Read returns a locked buffer
// whose contents are a valid copy of the block; Write flushes a modified
// buffer to the device; Release gives the buffer back and makes it eligible
// for recycling once its reference count drops to zero. Pin and Unpin extend
// a buffer's cache lifetime across sleeps without holding its lock.
package buf

import (
	"fmt"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"github.com/jacobsa/vfs"
	"github.com/jacobsa/vfs/internal/sleeplock"
)

// The number of buffers in the cache.
const NumBufs = 30

// A block device addressed in vfs.BlockSize units. I/O errors from a block
// device are fatal to the system; implementations return an error only for
// out-of-range block numbers and broken media.
type Device interface {
	ReadBlock(blockno uint32, p []byte) error
	WriteBlock(blockno uint32, p []byte) error
}

// One cached block. The identity fields and reference count are guarded by
// the cache's lock; the data and validity flag by the per-buffer sleep lock.
type Buf struct {
	// GUARDED_BY(c.mu)
	Dev     uint32
	Blockno uint32

	Data [vfs.BlockSize]byte // GUARDED_BY(lk)

	valid bool // GUARDED_BY(lk)

	lk sleeplock.Mutex

	// The count of holders: one per outstanding Read, plus one per Pin.
	refcnt int // GUARDED_BY(c.mu)

	// When the buffer last became free, for least-recently-used recycling.
	lastUse time.Time // GUARDED_BY(c.mu)

	c *Cache
}

// A bounded cache of disk blocks for one or more registered devices.
type Cache struct {
	clock timeutil.Clock

	mu   syncutil.InvariantMutex
	bufs [NumBufs]Buf

	devices map[uint32]Device // GUARDED_BY(mu)
}

// Create an empty cache. The clock orders recycling decisions; tests inject
// a simulated one.
func New(clock timeutil.Clock) *Cache {
	c := &Cache{
		clock:   clock,
		devices: make(map[uint32]Device),
	}

	for i := range c.bufs {
		c.bufs[i].c = c
	}

	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)

	return c
}

// Register the device behind a device number. Registration happens before
// any Read for that number.
func (c *Cache) AddDevice(dev uint32, d Device) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.devices[dev] = d
}

// LOCKS_REQUIRED(c.mu)
func (c *Cache) checkInvariants() {
	// INVARIANT: No buffer has a negative reference count.
	//
	// INVARIANT: No two in-use buffers cache the same (dev, blockno).
	type key struct{ dev, blockno uint32 }
	inUse := make(map[key]struct{})

	for i := range c.bufs {
		b := &c.bufs[i]
		if b.refcnt < 0 {
			panic(fmt.Sprintf("negative refcnt for buffer %v", i))
		}

		if b.refcnt > 0 {
			k := key{b.Dev, b.Blockno}
			if _, ok := inUse[k]; ok {
				panic(fmt.Sprintf("duplicate buffers for (%v, %v)", b.Dev, b.Blockno))
			}
			inUse[k] = struct{}{}
		}
	}
}

// Find a cache slot for (dev, blockno) and return it with its sleep lock
// held, recycling the least recently used free buffer on a miss. The
// contents are not necessarily valid yet.
func (c *Cache) get(dev uint32, blockno uint32) *Buf {
	c.mu.Lock()

	// Already cached?
	for i := range c.bufs {
		b := &c.bufs[i]
		if b.refcnt > 0 && b.Dev == dev && b.Blockno == blockno {
			b.refcnt++
			c.mu.Unlock()

			b.lk.Lock()
			return b
		}
	}

	// Recycle the least recently used free buffer. A free buffer may still
	// hold a valid copy of the block we want from an earlier life.
	var victim *Buf
	for i := range c.bufs {
		b := &c.bufs[i]
		if b.refcnt != 0 {
			continue
		}
		if b.Dev == dev && b.Blockno == blockno {
			victim = b
			break
		}
		if victim == nil || b.lastUse.Before(victim.lastUse) {
			victim = b
		}
	}

	if victim == nil {
		panic("buf.Cache: no free buffers")
	}

	if victim.Dev != dev || victim.Blockno != blockno {
		victim.Dev = dev
		victim.Blockno = blockno
		victim.valid = false
	}
	victim.refcnt = 1
	c.mu.Unlock()

	victim.lk.Lock()
	return victim
}

// Return a locked buffer holding the contents of the indicated block.
// Unknown devices and device I/O failures are fatal.
func (c *Cache) Read(dev uint32, blockno uint32) *Buf {
	b := c.get(dev, blockno)

	if !b.valid {
		c.mu.Lock()
		d, ok := c.devices[dev]
		c.mu.Unlock()
		if !ok {
			panic(fmt.Sprintf("buf.Read: unknown device %v", dev))
		}

		if err := d.ReadBlock(blockno, b.Data[:]); err != nil {
			panic(fmt.Sprintf("buf.Read: device %v block %v: %v", dev, blockno, err))
		}
		b.valid = true
	}

	return b
}

// Flush the buffer's contents to the device.
//
// LOCKS_REQUIRED(b)
func (b *Buf) Write() {
	if !b.lk.Held() {
		panic("Buf.Write: buffer not locked")
	}

	c := b.c
	c.mu.Lock()
	d, ok := c.devices[b.Dev]
	c.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("Buf.Write: unknown device %v", b.Dev))
	}

	if err := d.WriteBlock(b.Blockno, b.Data[:]); err != nil {
		panic(fmt.Sprintf("Buf.Write: device %v block %v: %v", b.Dev, b.Blockno, err))
	}
}

// Release a locked buffer, making it eligible for recycling once no holders
// remain.
//
// LOCKS_REQUIRED(b)
func (b *Buf) Release() {
	if !b.lk.Held() {
		panic("Buf.Release: buffer not locked")
	}

	b.lk.Unlock()

	c := b.c
	c.mu.Lock()
	defer c.mu.Unlock()

	b.refcnt--
	if b.refcnt == 0 {
		b.lastUse = c.clock.Now()
	}
}

// Extend the buffer's cache lifetime across a sleep without holding its
// lock.
func (b *Buf) Pin() {
	c := b.c
	c.mu.Lock()
	defer c.mu.Unlock()

	b.refcnt++
}

// Undo a Pin.
func (b *Buf) Unpin() {
	c := b.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if b.refcnt < 1 {
		panic("Buf.Unpin: not pinned")
	}
	b.refcnt--
	if b.refcnt == 0 {
		b.lastUse = c.clock.Now()
	}
}

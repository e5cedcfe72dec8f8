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

// Package pipe implements anonymous pipes surfaced through vfs file
// objects: a bounded ring buffer with one read end and one write end,
// blocking readers until data arrives and writers until space frees up.
package pipe

import (
	"fmt"
	"sync"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/vfs"
	"golang.org/x/net/context"
)

// The ring buffer capacity of a pipe, in bytes.
const PipeSize = 512

type pipe struct {
	mu syncutil.InvariantMutex

	/////////////////////////
	// Mutable state
	/////////////////////////

	// Ring buffer cursors. Bytes [nread, nwrite) are unread;
	// nwrite - nread never exceeds PipeSize.
	//
	// GUARDED_BY(mu)
	data   [PipeSize]byte
	nread  uint32
	nwrite uint32

	// Whether each end is still open.
	//
	// GUARDED_BY(mu)
	readOpen  bool
	writeOpen bool

	// Readers wait on dataReady, writers on spaceReady.
	dataReady  *sync.Cond // GUARDED_BY(mu)
	spaceReady *sync.Cond // GUARDED_BY(mu)
}

// Allocate a pipe and the two file objects surfacing it: rf reads from the
// pipe, wf writes to it. On failure neither file table slot stays claimed.
func Alloc(ctx context.Context, v *vfs.VFS) (rf *vfs.File, wf *vfs.File, err error) {
	p := &pipe{
		readOpen:  true,
		writeOpen: true,
	}
	p.mu = syncutil.NewInvariantMutex(p.checkInvariants)
	p.dataReady = sync.NewCond(&p.mu)
	p.spaceReady = sync.NewCond(&p.mu)

	rf, err = v.AllocFile()
	if err != nil {
		return nil, nil, err
	}
	rf.Pipe = p
	rf.Readable = true

	wf, err = v.AllocFile()
	if err != nil {
		rf.Close(ctx)
		return nil, nil, err
	}
	wf.Pipe = p
	wf.Writable = true

	return rf, wf, nil
}

// LOCKS_REQUIRED(p.mu)
func (p *pipe) checkInvariants() {
	// INVARIANT: The unread span fits in the buffer.
	if p.nwrite-p.nread > PipeSize {
		panic(fmt.Sprintf("pipe cursors out of range: %v, %v", p.nread, p.nwrite))
	}
}

// Read up to len(buf) bytes, blocking while the pipe is empty and the write
// end is open. A drained pipe with no writer reads as EOF.
func (p *pipe) Read(ctx context.Context, buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.nread == p.nwrite && p.writeOpen {
		p.dataReady.Wait()
	}

	n := 0
	for n < len(buf) && p.nread != p.nwrite {
		buf[n] = p.data[p.nread%PipeSize]
		p.nread++
		n++
	}

	p.spaceReady.Broadcast()
	return n, nil
}

// Write len(buf) bytes, blocking while the buffer is full and the read end
// is open. Writing to a pipe with no reader fails with EPIPE.
func (p *pipe) Write(ctx context.Context, buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for n < len(buf) {
		if !p.readOpen {
			return n, vfs.EPIPE
		}

		if p.nwrite == p.nread+PipeSize {
			p.dataReady.Broadcast()
			p.spaceReady.Wait()
			continue
		}

		p.data[p.nwrite%PipeSize] = buf[n]
		p.nwrite++
		n++
	}

	p.dataReady.Broadcast()
	return n, nil
}

// Drop one end of the pipe, waking anyone blocked on it.
func (p *pipe) Close(writable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writable {
		p.writeOpen = false
		p.dataReady.Broadcast()
	} else {
		p.readOpen = false
		p.spaceReady.Broadcast()
	}
}

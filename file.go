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
	"io"

	"golang.org/x/net/context"
)

// The backend of an anonymous pipe surfaced through a file object. Read and
// write may block until data or buffer space is available.
type Pipe interface {
	Read(ctx context.Context, p []byte) (int, error)
	Write(ctx context.Context, p []byte) (int, error)

	// Drop one end. writable says which end is being dropped.
	Close(writable bool)
}

// A per-open-handle cell: current byte offset, direction flags, and a
// pointer to the owning inode or pipe. Created on open, shared across dup,
// retired when the last reference is closed.
type File struct {
	Ops Ops

	// Exactly one of these is non-nil for a live file.
	Inode *Inode
	Pipe  Pipe

	// The current byte offset. Advanced while the owning inode's sleep lock
	// is held, so concurrent readers of one handle see a consistent cursor.
	Off uint32

	Readable bool
	Writable bool

	// Backend-private per-open state.
	Private interface{}

	ref int // GUARDED_BY(v.ftableMu)
	v   *VFS
}

// Each chunk of a regular-file write dirties at most a bounded number of
// blocks: the data blocks themselves plus an inode block, an indirect block,
// and two bitmap blocks.
const maxWriteChunk = ((MaxOpBlocks - 4) / 2) * BlockSize

// Claim a free file table slot with a single reference. Fails with ENFILE
// when the table is exhausted.
func (v *VFS) AllocFile() (*File, error) {
	v.ftableMu.Lock()
	defer v.ftableMu.Unlock()

	for i := range v.files {
		f := &v.files[i]
		if f.ref == 0 {
			f.ref = 1
			return f, nil
		}
	}

	return nil, ENFILE
}

// Increment the reference count. Returns f to enable the f := g.Dup() idiom.
func (f *File) Dup() *File {
	f.v.ftableMu.Lock()
	defer f.v.ftableMu.Unlock()

	if f.ref < 1 {
		panic("file.Dup: no refs")
	}
	f.ref++

	return f
}

// Drop a reference. On the last release, tear down the pipe or dispatch to
// the backend's Close, which puts the owning inode. The table slot is
// recycled before the teardown runs, so teardown operates on a detached
// copy.
func (f *File) Close(ctx context.Context) {
	v := f.v

	v.ftableMu.Lock()

	if f.ref < 1 {
		panic("file.Close: no refs")
	}

	f.ref--
	if f.ref > 0 {
		v.ftableMu.Unlock()
		return
	}

	ff := *f
	f.Ops = nil
	f.Inode = nil
	f.Pipe = nil
	f.Off = 0
	f.Readable = false
	f.Writable = false
	f.Private = nil

	v.ftableMu.Unlock()

	if ff.Pipe != nil {
		ff.Pipe.Close(ff.Writable)
		return
	}

	ff.Ops.Close(ctx, &ff)
}

// Read up to len(p) bytes at the current offset, advancing it by the count
// read. Device inodes dispatch to the registered device functions; pipes to
// the pipe backend; everything else to the owning backend under the inode
// sleep lock.
func (f *File) Read(ctx context.Context, p []byte) (int, error) {
	if !f.Readable {
		return 0, EBADF
	}

	if f.Pipe != nil {
		return f.Pipe.Read(ctx, p)
	}

	ip := f.Inode
	if ip.Type == TypeDevice {
		sw, ok := f.v.device(ip.Major)
		if !ok || sw.Read == nil {
			return 0, ENODEV
		}
		return sw.Read(p)
	}

	ip.Lock()
	n, err := f.Ops.Read(ctx, ip, p, f.Off)
	if n > 0 {
		f.Off += uint32(n)
	}
	ip.Unlock()

	return n, err
}

// Write len(p) bytes at the current offset, advancing it by the count
// written. Regular-file writes are split into chunks of at most
// maxWriteChunk bytes so that no single atomic operation holds too much of
// the block cache; the inode lock is released between chunks.
//
// Stops at the first short chunk and returns the bytes written so far with
// the backend's error, or io.ErrShortWrite if the backend reported none. A
// nil error means every chunk completed.
func (f *File) Write(ctx context.Context, p []byte) (int, error) {
	if !f.Writable {
		return 0, EBADF
	}

	if f.Pipe != nil {
		return f.Pipe.Write(ctx, p)
	}

	ip := f.Inode
	if ip.Type == TypeDevice {
		sw, ok := f.v.device(ip.Major)
		if !ok || sw.Write == nil {
			return 0, ENODEV
		}
		return sw.Write(p)
	}

	total := 0
	for total < len(p) {
		chunk := p[total:]
		if len(chunk) > maxWriteChunk {
			chunk = chunk[:maxWriteChunk]
		}

		ip.Lock()
		n, err := f.Ops.Write(ctx, ip, chunk, f.Off)
		if n > 0 {
			f.Off += uint32(n)
		}
		ip.Unlock()

		total += n
		if err != nil {
			return total, err
		}
		if n != len(chunk) {
			return total, io.ErrShortWrite
		}
	}

	return total, nil
}

// Copy out metadata for the owning inode. Pipes have no inode to stat.
func (f *File) Stat() (Stat, error) {
	ip := f.Inode
	if ip == nil {
		return Stat{}, EBADF
	}

	ip.Lock()
	st := ip.Stat()
	ip.Unlock()

	return st, nil
}

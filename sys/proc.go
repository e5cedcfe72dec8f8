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

// Package sys exposes the system-call surface of the VFS: descriptor-based
// calls (dup, read, write, close, fstat) and path-based calls (open, mkdir,
// mknod, chdir, link, unlink, pipe, exec), each a method on a process
// context holding the file descriptor table and working directory.
//
// The layer is mostly argument checking and reference-count plumbing; the
// real work happens in the vfs package and whatever backend it dispatches
// to.
package sys

import (
	"github.com/jacobsa/vfs"
	"golang.org/x/net/context"
)

const (
	// Open files per process.
	MaxOpenFiles = 16

	// Arguments accepted by Exec.
	MaxArgs = 32
)

// A program loader invoked by Exec once the image has been read out of the
// filesystem. Returns the program's result.
type ExecFunc func(ctx context.Context, path string, argv []string, image []byte) (int, error)

// The per-process state the VFS cares about: the open file table and the
// working directory. A Proc serves one kernel thread; its methods are not
// safe for concurrent use on the same Proc, though any number of Procs may
// enter the VFS concurrently.
type Proc struct {
	v *vfs.VFS

	ofile [MaxOpenFiles]*vfs.File
	cwd   *vfs.Inode

	// Optional program loader used by Exec. Nil means exec is unsupported.
	Loader ExecFunc
}

// Create a process rooted at the mounted filesystem's root directory.
func NewProc(v *vfs.VFS) *Proc {
	root := v.Root()
	if root == nil {
		panic("NewProc called before Mount")
	}

	return &Proc{
		v:   v,
		cwd: root.Root.Dup(),
	}
}

// Release everything the process holds: all open files and the working
// directory reference. The equivalent of process exit.
func (p *Proc) Release(ctx context.Context) {
	for fd, f := range p.ofile {
		if f != nil {
			p.ofile[fd] = nil
			f.Close(ctx)
		}
	}

	if p.cwd != nil {
		p.cwd.Put()
		p.cwd = nil
	}
}

// Allocate a file descriptor for the given file, taking over the caller's
// file reference on success.
func (p *Proc) fdAlloc(f *vfs.File) (int, error) {
	for fd := range p.ofile {
		if p.ofile[fd] == nil {
			p.ofile[fd] = f
			return fd, nil
		}
	}

	return 0, vfs.ENFILE
}

// Return the open file behind a descriptor, or nil for a bad descriptor.
// Useful when a file must be handed to another goroutine without sharing
// the Proc itself.
func (p *Proc) File(fd int) *vfs.File {
	f, err := p.argfd(fd)
	if err != nil {
		return nil
	}

	return f
}

// Dereference a file descriptor.
func (p *Proc) argfd(fd int) (*vfs.File, error) {
	if fd < 0 || fd >= MaxOpenFiles || p.ofile[fd] == nil {
		return nil, vfs.EBADF
	}

	return p.ofile[fd], nil
}

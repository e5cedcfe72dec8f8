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

package sys

import (
	"github.com/jacobsa/reqtrace"
	"github.com/jacobsa/vfs"
	"github.com/jacobsa/vfs/pipe"
	"golang.org/x/net/context"
)

// Duplicate an open file descriptor, returning the new one.
func (p *Proc) Dup(ctx context.Context, fd int) (newfd int, err error) {
	ctx, report := reqtrace.StartSpan(ctx, "dup")
	defer func() { report(err) }()

	f, err := p.argfd(fd)
	if err != nil {
		return
	}

	newfd, err = p.fdAlloc(f)
	if err != nil {
		return
	}
	f.Dup()

	return
}

// Read up to len(buf) bytes from an open file at its current offset.
func (p *Proc) Read(ctx context.Context, fd int, buf []byte) (n int, err error) {
	ctx, report := reqtrace.StartSpan(ctx, "read")
	defer func() { report(err) }()

	f, err := p.argfd(fd)
	if err != nil {
		return
	}

	n, err = f.Read(ctx, buf)
	return
}

// Write len(buf) bytes to an open file at its current offset.
func (p *Proc) Write(ctx context.Context, fd int, buf []byte) (n int, err error) {
	ctx, report := reqtrace.StartSpan(ctx, "write")
	defer func() { report(err) }()

	f, err := p.argfd(fd)
	if err != nil {
		return
	}

	n, err = f.Write(ctx, buf)
	return
}

// Close a file descriptor.
func (p *Proc) Close(ctx context.Context, fd int) (err error) {
	ctx, report := reqtrace.StartSpan(ctx, "close")
	defer func() { report(err) }()

	f, err := p.argfd(fd)
	if err != nil {
		return
	}

	p.ofile[fd] = nil
	f.Close(ctx)

	return
}

// Copy out metadata for an open file's inode.
func (p *Proc) Fstat(ctx context.Context, fd int) (st vfs.Stat, err error) {
	ctx, report := reqtrace.StartSpan(ctx, "fstat")
	defer func() { report(err) }()

	f, err := p.argfd(fd)
	if err != nil {
		return
	}

	st, err = f.Stat()
	return
}

// The shared skeleton of the path-creating calls: resolve the parent, fail
// or reuse on collision, allocate and link a child. Returns the child
// locked; the caller unlocks it.
func (p *Proc) create(
	ctx context.Context,
	path string,
	typ int16,
	major int16,
	minor int16) (*vfs.Inode, error) {
	dp, name, err := p.v.NameiParent(ctx, path, p.cwd)
	if err != nil {
		return nil, err
	}

	dp.Lock()

	// Does the name already exist? open(O_CREATE) of an existing file or
	// device is an open, not an error.
	if de, lerr := dp.Ops.DirLookup(ctx, dp, name); lerr == nil {
		ip := de.Inode
		de.Release()
		dp.UnlockPut()

		ip.Lock()
		if typ == vfs.TypeFile && (ip.Type == vfs.TypeFile || ip.Type == vfs.TypeDevice) {
			return ip, nil
		}
		ip.UnlockPut()
		return nil, vfs.EEXIST
	}

	ip, err := dp.Ops.AllocInode(ctx, dp.SB)
	if err != nil {
		dp.UnlockPut()
		return nil, err
	}

	ip.Lock()
	ip.Nlink = 1
	ip.Type = typ
	ip.Ops.WriteInode(ip)

	fail := func(err error) (*vfs.Inode, error) {
		// Something went wrong; de-allocate ip.
		ip.Nlink = 0
		ip.Ops.WriteInode(ip)
		ip.UnlockPut()
		dp.UnlockPut()
		return nil, err
	}

	if typ == vfs.TypeDir {
		// Seed "." and "..". The ".." link is accounted for on the parent
		// below, once success is guaranteed.
		cur := vfs.NewDentry(ip, ip, ".")
		err = ip.Ops.Link(ctx, cur)
		cur.Release()
		if err != nil {
			return fail(err)
		}

		par := vfs.NewDentry(ip, dp, "..")
		err = ip.Ops.Link(ctx, par)
		par.Release()
		if err != nil {
			return fail(err)
		}
	}

	de := vfs.NewDentry(dp, ip, name)
	err = dp.Ops.Link(ctx, de)
	if err != nil {
		de.Release()
		return fail(err)
	}

	err = dp.Ops.Create(ctx, dp, de, typ, major, minor)
	de.Release()
	if err != nil {
		return fail(err)
	}

	if typ == vfs.TypeDir {
		dp.Nlink++ // for ".."
		dp.Ops.WriteInode(dp)
	}

	dp.UnlockPut()
	return ip, nil
}

// Open the named file, creating it if mode includes Create, and return a
// file descriptor for it.
func (p *Proc) Open(ctx context.Context, path string, mode int) (fd int, err error) {
	ctx, report := reqtrace.StartSpan(ctx, "open")
	defer func() { report(err) }()

	if len(path) > vfs.MaxPath {
		err = vfs.EINVAL
		return
	}

	var ip *vfs.Inode
	if mode&vfs.Create != 0 {
		ip, err = p.create(ctx, path, vfs.TypeFile, 0, 0)
		if err != nil {
			return
		}
	} else {
		ip, err = p.v.Namei(ctx, path, p.cwd)
		if err != nil {
			return
		}

		ip.Lock()
		if ip.Type == vfs.TypeDir && mode != vfs.ReadOnly {
			ip.UnlockPut()
			err = vfs.EISDIR
			return
		}
	}

	f, err := ip.Ops.Open(ctx, ip, mode)
	if err != nil {
		ip.UnlockPut()
		return
	}

	fd, err = p.fdAlloc(f)
	if err != nil {
		// The file owns the inode reference now; closing it puts.
		ip.Unlock()
		f.Close(ctx)
		return
	}

	if mode&vfs.Truncate != 0 && ip.Type == vfs.TypeFile {
		ip.Ops.Truncate(ip)
	}

	ip.Unlock()
	return
}

// Create a directory.
func (p *Proc) Mkdir(ctx context.Context, path string) (err error) {
	ctx, report := reqtrace.StartSpan(ctx, "mkdir")
	defer func() { report(err) }()

	if len(path) > vfs.MaxPath {
		err = vfs.EINVAL
		return
	}

	ip, err := p.create(ctx, path, vfs.TypeDir, 0, 0)
	if err != nil {
		return
	}

	ip.UnlockPut()
	return
}

// Create a device inode with the given major and minor numbers.
func (p *Proc) Mknod(ctx context.Context, path string, major int16, minor int16) (err error) {
	ctx, report := reqtrace.StartSpan(ctx, "mknod")
	defer func() { report(err) }()

	if len(path) > vfs.MaxPath {
		err = vfs.EINVAL
		return
	}

	ip, err := p.create(ctx, path, vfs.TypeDevice, major, minor)
	if err != nil {
		return
	}

	ip.UnlockPut()
	return
}

// Change the working directory.
func (p *Proc) Chdir(ctx context.Context, path string) (err error) {
	ctx, report := reqtrace.StartSpan(ctx, "chdir")
	defer func() { report(err) }()

	ip, err := p.v.Namei(ctx, path, p.cwd)
	if err != nil {
		return
	}

	ip.Lock()
	if ip.Type != vfs.TypeDir {
		ip.UnlockPut()
		err = vfs.ENOTDIR
		return
	}
	ip.Unlock()

	p.cwd.Put()
	p.cwd = ip
	return
}

// Create newPath as a link to the same inode as oldPath. Directories cannot
// be linked, and both paths must live on the same device.
func (p *Proc) Link(ctx context.Context, oldPath string, newPath string) (err error) {
	ctx, report := reqtrace.StartSpan(ctx, "link")
	defer func() { report(err) }()

	ip, err := p.v.Namei(ctx, oldPath, p.cwd)
	if err != nil {
		return
	}

	ip.Lock()
	if ip.Type == vfs.TypeDir {
		ip.UnlockPut()
		err = vfs.EISDIR
		return
	}

	// Bump the link count up front; roll it back if anything below fails.
	ip.Nlink++
	ip.Ops.WriteInode(ip)
	ip.Unlock()

	rollback := func(err error) error {
		ip.Lock()
		ip.Nlink--
		ip.Ops.WriteInode(ip)
		ip.UnlockPut()
		return err
	}

	dp, name, err := p.v.NameiParent(ctx, newPath, p.cwd)
	if err != nil {
		return rollback(err)
	}

	dp.Lock()
	if dp.Dev != ip.Dev {
		dp.UnlockPut()
		return rollback(vfs.EXDEV)
	}

	de := vfs.NewDentry(dp, ip, name)
	err = dp.Ops.Link(ctx, de)
	de.Release()
	if err != nil {
		dp.UnlockPut()
		return rollback(err)
	}

	dp.UnlockPut()
	ip.Put()
	return nil
}

// Remove the named directory entry, deleting the inode once its last link
// and reference are gone. Refuses "." and "..", and non-empty directories.
func (p *Proc) Unlink(ctx context.Context, path string) (err error) {
	ctx, report := reqtrace.StartSpan(ctx, "unlink")
	defer func() { report(err) }()

	dp, name, err := p.v.NameiParent(ctx, path, p.cwd)
	if err != nil {
		return
	}

	dp.Lock()

	if name == "." || name == ".." {
		dp.UnlockPut()
		err = vfs.EINVAL
		return
	}

	de, err := dp.Ops.DirLookup(ctx, dp, name)
	if err != nil {
		dp.UnlockPut()
		return
	}
	ip := de.Inode
	de.Release()

	ip.Lock()

	if ip.Nlink < 1 {
		panic("Unlink: nlink < 1")
	}
	if ip.Type == vfs.TypeDir && !dp.Ops.IsDirEmpty(ctx, ip) {
		ip.UnlockPut()
		dp.UnlockPut()
		err = vfs.ENOTEMPTY
		return
	}

	rm := vfs.NewDentry(dp, ip, name)
	err = dp.Ops.Unlink(ctx, rm)
	rm.Release()
	if err != nil {
		ip.UnlockPut()
		dp.UnlockPut()
		return
	}

	if ip.Type == vfs.TypeDir {
		dp.Nlink-- // the child's ".." no longer points here
		dp.Ops.WriteInode(dp)
	}
	dp.UnlockPut()

	ip.Nlink--
	ip.Ops.WriteInode(ip)
	ip.UnlockPut()

	return nil
}

// Create an anonymous pipe, returning the read and write descriptors.
func (p *Proc) Pipe(ctx context.Context) (fds [2]int, err error) {
	ctx, report := reqtrace.StartSpan(ctx, "pipe")
	defer func() { report(err) }()

	rf, wf, err := pipe.Alloc(ctx, p.v)
	if err != nil {
		return
	}

	fd0, err := p.fdAlloc(rf)
	if err != nil {
		rf.Close(ctx)
		wf.Close(ctx)
		return
	}

	fd1, err := p.fdAlloc(wf)
	if err != nil {
		p.ofile[fd0] = nil
		rf.Close(ctx)
		wf.Close(ctx)
		return
	}

	fds = [2]int{fd0, fd1}
	return
}

// Resolve path to a regular file, read its image out of the filesystem, and
// hand it to the registered loader along with argv.
func (p *Proc) Exec(ctx context.Context, path string, argv []string) (result int, err error) {
	ctx, report := reqtrace.StartSpan(ctx, "exec")
	defer func() { report(err) }()

	if p.Loader == nil {
		err = vfs.ENOSYS
		return
	}
	if len(path) > vfs.MaxPath || len(argv) > MaxArgs {
		err = vfs.EINVAL
		return
	}

	ip, err := p.v.Namei(ctx, path, p.cwd)
	if err != nil {
		return
	}

	ip.Lock()
	if ip.Type != vfs.TypeFile {
		ip.UnlockPut()
		err = vfs.EISDIR
		return
	}

	image := make([]byte, ip.Size)
	n, err := ip.Ops.Read(ctx, ip, image, 0)
	ip.UnlockPut()
	if err != nil {
		return
	}

	result, err = p.Loader(ctx, path, argv, image[:n])
	return
}

// Copyright 2015 Google Inc. All Rights Reserved.
// Author: jacobsa@google.com (Aaron Jacobs)

package vfs

import "golang.org/x/sys/unix"

const (
	// Errors corresponding to kernel error numbers. Recoverable failures
	// surface as one of these from VFS entry points; consistency violations
	// panic instead.
	EBADF     = unix.EBADF
	EEXIST    = unix.EEXIST
	EFBIG     = unix.EFBIG
	EINVAL    = unix.EINVAL
	EISDIR    = unix.EISDIR
	ENFILE    = unix.ENFILE
	ENODEV    = unix.ENODEV
	ENOENT    = unix.ENOENT
	ENOSPC    = unix.ENOSPC
	ENOSYS    = unix.ENOSYS
	ENOTDIR   = unix.ENOTDIR
	ENOTEMPTY = unix.ENOTEMPTY
	EPIPE     = unix.EPIPE
	EXDEV     = unix.EXDEV
)

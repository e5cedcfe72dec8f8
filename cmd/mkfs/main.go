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

// mkfs writes an empty filesystem onto a disk image file, creating the file
// if necessary.
package main

import (
	"flag"
	"fmt"
	"os"

	fallocate "github.com/detailyang/go-fallocate"
	"github.com/golang/glog"
	"github.com/jacobsa/vfs"
	"github.com/jacobsa/vfs/buf"
	"github.com/jacobsa/vfs/xv6fs"
)

var fBlocks = flag.Uint(
	"blocks",
	2048,
	"Total blocks in the image.")

var fInodes = flag.Uint(
	"inodes",
	256,
	"Inode slots in the image.")

func run(path string) (err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("OpenFile: %v", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("Close: %v", closeErr)
		}
	}()

	// Reserve the image's full extent up front so formatting can't run out
	// of space halfway through. Not every filesystem supports fallocate;
	// fall back to a plain truncate there.
	size := int64(*fBlocks) * vfs.BlockSize
	if err := fallocate.Fallocate(f, 0, size); err != nil {
		glog.V(1).Infof("Fallocate unsupported (%v); using Truncate", err)
		if err := f.Truncate(size); err != nil {
			return fmt.Errorf("Truncate: %v", err)
		}
	}

	err = xv6fs.Format(
		buf.NewFileDevice(f),
		xv6fs.FormatOpts{
			TotalBlocks: uint32(*fBlocks),
			Ninodes:     uint32(*fInodes),
		})
	if err != nil {
		return fmt.Errorf("Format: %v", err)
	}

	return nil
}

func main() {
	flag.Parse()
	defer glog.Flush()

	if flag.NArg() != 1 {
		glog.Exitf("usage: %s [flags] image", os.Args[0])
	}

	path := flag.Arg(0)
	if err := run(path); err != nil {
		glog.Exitf("mkfs %s: %v", path, err)
	}

	glog.Infof("formatted %s: %v blocks, %v inodes", path, *fBlocks, *fInodes)
}

// SPDX-License-Identifier: BSD-3-Clause

// Code in this file was derived from `go/src/os/path.go`.

// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the `go.LICENSE` file.

//go:build unix

package pfs

import (
	"golang.org/x/sys/unix"
)

// mkdirAll is a recursive Mkdir that resolves symlinked intermediate
// directories through the sandbox rather than trusting the raw path.
func (fs *FS) mkdirAll(name string, mode FileMode) error {
	// Fast path: if we can tell whether name is a directory or file,
	// stop with success or error.
	dir, err := fs.Lstat(name)
	if err == nil {
		if dir.Mode()&ModeSymlink != 0 {
			// The final element is a symlink, check its target instead.
			dir, err = fs.Stat(name)
			if err != nil {
				return err
			}
		}
		if dir.IsDir() {
			return nil
		}
		return convertErrorType(&PathError{Op: "mkdir", Path: name, Err: unix.ENOTDIR})
	}

	// Slow path: make sure the parent exists, then mkdir name itself.
	i := len(name)
	for i > 0 && name[i-1] == '/' {
		i--
	}
	j := i
	for j > 0 && name[j-1] != '/' {
		j--
	}
	if j > 1 {
		if err := fs.mkdirAll(name[:j-1], mode); err != nil {
			return err
		}
	}

	err = fs.Mkdir(name, mode)
	if err != nil {
		// Handle arguments like "foo/." by double-checking that the
		// directory doesn't already exist.
		dir, err1 := fs.Lstat(name)
		if err1 == nil && dir.IsDir() {
			return nil
		}
		return err
	}
	return nil
}

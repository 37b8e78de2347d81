// SPDX-License-Identifier: BSD-3-Clause

// Code in this file was derived from `go/src/os/removeall_at.go`.

// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the `go.LICENSE` file.

//go:build unix

package pfs

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// removeFS is the subset of FS that removeAll needs. The quota layer
// provides its own unlinkat so deletions keep usage accounting honest.
type removeFS interface {
	Open(name string) (File, error)
	Remove(name string) error
	unlinkat(dirfd int, path string, flags int) error
}

func (fs *FS) removeAll(path string) error {
	return removeAll(fs, path)
}

func removeAll(fs removeFS, path string) error {
	if path == "" {
		// Fail silently to retain compatibility with the behavior of
		// os.RemoveAll. See https://go.dev/issue/28830.
		return nil
	}

	// The rmdir system call does not permit removing ".", so we don't
	// permit it either.
	if endsWithDot(path) {
		return &PathError{Op: "removeall", Path: path, Err: unix.EINVAL}
	}

	// Simple case: if Remove works, we're done.
	err := fs.Remove(path)
	if err == nil || errors.Is(err, ErrNotExist) {
		return nil
	}

	// RemoveAll recurses by deleting the path base from its parent
	// directory.
	parentDir, base := splitPath(path)

	parent, err := fs.Open(parentDir)
	if errors.Is(err, ErrNotExist) {
		// If parent does not exist, base cannot exist either.
		return nil
	}
	if err != nil {
		return err
	}
	defer parent.Close()

	if err := removeAllFrom(fs, parent, base); err != nil {
		if pathErr, ok := err.(*PathError); ok {
			pathErr.Path = parentDir + string(os.PathSeparator) + pathErr.Path
			err = pathErr
		}
		return convertErrorType(err)
	}
	return nil
}

func removeAllFrom(fs removeFS, parent File, base string) error {
	parentFd := int(parent.Fd())
	// Simple case: if unlink works, we're done.
	err := fs.unlinkat(parentFd, base, 0)
	if err == nil || errors.Is(err, ErrNotExist) {
		return nil
	}

	// EISDIR means we have a directory whose contents need removing.
	// EPERM or EACCES means we lack write permission on the parent, but
	// base might still be a directory we can descend into. Anything
	// else is fatal.
	if err != unix.EISDIR && err != unix.EPERM && err != unix.EACCES {
		return &PathError{Op: "unlinkat", Path: base, Err: err}
	}

	// Is this a directory we need to recurse into?
	var statInfo unix.Stat_t
	statErr := ignoringEINTR(func() error {
		return unix.Fstatat(parentFd, base, &statInfo, AT_SYMLINK_NOFOLLOW)
	})
	if statErr != nil {
		if errors.Is(statErr, ErrNotExist) {
			return nil
		}
		return &PathError{Op: "fstatat", Path: base, Err: statErr}
	}
	if statInfo.Mode&unix.S_IFMT != unix.S_IFDIR {
		// Not a directory; return the error from the unlinkat.
		return &PathError{Op: "unlinkat", Path: base, Err: err}
	}

	// Remove the directory's entries.
	var recurseErr error
	for {
		const reqSize = 1024
		var respSize int

		// Open the directory to recurse into.
		file, err := openFdAt(parentFd, base)
		if err != nil {
			if errors.Is(err, ErrNotExist) {
				return nil
			}
			recurseErr = &PathError{Op: "openfdat", Path: base, Err: err}
			break
		}

		for {
			numErr := 0

			names, readErr := file.Readdirnames(reqSize)
			// Errors other than EOF should stop us from continuing.
			if readErr != nil && readErr != io.EOF {
				_ = file.Close()
				if errors.Is(readErr, ErrNotExist) {
					return nil
				}
				return &PathError{Op: "readdirnames", Path: base, Err: readErr}
			}

			respSize = len(names)
			for _, name := range names {
				err := removeAllFrom(fs, file, name)
				if err != nil {
					if pathErr, ok := err.(*PathError); ok {
						pathErr.Path = base + string(os.PathSeparator) + pathErr.Path
					}
					numErr++
					if recurseErr == nil {
						recurseErr = err
					}
				}
			}

			// If we can delete any entry, break to start a new
			// iteration; otherwise the current batch is hopeless and we
			// read the next one.
			if numErr != reqSize {
				break
			}
		}

		// Removing entries may cause the OS to reshuffle the directory,
		// and re-reading it without a re-open can skip entries. See
		// https://go.dev/issue/20841.
		_ = file.Close()

		if respSize < reqSize {
			break
		}
	}

	// Remove the now-empty directory itself.
	unlinkErr := fs.unlinkat(parentFd, base, AT_REMOVEDIR)
	if unlinkErr == nil || errors.Is(unlinkErr, ErrNotExist) {
		return nil
	}

	if recurseErr != nil {
		return recurseErr
	}
	return &PathError{Op: "unlinkat", Path: base, Err: unlinkErr}
}

// openFdAt opens path relative to the directory in fd, without
// following symlinks, for the sole purpose of removing its contents.
func openFdAt(dirfd int, name string) (File, error) {
	var fd int
	for {
		var err error
		fd, err = unix.Openat(dirfd, name, O_RDONLY|O_CLOEXEC|O_NOFOLLOW, 0)
		if err == nil {
			break
		}
		if err == unix.EINTR {
			continue
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), name), nil
}

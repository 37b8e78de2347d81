// SPDX-License-Identifier: BSD-3-Clause

// Code in this file was derived from `go/src/io/fs/walk.go`.

// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the `go.LICENSE` file.

package pfs

import (
	iofs "io/fs"
	"path"
)

// SkipDir is used as a return value from a WalkDirFunc to indicate
// that the directory named in the call is to be skipped.
var SkipDir = iofs.SkipDir

// SkipAll is used as a return value from a WalkDirFunc to indicate
// that all remaining files and directories are to be skipped.
var SkipAll = iofs.SkipAll

// WalkDirFunc is the type of the function called by WalkDir to visit
// each file or directory. It follows the contract of io/fs.WalkDirFunc.
type WalkDirFunc func(path string, d DirEntry, err error) error

type walkFS interface {
	Stat(name string) (FileInfo, error)
	ReadDir(name string) ([]DirEntry, error)
}

// WalkDir walks the file tree rooted at root in lexical order, calling
// fn for each file or directory in the tree, including root. Symbolic
// links found in directories are not followed.
func WalkDir(fs walkFS, root string, fn WalkDirFunc) error {
	info, err := fs.Stat(root)
	if err != nil {
		err = fn(root, nil, err)
	} else {
		err = walkDir(fs, root, iofs.FileInfoToDirEntry(info), fn)
	}
	if err == SkipDir || err == SkipAll {
		return nil
	}
	return err
}

func walkDir(fs walkFS, name string, d DirEntry, walkDirFn WalkDirFunc) error {
	if err := walkDirFn(name, d, nil); err != nil || !d.IsDir() {
		if err == SkipDir && d.IsDir() {
			// Successfully skipped directory.
			err = nil
		}
		return err
	}

	dirs, err := fs.ReadDir(name)
	if err != nil {
		// Second call, to report the ReadDir error.
		err = walkDirFn(name, d, err)
		if err != nil {
			if err == SkipDir && d.IsDir() {
				err = nil
			}
			return err
		}
	}

	for _, d1 := range dirs {
		name1 := path.Join(name, d1.Name())
		if err := walkDir(fs, name1, d1, walkDirFn); err != nil {
			if err == SkipDir {
				break
			}
			return err
		}
	}
	return nil
}

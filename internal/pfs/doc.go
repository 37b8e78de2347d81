// Package pfs implements the private filesystem layer that backs an
// origin's storage area. It replaces standard `os` package calls with
// directory-descriptor relative syscalls so that every operation is
// confined to the origin root, even when handed hostile paths or
// symlinks that point outside of it.
//
// This package is not a generic filesystem abstraction in the way the
// `io/fs` package is; it exists to give the facade in the root package
// a chroot-like view over a single directory.
package pfs

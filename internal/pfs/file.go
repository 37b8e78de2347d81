package pfs

import (
	"io"
	iofs "io/fs"

	"golang.org/x/sys/unix"
)

// DirEntry is an entry read from a directory.
type DirEntry = iofs.DirEntry

// FileInfo describes a file and is returned by Stat and Lstat.
type FileInfo = iofs.FileInfo

// FileMode represents a file's mode and permission bits.
type FileMode = iofs.FileMode

// File is a readable and/or writable file opened from an FS. *os.File
// satisfies this interface; it is kept narrow so the facade never
// reaches for anything the sandbox didn't hand it.
type File interface {
	// Name returns the name the file was opened with.
	Name() string

	// Stat returns the FileInfo structure describing the file.
	Stat() (FileInfo, error)

	// ReadDir reads the contents of the directory associated with the
	// file and returns a slice of DirEntry values in directory order.
	ReadDir(n int) ([]DirEntry, error)

	// Readdirnames reads up to n entry names from the directory
	// associated with the file, in directory order.
	Readdirnames(n int) (names []string, err error)

	// Fd returns the integer unix file descriptor referencing the open
	// file. The descriptor is only valid until Close is called.
	Fd() uintptr

	// Truncate changes the size of the file without changing the I/O
	// offset.
	Truncate(size int64) error

	// Sync flushes the file's contents to stable storage.
	Sync() error

	io.Closer

	io.Reader
	io.ReaderAt
	io.ReaderFrom

	io.Writer
	io.WriterAt

	io.Seeker
}

const (
	ModeDir        = iofs.ModeDir
	ModeSymlink    = iofs.ModeSymlink
	ModeDevice     = iofs.ModeDevice
	ModeNamedPipe  = iofs.ModeNamedPipe
	ModeSocket     = iofs.ModeSocket
	ModeSetuid     = iofs.ModeSetuid
	ModeSetgid     = iofs.ModeSetgid
	ModeCharDevice = iofs.ModeCharDevice
	ModeSticky     = iofs.ModeSticky
	ModeIrregular  = iofs.ModeIrregular

	ModeType = iofs.ModeType
	ModePerm = iofs.ModePerm
)

const (
	// O_RDONLY opens the file read-only.
	O_RDONLY = unix.O_RDONLY
	// O_WRONLY opens the file write-only.
	O_WRONLY = unix.O_WRONLY
	// O_RDWR opens the file read-write.
	O_RDWR = unix.O_RDWR
	// O_APPEND appends data to the file when writing.
	O_APPEND = unix.O_APPEND
	// O_CREATE creates a new file if it doesn't exist.
	O_CREATE = unix.O_CREAT
	// O_EXCL is used with O_CREATE, the file must not exist.
	O_EXCL = unix.O_EXCL
	// O_TRUNC truncates a regular writable file when opened.
	O_TRUNC = unix.O_TRUNC
	// O_DIRECTORY requires the entry to be a directory.
	O_DIRECTORY = unix.O_DIRECTORY
	// O_NOFOLLOW opens the exact path given without following symlinks.
	O_NOFOLLOW  = unix.O_NOFOLLOW
	O_CLOEXEC   = unix.O_CLOEXEC
	O_LARGEFILE = unix.O_LARGEFILE
)

const (
	AT_SYMLINK_NOFOLLOW = unix.AT_SYMLINK_NOFOLLOW
	AT_REMOVEDIR        = unix.AT_REMOVEDIR
	AT_EMPTY_PATH       = unix.AT_EMPTY_PATH
)

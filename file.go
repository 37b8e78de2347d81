package originfs

import (
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/originfs/originfs/internal/pfs"
)

// File is a handle to a regular file entry within an origin's bucket.
// Handles are cheap, they carry no open descriptor; every operation
// resolves the path through the sandbox when it runs.
type File struct {
	handle
}

func (f *File) Kind() HandleKind {
	return KindFile
}

func (f *File) IsSameEntry(other Handle) (bool, error) {
	return f.isSameEntry(KindFile, other)
}

// Stat returns stat information for the file, including its detected
// mimetype.
func (f *File) Stat() (*Stat, error) {
	if err := f.store.checkPermission(f.path, PermissionRead); err != nil {
		return nil, err
	}
	return f.store.Stat(f.path)
}

// FileReader is the streaming read surface returned by Open. The file
// info comes from the open descriptor, not a fresh path lookup.
type FileReader interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer

	Stat() (pfs.FileInfo, error)
}

// Open returns a reader over the file contents. The caller owns the
// returned reader and must close it.
func (f *File) Open() (FileReader, error) {
	if err := f.store.checkPermission(f.path, PermissionRead); err != nil {
		return nil, err
	}
	if err := f.store.IsIgnored(f.path); err != nil {
		return nil, err
	}
	st, err := f.store.fs.Lstat(f.path)
	if err != nil {
		return nil, wrapError(err, f.path)
	}
	if st.IsDir() {
		return nil, newStoreError(ErrCodeIsDirectory, nil, f.path)
	}
	file, err := f.store.fs.Open(f.path)
	if err != nil {
		return nil, wrapError(err, f.path)
	}
	return file, nil
}

// Bytes reads the entire file into memory.
func (f *File) Bytes() ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, wrapError(err, f.path)
	}
	return b, nil
}

// Text reads the entire file into memory as a string.
func (f *File) Text() (string, error) {
	b, err := f.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteFrom replaces the file contents with the data read from r,
// creating the file and any missing parent directories as needed.
func (f *File) WriteFrom(r io.Reader) error {
	if err := f.store.checkPermission(f.path, PermissionReadWrite); err != nil {
		return err
	}
	return f.store.writeFile(f.path, r, pfs.O_WRONLY|pfs.O_CREATE|pfs.O_TRUNC)
}

// Write replaces the file contents with b.
func (f *File) Write(b []byte) error {
	return f.WriteFrom(bytes.NewReader(b))
}

// WriteString replaces the file contents with s.
func (f *File) WriteString(s string) error {
	return f.WriteFrom(strings.NewReader(s))
}

// Append appends b to the end of the file, creating it if necessary.
func (f *File) Append(b []byte) error {
	if err := f.store.checkPermission(f.path, PermissionReadWrite); err != nil {
		return err
	}
	return f.store.writeFile(f.path, bytes.NewReader(b), pfs.O_WRONLY|pfs.O_CREATE|pfs.O_APPEND)
}

// Truncate changes the size of the file. Growing a file fills it with
// zero bytes and is charged against the origin quota.
func (f *File) Truncate(size int64) error {
	if err := f.store.checkPermission(f.path, PermissionReadWrite); err != nil {
		return err
	}
	if err := f.store.IsIgnored(f.path); err != nil {
		return err
	}
	if size < 0 {
		return wrapError(&pfs.PathError{Op: "truncate", Path: f.path, Err: pfs.ErrInvalid}, f.path)
	}

	st, err := f.store.fs.Lstat(f.path)
	if err != nil {
		return wrapError(err, f.path)
	}
	if st.IsDir() {
		return newStoreError(ErrCodeIsDirectory, nil, f.path)
	}
	if !st.Mode().IsRegular() {
		return wrapError(&pfs.PathError{Op: "truncate", Path: f.path, Err: pfs.ErrNotRegular}, f.path)
	}

	delta := size - st.Size()
	if delta > 0 {
		if err := f.store.HasSpaceFor(delta); err != nil {
			return err
		}
	}

	file, err := f.store.fs.OpenFile(f.path, pfs.O_WRONLY, 0)
	if err != nil {
		return wrapError(err, f.path)
	}
	defer file.Close()
	if err := file.Truncate(size); err != nil {
		return wrapError(err, f.path)
	}
	f.store.addDisk(delta)
	return nil
}

// Copy duplicates the file next to itself with a " copy" suffix in the
// name, returning a handle to the new file.
func (f *File) Copy() (*File, error) {
	if err := f.store.checkPermission(f.path, PermissionRead); err != nil {
		return nil, err
	}

	st, err := f.store.fs.Lstat(f.path)
	if err != nil {
		return nil, wrapError(err, f.path)
	}
	if st.IsDir() {
		return nil, newStoreError(ErrCodeIsDirectory, nil, f.path)
	}
	if !st.Mode().IsRegular() {
		return nil, wrapError(&pfs.PathError{Op: "copy", Path: f.path, Err: pfs.ErrNotRegular}, f.path)
	}

	if err := f.store.HasSpaceFor(st.Size()); err != nil {
		return nil, err
	}

	dir := path.Dir(f.path)
	base := path.Base(f.path)
	extension := path.Ext(base)
	name := strings.TrimSuffix(base, extension)

	// Count ".tar" as part of the extension so "a.tar.gz" copies to
	// "a copy.tar.gz" rather than "a.tar copy.gz".
	if strings.HasSuffix(name, ".tar") {
		extension = ".tar" + extension
		name = strings.TrimSuffix(name, ".tar")
	}

	n, err := f.store.findCopySuffix(dir, name, extension)
	if err != nil {
		return nil, err
	}
	p := path.Join(dir, n)
	if err := f.store.checkPermission(p, PermissionReadWrite); err != nil {
		return nil, err
	}

	source, err := f.store.fs.Open(f.path)
	if err != nil {
		return nil, wrapError(err, f.path)
	}
	defer source.Close()

	if err := f.store.writeFile(p, source, pfs.O_WRONLY|pfs.O_CREATE|pfs.O_TRUNC); err != nil {
		return nil, err
	}
	return &File{handle{store: f.store, path: p}}, nil
}

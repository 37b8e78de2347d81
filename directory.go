package originfs

import (
	"context"
	"path"
	"runtime"
	"sort"
	"strings"

	"emperror.dev/errors"
	"github.com/gammazero/workerpool"
	"golang.org/x/sync/errgroup"

	"github.com/originfs/originfs/internal/pfs"
)

// Directory is a handle to a directory entry within an origin's
// bucket. The zero value is not usable; handles are obtained from
// Store.Root and the Get/Create methods on an existing Directory.
type Directory struct {
	handle
}

func (d *Directory) Kind() HandleKind {
	return KindDirectory
}

func (d *Directory) IsSameEntry(other Handle) (bool, error) {
	return d.isSameEntry(KindDirectory, other)
}

func (d *Directory) join(name string) string {
	if d.path == "." {
		return name
	}
	return path.Join(d.path, name)
}

// validateName rejects entry names that could act as path traversal or
// that the underlying filesystem cannot represent. Names are single
// path elements, never paths.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return newStoreError(ErrCodeInvalidName, nil, name)
	}
	return nil
}

// GetFile returns a handle to the named file within this directory.
// The file must already exist.
func (d *Directory) GetFile(name string) (*File, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	p := d.join(name)
	if err := d.store.checkPermission(p, PermissionRead); err != nil {
		return nil, err
	}
	st, err := d.store.fs.Lstat(p)
	if err != nil {
		return nil, wrapError(err, p)
	}
	if st.IsDir() {
		return nil, newStoreError(ErrCodeIsDirectory, nil, p)
	}
	return &File{handle{store: d.store, path: p}}, nil
}

// CreateFile returns a handle to the named file within this directory,
// creating an empty file when none exists. Getting a handle to an
// existing file never truncates it.
func (d *Directory) CreateFile(name string) (*File, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	p := d.join(name)
	if err := d.store.checkPermission(p, PermissionReadWrite); err != nil {
		return nil, err
	}
	if err := d.store.IsIgnored(p); err != nil {
		return nil, err
	}

	st, err := d.store.fs.Lstat(p)
	if err == nil {
		if st.IsDir() {
			return nil, newStoreError(ErrCodeIsDirectory, nil, p)
		}
		return &File{handle{store: d.store, path: p}}, nil
	}
	if !errors.Is(err, pfs.ErrNotExist) {
		return nil, wrapError(err, p)
	}

	f, err := d.store.touch(p, pfs.O_WRONLY|pfs.O_CREATE)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	return &File{handle{store: d.store, path: p}}, nil
}

// GetDirectory returns a handle to the named subdirectory. The
// directory must already exist.
func (d *Directory) GetDirectory(name string) (*Directory, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	p := d.join(name)
	if err := d.store.checkPermission(p, PermissionRead); err != nil {
		return nil, err
	}
	st, err := d.store.fs.Lstat(p)
	if err != nil {
		return nil, wrapError(err, p)
	}
	if !st.IsDir() {
		return nil, newStoreError(ErrCodeNotDirectory, nil, p)
	}
	return &Directory{handle{store: d.store, path: p}}, nil
}

// CreateDirectory returns a handle to the named subdirectory, creating
// it when it does not exist yet.
func (d *Directory) CreateDirectory(name string) (*Directory, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	p := d.join(name)
	if err := d.store.checkPermission(p, PermissionReadWrite); err != nil {
		return nil, err
	}

	if err := d.store.fs.Mkdir(p, 0o755); err != nil {
		if !errors.Is(err, pfs.ErrExist) {
			return nil, wrapError(err, p)
		}
		// Whatever exists there must actually be a directory.
		st, serr := d.store.fs.Lstat(p)
		if serr != nil {
			return nil, wrapError(serr, p)
		}
		if !st.IsDir() {
			return nil, newStoreError(ErrCodeNotDirectory, nil, p)
		}
	}
	return &Directory{handle{store: d.store, path: p}}, nil
}

// RemoveEntry removes the named file or empty directory from this
// directory. Non-empty directories are rejected, use RemoveAll.
func (d *Directory) RemoveEntry(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	p := d.join(name)
	if err := d.store.checkPermission(p, PermissionReadWrite); err != nil {
		return err
	}
	if d.store.locks.locked(p) {
		return newStoreError(ErrCodeLocked, nil, p)
	}
	if err := d.store.fs.Remove(p); err != nil {
		return wrapError(err, p)
	}
	d.store.perms.Forget(p)
	return nil
}

// RemoveAll removes the named entry and, for directories, everything
// beneath it. A missing entry is not an error.
func (d *Directory) RemoveAll(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	p := d.join(name)
	if err := d.store.checkPermission(p, PermissionReadWrite); err != nil {
		return err
	}
	if d.store.locks.locked(p) {
		return newStoreError(ErrCodeLocked, nil, p)
	}
	if err := d.store.fs.RemoveAll(p); err != nil {
		return wrapError(err, p)
	}
	d.store.perms.Forget(p)
	return nil
}

// RemoveEntries recursively removes multiple entries from this
// directory in parallel, stopping at the first error.
func (d *Directory) RemoveEntries(ctx context.Context, names ...string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, n := range names {
		n := n
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return d.RemoveAll(n)
		})
	}
	return g.Wait()
}

// List returns stat information, including detected mimetypes, for
// every entry in this directory. Directories sort before files, both
// groups alphabetically.
func (d *Directory) List(ctx context.Context) ([]Stat, error) {
	if err := d.store.checkPermission(d.path, PermissionRead); err != nil {
		return nil, err
	}
	entries, err := d.store.fs.ReadDir(d.path)
	if err != nil {
		return nil, wrapError(err, d.path)
	}

	// Mimetype detection reads file contents, fan the stat calls out
	// over a bounded pool.
	pool := workerpool.New(runtime.NumCPU())
	out := make([]*Stat, len(entries))
	for i, e := range entries {
		if isStagingName(e.Name()) {
			continue
		}
		i, e := i, e
		pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			st, err := d.store.Stat(d.join(e.Name()))
			if err != nil {
				d.store.error(err).WithField("name", e.Name()).Warn("failed to stat directory entry")
				return
			}
			out[i] = st
		})
	}
	pool.StopWait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Non-nil so an empty directory marshals to [] instead of null.
	stats := make([]Stat, 0, len(out))
	for _, st := range out {
		if st != nil {
			stats = append(stats, *st)
		}
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Name() < stats[j].Name()
	})
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].IsDir() && !stats[j].IsDir()
	})
	return stats, nil
}

// Resolve returns the path components leading from this directory to
// the entry other refers to, and true when other is this directory or
// one of its descendants. Resolving a directory against itself yields
// an empty, non-nil slice. Handles from a different store are never
// descendants, regardless of their paths.
func (d *Directory) Resolve(other Handle) ([]string, bool) {
	if other == nil {
		return nil, false
	}
	oh := innerHandle(other)
	if oh == nil || oh.store != d.store {
		return nil, false
	}
	op := oh.path
	if op == d.path {
		return []string{}, true
	}
	prefix := d.path + "/"
	if d.path == "." {
		prefix = ""
	}
	if !strings.HasPrefix(op, prefix) {
		return nil, false
	}
	return strings.Split(strings.TrimPrefix(op, prefix), "/"), true
}

// Rename moves the entry oldName to newName within this directory. An
// existing entry at newName is an error.
func (d *Directory) Rename(oldName, newName string) error {
	if err := validateName(oldName); err != nil {
		return err
	}
	if err := validateName(newName); err != nil {
		return err
	}
	from, to := d.join(oldName), d.join(newName)
	if err := d.store.checkPermission(from, PermissionReadWrite); err != nil {
		return err
	}
	if err := d.store.checkPermission(to, PermissionReadWrite); err != nil {
		return err
	}
	if d.store.locks.locked(from) || d.store.locks.locked(to) {
		return newStoreError(ErrCodeLocked, nil, from)
	}
	if err := d.store.fs.Rename(from, to); err != nil {
		return wrapError(err, from)
	}
	d.store.perms.Forget(from)
	return nil
}

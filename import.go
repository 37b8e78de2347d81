package originfs

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"io"
	"path/filepath"
	"reflect"
	"sync/atomic"

	"emperror.dev/errors"
	gzip2 "github.com/klauspost/compress/gzip"
	zip2 "github.com/klauspost/compress/zip"
	"github.com/mholt/archiver/v4"

	"github.com/originfs/originfs/internal/pfs"
)

// SpaceAvailableForImport walks an archive already present in the
// bucket and reports whether extracting it would push the origin over
// its storage allotment.
func (s *Store) SpaceAvailableForImport(ctx context.Context, dir string, file string) error {
	if s.Limit() == 0 {
		return nil
	}

	dirSize, err := s.DiskUsage(false)
	if err != nil {
		return err
	}

	f, err := s.fs.Open(filepath.Join(dir, file))
	if err != nil {
		return wrapError(err, file)
	}
	defer f.Close()

	format, input, err := archiver.Identify(file, f)
	if err != nil {
		if errors.Is(err, archiver.ErrNoMatch) {
			return newStoreError(ErrCodeUnknownArchive, err, file)
		}
		return err
	}
	ex, ok := format.(archiver.Extractor)
	if !ok {
		return newStoreError(ErrCodeUnknownArchive, nil, file)
	}

	var size int64
	return ex.Extract(ctx, input, nil, func(ctx context.Context, af archiver.File) error {
		if af.IsDir() {
			return nil
		}
		if atomic.AddInt64(&size, af.Size())+dirSize > s.Limit() {
			return newStoreError(ErrCodeDiskSpace, nil, file)
		}
		return nil
	})
}

// ImportFile extracts an archive that already lives inside the bucket
// into the given directory, inferring the format from the archive
// itself.
func (s *Store) ImportFile(ctx context.Context, dir string, file string) error {
	f, err := s.fs.Open(filepath.Join(dir, file))
	if err != nil {
		return wrapError(err, file)
	}
	defer f.Close()

	format, input, err := archiver.Identify(filepath.Base(file), f)
	if err != nil {
		if errors.Is(err, archiver.ErrNoMatch) {
			return newStoreError(ErrCodeUnknownArchive, err, file)
		}
		return err
	}

	return s.extractStream(ctx, extractStreamOptions{
		Directory: dir,
		FileName:  file,
		Format:    format,
		Reader:    input,
	})
}

// Import extracts an archive stream into the given directory of the
// bucket. The stream is assumed to be a gzipped tarball unless its
// header says otherwise.
func (s *Store) Import(ctx context.Context, dir string, r io.Reader) error {
	format, input, err := archiver.Identify("archive.tar.gz", r)
	if err != nil {
		if errors.Is(err, archiver.ErrNoMatch) {
			return newStoreError(ErrCodeUnknownArchive, err, dir)
		}
		return err
	}

	return s.extractStream(ctx, extractStreamOptions{
		Directory: dir,
		Format:    format,
		Reader:    input,
	})
}

type extractStreamOptions struct {
	// The directory to extract the archive to.
	Directory string
	// File name of the archive.
	FileName string
	// Format of the archive.
	Format archiver.Format
	// Reader for the archive.
	Reader io.Reader
}

func (s *Store) extractStream(ctx context.Context, opts extractStreamOptions) error {
	ex, ok := opts.Format.(archiver.Extractor)
	if !ok {
		return newStoreError(ErrCodeUnknownArchive, nil, opts.FileName)
	}
	return ex.Extract(ctx, opts.Reader, nil, func(ctx context.Context, f archiver.File) error {
		if f.IsDir() {
			return nil
		}
		p := filepath.Join(opts.Directory, ExtractNameFromArchive(f))
		// Denylisted entries are skipped silently rather than failing
		// the whole import.
		if err := s.IsIgnored(p); err != nil {
			return nil
		}
		r, err := f.Open()
		if err != nil {
			return err
		}
		defer r.Close()
		if err := s.writeFile(p, r, pfs.O_WRONLY|pfs.O_CREATE|pfs.O_TRUNC); err != nil {
			return wrapError(err, opts.FileName)
		}
		// Carry the mode and modification time over from the archive.
		if err := s.fs.Chmod(p, f.Mode()); err != nil {
			return wrapError(err, opts.FileName)
		}
		if err := s.fs.Chtimes(p, f.ModTime(), f.ModTime()); err != nil {
			return wrapError(err, opts.FileName)
		}
		return nil
	})
}

// ExtractNameFromArchive looks at an archive entry to determine its
// path within the archive. Archive formats disagree on where that
// lives: some carry it in the header exposed through Sys, others only
// in Name.
func ExtractNameFromArchive(f archiver.File) string {
	sys := f.Sys()
	// Formats like ".rar" return nothing from Sys, Name is all there
	// is.
	if sys == nil {
		return f.Name()
	}
	switch s := sys.(type) {
	case *zip.FileHeader:
		return s.Name
	case *zip2.FileHeader:
		return s.Name
	case *tar.Header:
		return s.Name
	case *gzip.Header:
		return s.Name
	case *gzip2.Header:
		return s.Name
	default:
		// Unknown header type; look for a Name field before giving up
		// and using the basename.
		field := reflect.Indirect(reflect.ValueOf(sys)).FieldByName("Name")
		if field.IsValid() {
			return field.String()
		}
		return f.Name()
	}
}

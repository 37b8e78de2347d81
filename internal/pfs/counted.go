package pfs

import (
	"errors"
	"io"
	"sync/atomic"
)

// CountedWriter counts the bytes written through it to an underlying
// File. The facade uses it to charge staged writable sessions against
// the origin quota without re-statting the staging file.
type CountedWriter struct {
	File

	counter atomic.Int64
	err     error
}

// NewCountedWriter returns a CountedWriter wrapping f.
func NewCountedWriter(f File) *CountedWriter {
	return &CountedWriter{File: f}
}

// BytesWritten returns the number of bytes written to the underlying
// file so far.
func (w *CountedWriter) BytesWritten() int64 {
	return w.counter.Load()
}

// Error returns the first error encountered by the writer, with EOF
// treated as success.
func (w *CountedWriter) Error() error {
	if errors.Is(w.err, io.EOF) {
		return nil
	}
	return w.err
}

func (w *CountedWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, io.EOF
	}

	n, err := w.File.Write(p)
	w.counter.Add(int64(n))
	w.err = err

	if err == io.EOF {
		return n, io.EOF
	}
	return n, nil
}

func (w *CountedWriter) ReadFrom(r io.Reader) (n int64, err error) {
	cr := NewCountedReader(r)
	n, err = w.File.ReadFrom(cr)
	w.counter.Add(n)
	return
}

// CountedReader counts the bytes read through it from an underlying
// reader.
type CountedReader struct {
	reader io.Reader

	counter atomic.Int64
	err     error
}

var _ io.Reader = (*CountedReader)(nil)

// NewCountedReader returns a CountedReader wrapping r.
func NewCountedReader(r io.Reader) *CountedReader {
	return &CountedReader{reader: r}
}

// BytesRead returns the number of bytes read from the underlying
// reader so far.
func (r *CountedReader) BytesRead() int64 {
	return r.counter.Load()
}

// Error returns the first error encountered by the reader, with EOF
// treated as success.
func (r *CountedReader) Error() error {
	if errors.Is(r.err, io.EOF) {
		return nil
	}
	return r.err
}

func (r *CountedReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, io.EOF
	}

	n, err := r.reader.Read(p)
	r.counter.Add(int64(n))
	r.err = err

	if err == io.EOF {
		return n, io.EOF
	}
	return n, nil
}

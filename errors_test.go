package originfs

import (
	"errors"
	"os"
	"testing"

	. "github.com/franela/goblin"

	"github.com/originfs/originfs/internal/pfs"
)

func TestErrors(t *testing.T) {
	g := Goblin(t)

	g.Describe("IsErrorCode", func() {
		g.It("matches the code carried by a store error", func() {
			err := newStoreError(ErrCodeDiskSpace, nil, "some/file")
			g.Assert(IsErrorCode(err, ErrCodeDiskSpace)).IsTrue()
			g.Assert(IsErrorCode(err, ErrCodeIsDirectory)).IsFalse()
		})

		g.It("finds the code through wrapping", func() {
			err := wrapError(newStoreError(ErrCodeInvalidName, nil, "bad"), "bad")
			g.Assert(IsErrorCode(err, ErrCodeInvalidName)).IsTrue()
		})

		g.It("never matches plain errors", func() {
			g.Assert(IsErrorCode(errors.New("nope"), ErrCodeUnknownError)).IsFalse()
			g.Assert(IsErrorCode(nil, ErrCodeUnknownError)).IsFalse()
		})
	})

	g.Describe("wrapError", func() {
		g.It("passes through nil", func() {
			g.Assert(wrapError(nil, "p")).IsNil()
		})

		g.It("does not double wrap store errors", func() {
			orig := newStoreError(ErrCodeLocked, nil, "p")
			g.Assert(wrapError(orig, "p") == error(orig)).IsTrue()
		})

		g.It("keeps the cause reachable with errors.Is", func() {
			err := wrapError(&pfs.PathError{Op: "open", Path: "p", Err: pfs.ErrNotExist}, "p")
			g.Assert(IsErrorCode(err, ErrCodeUnknownError)).IsTrue()
			g.Assert(errors.Is(err, os.ErrNotExist)).IsTrue()
		})
	})

	g.Describe("IsBadPathResolution", func() {
		g.It("matches facade path resolution errors", func() {
			err := NewBadPathResolutionError("../escape", "/outside")
			g.Assert(IsBadPathResolution(err)).IsTrue()
		})

		g.It("matches sandbox resolution errors", func() {
			err := wrapError(&pfs.PathError{Op: "safepath", Path: "x", Err: pfs.ErrBadPathResolution}, "x")
			g.Assert(IsBadPathResolution(err)).IsTrue()
		})

		g.It("ignores unrelated errors", func() {
			g.Assert(IsBadPathResolution(errors.New("other"))).IsFalse()
		})
	})
}

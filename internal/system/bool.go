package system

import "sync/atomic"

// AtomicBool is a boolean that can be read and written from multiple
// goroutines without additional locking.
type AtomicBool struct {
	flag uint32
}

func NewAtomicBool(v bool) *AtomicBool {
	ab := new(AtomicBool)
	ab.Store(v)
	return ab
}

func (ab *AtomicBool) Store(v bool) {
	i := 0
	if v {
		i = 1
	}
	atomic.StoreUint32(&ab.flag, uint32(i))
}

func (ab *AtomicBool) Load() bool {
	return atomic.LoadUint32(&ab.flag) == 1
}

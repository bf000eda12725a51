// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package embed

import (
	"errors"
	"sync"
)

// ErrInvalidHandle is returned for a handle that was never issued, was
// already released, or names an object of another kind.
var ErrInvalidHandle = errors.New("embed: invalid handle")

// Handle names an object owned by a [Runtime]. The high 32 bits are a
// generation, the low 32 bits a slot. Zero is never issued.
type Handle uint64

func makeHandle(gen, slot uint32) Handle { return Handle(gen)<<32 | Handle(slot) }

func (h Handle) split() (gen, slot uint32) { return uint32(h >> 32), uint32(h) }

type slot struct {
	gen uint32
	obj any
}

// handleTable maps handles to objects. A slot's generation changes each
// time it is released, so a stale handle never resolves.
type handleTable struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32
}

func (t *handleTable) insert(obj any) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	var i uint32
	if n := len(t.free); n > 0 {
		i = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		i = uint32(len(t.slots))
		t.slots = append(t.slots, slot{gen: 1})
	}
	t.slots[i].obj = obj
	return makeHandle(t.slots[i].gen, i)
}

func (t *handleTable) lookup(h Handle) (*slot, bool) {
	gen, i := h.split()
	if int(i) >= len(t.slots) || t.slots[i].gen != gen || t.slots[i].obj == nil {
		return nil, false
	}
	return &t.slots[i], true
}

func (t *handleTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots) - len(t.free)
}

// getAs resolves h to an object of type T without releasing it.
func getAs[T any](t *handleTable, h Handle) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	s, ok := t.lookup(h)
	if !ok {
		return zero, ErrInvalidHandle
	}
	v, ok := s.obj.(T)
	if !ok {
		return zero, ErrInvalidHandle
	}
	return v, nil
}

// takeAs releases h and returns its object. It succeeds at most once per
// handle.
func takeAs[T any](t *handleTable, h Handle) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	s, ok := t.lookup(h)
	if !ok {
		return zero, ErrInvalidHandle
	}
	v, ok := s.obj.(T)
	if !ok {
		return zero, ErrInvalidHandle
	}
	s.obj = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	_, i := h.split()
	t.free = append(t.free, i)
	return v, nil
}

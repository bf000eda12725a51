// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fifo

import "sync"

// Signal is a set of bits observable on one FIFO endpoint.
type Signal uint32

const (
	// SignalReadable is raised when the peer has written records.
	SignalReadable Signal = 1 << iota
	// SignalWritable is raised when the peer has consumed records.
	SignalWritable
	// SignalPeerClosed is raised when either end closes the FIFO.
	SignalPeerClosed
	// SignalUser0 and SignalUser1 are free for the endpoint owner.
	SignalUser0
	SignalUser1
)

const userSignals = SignalUser0 | SignalUser1

// waiter is the wait object behind one endpoint.
// Readiness bits are level-triggered until cleared; always re-check state
// after waking.
type waiter struct {
	mu   sync.Mutex
	cond sync.Cond
	bits Signal
}

func (w *waiter) init() {
	w.cond.L = &w.mu
}

func (w *waiter) raise(s Signal) {
	w.mu.Lock()
	if w.bits&s != s {
		w.bits |= s
		w.cond.Broadcast()
	}
	w.mu.Unlock()
}

func (w *waiter) clear(s Signal) {
	w.mu.Lock()
	w.bits &^= s
	w.mu.Unlock()
}

func (w *waiter) update(clear, set Signal) {
	w.mu.Lock()
	w.bits = (w.bits &^ clear) | set
	if set != 0 {
		w.cond.Broadcast()
	}
	w.mu.Unlock()
}

func (w *waiter) pending() Signal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bits
}

// wait blocks until any bit of mask is raised and returns the raised subset.
func (w *waiter) wait(mask Signal) Signal {
	w.mu.Lock()
	for w.bits&mask == 0 {
		w.cond.Wait()
	}
	observed := w.bits & mask
	w.mu.Unlock()
	return observed
}

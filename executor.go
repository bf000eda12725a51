// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import (
	"errors"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// ErrAborted is the result of a future canceled by an abort.
var ErrAborted = errors.New("blockserver: aborted")

// Future is cooperative work driven by an [Executor].
//
// Poll advances the work as far as it can without blocking. When ready is
// false, err is iox.ErrWouldBlock if nothing advanced and nil otherwise.
// When ready is true, err is the final result. Cancel discards work that
// has not finished. Both are only called from the executor goroutine.
type Future interface {
	Poll() (ready bool, err error)
	Cancel()
}

// AbortHandle cancels one spawned future from any goroutine.
type AbortHandle struct {
	aborted atomix.Uint32
	ex      *Executor
}

// Abort cancels the future at its next turn. Abort is idempotent.
func (h *AbortHandle) Abort() {
	if h.aborted.Add(1) == 1 {
		h.ex.wake()
	}
}

type spawned struct {
	f     Future
	abort *AbortHandle
	done  func(error)
}

// Executor polls futures round-robin on the goroutine that calls Run.
// It backs off adaptively while no future can progress and parks while it
// has none.
type Executor struct {
	mu       sync.Mutex
	cond     sync.Cond
	incoming []*spawned
	aborted  bool
	woken    bool
}

func newExecutor() *Executor {
	e := &Executor{}
	e.cond.L = &e.mu
	return e
}

// Spawn schedules f. done, if not nil, receives the result on the executor
// goroutine. Spawning onto an aborted executor cancels f at once.
func (e *Executor) Spawn(f Future, done func(error)) *AbortHandle {
	t := &spawned{f: f, abort: &AbortHandle{ex: e}, done: done}
	e.mu.Lock()
	if e.aborted {
		e.mu.Unlock()
		t.cancel()
		return t.abort
	}
	e.incoming = append(e.incoming, t)
	e.woken = true
	e.cond.Signal()
	e.mu.Unlock()
	return t.abort
}

// Abort makes Run cancel every future and return. Abort is idempotent.
func (e *Executor) Abort() {
	e.mu.Lock()
	e.aborted = true
	e.cond.Signal()
	e.mu.Unlock()
}

func (e *Executor) wake() {
	e.mu.Lock()
	e.woken = true
	e.cond.Signal()
	e.mu.Unlock()
}

// Run drives spawned futures until Abort is called.
func (e *Executor) Run() {
	var tasks []*spawned
	var bo iox.Backoff
	for {
		e.mu.Lock()
		for !e.aborted && !e.woken && len(tasks) == 0 && len(e.incoming) == 0 {
			e.cond.Wait()
		}
		if e.aborted {
			tasks = append(tasks, e.incoming...)
			e.incoming = nil
			e.mu.Unlock()
			for _, t := range tasks {
				t.cancel()
			}
			return
		}
		e.woken = false
		tasks = append(tasks, e.incoming...)
		e.incoming = e.incoming[:0]
		e.mu.Unlock()

		progress := false
		for i := 0; i < len(tasks); {
			t := tasks[i]
			ready, err := false, error(nil)
			if t.abort.aborted.Load() != 0 {
				t.cancel()
				ready = true
			} else if ready, err = t.f.Poll(); ready {
				t.finish(err)
			}
			if ready {
				tasks[i] = tasks[len(tasks)-1]
				tasks[len(tasks)-1] = nil
				tasks = tasks[:len(tasks)-1]
				progress = true
				continue
			}
			if err == nil {
				progress = true
			}
			i++
		}
		if progress || len(tasks) == 0 {
			bo.Reset()
			continue
		}
		bo.Wait()
	}
}

func (t *spawned) cancel() {
	t.f.Cancel()
	t.finish(ErrAborted)
}

func (t *spawned) finish(err error) {
	if t.done != nil {
		t.done(err)
	}
}

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control

import (
	"errors"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// ErrCanceled is the result of a task canceled before it finished.
var ErrCanceled = errors.New("control: task canceled")

// Task serves a protocol on one channel end as a pollable future.
// A Task is driven by exactly one goroutine.
type Task[R any] struct {
	ch     *Channel
	susp   *kont.Suspension[kont.Either[error, R]]
	result kont.Either[error, R]
	done   bool
}

// NewTask steps protocol to its first suspension on ch.
func NewTask[R any](ch *Channel, protocol kont.Eff[R]) *Task[R] {
	result, susp := Step(protocol)
	t := &Task[R]{ch: ch, susp: susp, result: result}
	if susp == nil {
		t.finish()
	}
	return t
}

// Poll advances the task through every effect that completes without
// blocking. Once the protocol has finished, ready is true and err is the
// protocol's error, if any. While not ready, err is iox.ErrWouldBlock when
// no effect could advance and nil when at least one did.
func (t *Task[R]) Poll() (ready bool, err error) {
	if t.done {
		return true, t.Err()
	}
	progressed := false
	for t.susp != nil {
		result, next, err := Advance(t.ch, t.susp)
		if err != nil {
			if errors.Is(err, iox.ErrWouldBlock) {
				if progressed {
					return false, nil
				}
				return false, iox.ErrWouldBlock
			}
			t.susp.Discard()
			t.susp = nil
			t.result = kont.Left[error, R](err)
			break
		}
		t.result, t.susp = result, next
		progressed = true
	}
	t.finish()
	return true, t.Err()
}

// Cancel discards a pending task and closes its channel.
// Cancel after completion only closes the channel.
func (t *Task[R]) Cancel() {
	if t.susp != nil {
		t.susp.Discard()
		t.susp = nil
	}
	if !t.done {
		t.result = kont.Left[error, R](ErrCanceled)
	}
	t.finish()
}

func (t *Task[R]) finish() {
	t.done = true
	t.ch.Close()
}

// Err returns the protocol's error once the task is done.
func (t *Task[R]) Err() error {
	if err, ok := t.result.GetLeft(); ok {
		return err
	}
	return nil
}

// Result returns the protocol's value once the task is done.
func (t *Task[R]) Result() (R, error) {
	if err, ok := t.result.GetLeft(); ok {
		var zero R
		return zero, err
	}
	r, _ := t.result.GetRight()
	return r, nil
}

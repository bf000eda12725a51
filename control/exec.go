// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control

import (
	"errors"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// execHandler handles both channel and error effects for blocking callers.
// Channel ops wait on ErrWouldBlock via iox.Backoff and short-circuit on any
// other transport error. Error ops short-circuit on Throw.
// Value type: passed to evalFrames on the stack, avoiding heap allocation.
type execHandler[A any] struct {
	ctx    *channelContext
	errCtx *kont.ErrorContext[error]
}

// Dispatch implements kont.Handler for the composed Channel+Error handler.
// Dispatch order: Channel → Error.
func (h execHandler[A]) Dispatch(op kont.Operation) (kont.Resumed, bool) {
	if cop, ok := op.(channelDispatcher); ok {
		var bo iox.Backoff
		for {
			v, err := cop.DispatchChannel(h.ctx)
			if err == nil {
				return v, true
			}
			if !errors.Is(err, iox.ErrWouldBlock) {
				return kont.Left[error, A](err), false
			}
			bo.Wait()
		}
	}
	if eop, ok := op.(errorDispatcher); ok {
		v, _ := eop.DispatchError(h.errCtx)
		if h.errCtx.HasErr {
			return kont.Left[error, A](h.errCtx.Err), false
		}
		return v, true
	}
	panic("control: unhandled effect in execHandler")
}

// Exec runs a protocol on ch to completion on the calling goroutine.
// Blocks on iox.ErrWouldBlock via adaptive backoff (iox.Backoff), without
// spawning goroutines or creating channels. Returns ErrClosed if the other
// end closes first.
func Exec[R any](ch *Channel, protocol kont.Eff[R]) (R, error) {
	wrapped := kont.Map[kont.Resumed, R, kont.Either[error, R]](protocol, func(r R) kont.Either[error, R] {
		return kont.Right[error, R](r)
	})
	var errCtx kont.ErrorContext[error]
	h := execHandler[R]{ctx: &ch.ctx, errCtx: &errCtx}
	result := kont.Handle(wrapped, h)
	if err, ok := result.GetLeft(); ok {
		var zero R
		return zero, err
	}
	r, _ := result.GetRight()
	return r, nil
}

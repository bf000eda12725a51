// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control

import (
	"code.hybscloud.com/kont"
)

// errorDispatcher is the structural interface of kont error effects.
type errorDispatcher interface {
	DispatchError(ctx *kont.ErrorContext[error]) (kont.Resumed, bool)
}

// Step evaluates a protocol until its first effect suspension.
// Returns (Either[error, R], nil) on completion or error,
// or (zero, suspension) if pending.
func Step[R any](protocol kont.Eff[R]) (kont.Either[error, R], *kont.Suspension[kont.Either[error, R]]) {
	wrapped := kont.ExprMap(kont.Reify(protocol), func(r R) kont.Either[error, R] {
		return kont.Right[error, R](r)
	})
	return kont.StepExpr(wrapped)
}

// Advance dispatches the suspended operation on ch.
// Channel ops are non-blocking: on iox.ErrWouldBlock the suspension is
// returned unconsumed and may be retried after the peer makes progress.
// Error ops are eager: Throw discards the suspension and returns Left.
func Advance[R any](ch *Channel, susp *kont.Suspension[kont.Either[error, R]]) (kont.Either[error, R], *kont.Suspension[kont.Either[error, R]], error) {
	if cop, ok := susp.Op().(channelDispatcher); ok {
		v, err := cop.DispatchChannel(&ch.ctx)
		if err != nil {
			var zero kont.Either[error, R]
			return zero, susp, err
		}
		result, next := susp.Resume(v)
		return result, next, nil
	}
	if eop, ok := susp.Op().(errorDispatcher); ok {
		var ctx kont.ErrorContext[error]
		v, _ := eop.DispatchError(&ctx)
		if ctx.HasErr {
			susp.Discard()
			return kont.Left[error, R](ctx.Err), nil, nil
		}
		result, next := susp.Resume(v)
		return result, next, nil
	}
	panic("control: unhandled effect in Advance")
}

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control

import (
	"errors"

	"code.hybscloud.com/kont"
)

// Reply answers exactly one request.
type Reply struct {
	Value any
	Err   error
}

// Handler answers one request. The returned value and error are sent back
// as a [Reply], unless the error wraps one made by [Fatal], which ends the
// stream instead.
type Handler func(req any) (any, error)

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as ending the stream it was returned on.
func Fatal(err error) error {
	return &fatalError{err: err}
}

type serveStep = kont.Either[struct{}, struct{}]

// Serve returns the protocol that answers requests with h until the client
// closes (Right) or h returns a fatal error (thrown).
func Serve(h Handler) kont.Eff[struct{}] {
	return Loop(struct{}{}, func(struct{}) kont.Eff[serveStep] {
		return NextBind(
			func() kont.Eff[serveStep] {
				return kont.Pure(kont.Right[struct{}](struct{}{}))
			},
			func(req any) kont.Eff[serveStep] {
				v, err := h(req)
				if fe := (*fatalError)(nil); errors.As(err, &fe) {
					return kont.ThrowError[error, serveStep](fe.err)
				}
				return SendThen(Reply{Value: v, Err: err}, kont.Pure(kont.Left[struct{}, struct{}](struct{}{})))
			},
		)
	})
}

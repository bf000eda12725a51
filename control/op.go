// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Send is the effect operation for sending a value of type T.
// Perform(Send[T]{Value: v}) sends v to the other end.
type Send[T any] struct {
	kont.Phantom[struct{}]
	Value T
}

// DispatchChannel handles Send on the channel transport.
// Non-blocking: returns iox.ErrWouldBlock if the bounded SPSC queue is full,
// and ErrClosed if the channel has been closed.
func (s Send[T]) DispatchChannel(ctx *channelContext) (kont.Resumed, error) {
	if ctx.closed.Load() != 0 {
		return nil, ErrClosed
	}
	ctx.sendSlot = s.Value
	if err := ctx.sendQ.Enqueue(&ctx.sendSlot); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

// Recv is the effect operation for receiving a value of type T.
// Perform(Recv[T]{}) receives a typed value from the other end.
type Recv[T any] struct {
	kont.Phantom[T]
}

// DispatchChannel handles Recv on the channel transport.
// Non-blocking: returns iox.ErrWouldBlock if the bounded SPSC queue is empty,
// and ErrClosed if it is empty and the channel has been closed.
func (Recv[T]) DispatchChannel(ctx *channelContext) (kont.Resumed, error) {
	closed := ctx.closed.Load() != 0
	v, err := ctx.recvQ.Dequeue()
	if err != nil {
		if closed {
			return nil, ErrClosed
		}
		return nil, err
	}
	t, ok := v.(T)
	if !ok {
		return nil, ErrUnexpectedReply
	}
	return t, nil
}

// Next is the effect operation a server performs to await the next request.
// It resumes with Left when the client has closed and Right with the request.
type Next struct {
	kont.Phantom[kont.Either[struct{}, any]]
}

// closedNext is the pre-boxed Resumed value for a closed channel.
var closedNext kont.Resumed = kont.Left[struct{}, any](struct{}{})

// DispatchChannel handles Next on the channel transport.
// Requests sent before Close are still delivered: the close counter is
// sampled before dequeuing.
// Non-blocking: returns iox.ErrWouldBlock if no request is pending.
func (Next) DispatchChannel(ctx *channelContext) (kont.Resumed, error) {
	closed := ctx.closed.Load() != 0
	v, err := ctx.recvQ.Dequeue()
	if err == nil {
		return kont.Right[struct{}](v), nil
	}
	if closed {
		return closedNext, nil
	}
	return nil, iox.ErrWouldBlock
}

// Close is the effect operation for closing the channel.
// Atomically increments the shared close counter. Never blocks.
type Close struct {
	kont.Phantom[struct{}]
}

// DispatchChannel handles Close on the channel transport.
func (Close) DispatchChannel(ctx *channelContext) (kont.Resumed, error) {
	ctx.closed.Add(1)
	return struct{}{}, nil
}

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control

import (
	"errors"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/kont"
	"code.hybscloud.com/lfq"
)

// channelCapacity is the bounded capacity of each direction.
// Control traffic is strictly call/reply, so a small ring suffices.
const channelCapacity = 4

var (
	// ErrClosed is returned by client calls once the server end has closed.
	ErrClosed = errors.New("control: channel closed")
	// ErrUnexpectedReply is returned when a reply carries the wrong type.
	ErrUnexpectedReply = errors.New("control: unexpected reply")
)

// channelContext holds the lock-free transport for one end.
// Each direction is a single-producer single-consumer bounded queue.
type channelContext struct {
	sendQ    *lfq.SPSC[any]
	recvQ    *lfq.SPSC[any]
	closed   *atomix.Uint32
	sendSlot any
}

// channelDispatcher is the structural interface for channel operations.
// DispatchChannel is non-blocking: it returns iox.ErrWouldBlock at
// the I/O boundary when the bounded queue cannot make progress.
type channelDispatcher interface {
	DispatchChannel(ctx *channelContext) (kont.Resumed, error)
}

// Channel is one end of a control-plane connection.
// The client end issues calls; the server end is served by a [Task].
type Channel struct {
	ctx channelContext
}

// channelPair holds both ends, both queues, and the shared close counter
// in a single allocation.
type channelPair struct {
	client Channel
	server Channel
	closed atomix.Uint32
	toSrv  lfq.SPSC[any]
	toCli  lfq.SPSC[any]
}

// New creates a connected control channel and returns its client and
// server ends.
func New() (client, server *Channel) {
	pair := &channelPair{}
	pair.toSrv.Init(channelCapacity)
	pair.toCli.Init(channelCapacity)

	pair.client.ctx = channelContext{
		sendQ:  &pair.toSrv,
		recvQ:  &pair.toCli,
		closed: &pair.closed,
	}
	pair.server.ctx = channelContext{
		sendQ:  &pair.toCli,
		recvQ:  &pair.toSrv,
		closed: &pair.closed,
	}
	return &pair.client, &pair.server
}

// Close closes the channel from this end. Never blocks.
func (ch *Channel) Close() {
	ch.ctx.closed.Add(1)
}

// Closed reports whether either end has closed the channel.
func (ch *Channel) Closed() bool {
	return ch.ctx.closed.Load() != 0
}

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fifo

import (
	"errors"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// DefaultDepth is the number of records each direction holds by default.
const DefaultDepth = 64

var (
	// ErrPeerClosed is returned once the FIFO is closed and drained.
	ErrPeerClosed = errors.New("fifo: peer closed")
	// ErrInvalidSignal is returned when Signal touches non-user bits.
	ErrInvalidSignal = errors.New("fifo: only user signals may be changed")
)

// pair holds both endpoints, both rings, and the shared close counter
// in a single allocation.
type pair struct {
	server    Server
	client    Client
	requests  lfq.SPSC[Request]
	responses lfq.SPSC[Response]
	serverW   waiter
	clientW   waiter
	closed    atomix.Uint32
}

// New creates a connected FIFO with depth records in each direction.
// Each direction is a single-producer single-consumer bounded ring:
// requests flow client → server, responses server → client.
// depth must be a power of two >= 2.
func New(depth int) (*Server, *Client) {
	if depth < 2 || depth&(depth-1) != 0 {
		panic("fifo: depth must be power of two >= 2")
	}
	p := &pair{}
	p.requests.Init(depth)
	p.responses.Init(depth)
	p.serverW.init()
	p.clientW.init()

	p.server.endpoint = endpoint[Request, Response]{
		in:     &p.requests,
		out:    &p.responses,
		self:   &p.serverW,
		peer:   &p.clientW,
		closed: &p.closed,
		depth:  depth,
	}
	p.client.endpoint = endpoint[Response, Request]{
		in:     &p.responses,
		out:    &p.requests,
		self:   &p.clientW,
		peer:   &p.serverW,
		closed: &p.closed,
		depth:  depth,
	}
	return &p.server, &p.client
}

// Server is the device side of a FIFO: it reads requests and writes responses.
// At most one goroutine may read and at most one may write at a time.
type Server struct {
	endpoint[Request, Response]
}

// Client is the consumer side of a FIFO: it writes requests and reads responses.
// At most one goroutine may read and at most one may write at a time.
type Client struct {
	endpoint[Response, Request]
}

type endpoint[In, Out any] struct {
	in     *lfq.SPSC[In]
	out    *lfq.SPSC[Out]
	self   *waiter
	peer   *waiter
	closed *atomix.Uint32
	depth  int
}

// Depth returns the number of records each direction holds.
func (ep *endpoint[In, Out]) Depth() int {
	return ep.depth
}

// Read dequeues up to len(dst) records.
// Non-blocking: returns iox.ErrWouldBlock if no record is available, and
// ErrPeerClosed once the FIFO is closed and nothing is left to read.
func (ep *endpoint[In, Out]) Read(dst []In) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	// Clear readiness before dequeuing so a concurrent write re-raises it.
	ep.self.clear(SignalReadable)
	closed := ep.closed.Load() != 0
	n := 0
	for n < len(dst) {
		v, err := ep.in.Dequeue()
		if err != nil {
			break
		}
		dst[n] = v
		n++
	}
	if n > 0 {
		ep.peer.raise(SignalWritable)
		return n, nil
	}
	if closed {
		return 0, ErrPeerClosed
	}
	return 0, iox.ErrWouldBlock
}

// Write enqueues as many records of src as fit and returns how many did.
// A short count with a nil error is a partial write.
// Non-blocking: returns iox.ErrWouldBlock if the ring is full.
func (ep *endpoint[In, Out]) Write(src []Out) (int, error) {
	if ep.closed.Load() != 0 {
		return 0, ErrPeerClosed
	}
	// Clear writability before enqueuing so a concurrent read re-raises it.
	ep.self.clear(SignalWritable)
	n := 0
	for n < len(src) {
		if err := ep.out.Enqueue(&src[n]); err != nil {
			break
		}
		n++
	}
	if n == 0 && len(src) > 0 {
		return 0, iox.ErrWouldBlock
	}
	if n > 0 {
		ep.peer.raise(SignalReadable)
	}
	return n, nil
}

// Signal clears then sets user bits on this endpoint's wait object.
func (ep *endpoint[In, Out]) Signal(clear, set Signal) error {
	if (clear|set)&^userSignals != 0 {
		return ErrInvalidSignal
	}
	ep.self.update(clear, set)
	return nil
}

// Pending returns the bits currently raised on this endpoint.
func (ep *endpoint[In, Out]) Pending() Signal {
	return ep.self.pending()
}

// Wait blocks until any bit in mask is raised on this endpoint and returns
// the raised subset of mask. It has no timeout.
func (ep *endpoint[In, Out]) Wait(mask Signal) Signal {
	return ep.self.wait(mask)
}

// Close closes the FIFO for both ends. Records already written stay
// readable. Close is idempotent.
func (ep *endpoint[In, Out]) Close() {
	if ep.closed.Add(1) == 1 {
		ep.peer.raise(SignalPeerClosed)
		ep.self.raise(SignalPeerClosed)
	}
}

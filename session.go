// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import (
	"errors"
	"fmt"
	"sync"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/blockserver/control"
	"code.hybscloud.com/blockserver/fifo"
	"go.uber.org/zap"
)

// User signals on the server end of a session FIFO.
const (
	signalAbort     = fifo.SignalUser0
	signalWakeWrite = fifo.SignalUser1
)

// ErrSessionRunning is returned by a second concurrent or repeated Run.
var ErrSessionRunning = errors.New("blockserver: session loop already ran")

// Session serves one client over one FIFO.
//
// A *Session is a strong handle: every holder obtained it from
// [Driver.OnNewSession] or [Session.Acquire] and gives it back with
// exactly one [Session.Release]. The last release closes the FIFO and
// removes the session from its manager.
type Session struct {
	serial  Serial
	mgr     *SessionManager
	log     *zap.Logger
	fifo    *fifo.Server
	peer    *fifo.Client
	buffers bufferTable
	decoder *decoder
	offsets OffsetMap

	refMu sync.Mutex
	refs  int

	terminated atomix.Uint32
	running    atomix.Uint32

	// mu guards the response queue and serialises the FIFO write side.
	mu        sync.Mutex
	queue     []fifo.Response
	one       [1]fifo.Response
	peerTaken bool
	stream    *AbortHandle

	// Owned by the goroutine in Run.
	batch  []Request
	pieces []Operation
	emit   func(Operation)
}

func newSession(m *SessionManager, om OffsetMap) (*Session, error) {
	s := &Session{
		serial:  m.serials.next(),
		mgr:     m,
		offsets: om,
		refs:    1,
	}
	dec, err := newDecoder(m.info.BlockSize, m.opts.maxTransfer, &s.buffers)
	if err != nil {
		return nil, err
	}
	s.decoder = dec
	s.fifo, s.peer = fifo.New(m.opts.fifoDepth)
	s.log = m.log.With(zap.Uint32("session", s.serial))
	s.batch = make([]Request, 0, m.opts.batchSize)
	s.emit = func(op Operation) { s.pieces = append(s.pieces, op) }
	return s, nil
}

// Serial returns the session's identity.
func (s *Session) Serial() Serial { return s.serial }

// Acquire returns another strong handle to s.
// The caller must hold a handle already.
func (s *Session) Acquire() *Session {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	if s.refs <= 0 {
		panic("blockserver: Acquire on released session")
	}
	s.refs++
	return s
}

// tryAcquire upgrades a weak reference; it fails once the session dropped.
func (s *Session) tryAcquire() bool {
	s.refMu.Lock()
	defer s.refMu.Unlock()
	if s.refs <= 0 {
		return false
	}
	s.refs++
	return true
}

// Release gives back one strong handle.
func (s *Session) Release() {
	s.refMu.Lock()
	s.refs--
	n := s.refs
	s.refMu.Unlock()
	switch {
	case n == 0:
		s.drop()
	case n < 0:
		panic("blockserver: session released too many times")
	}
}

func (s *Session) drop() {
	s.fifo.Close()
	s.mu.Lock()
	queued := len(s.queue)
	s.queue = nil
	s.mu.Unlock()
	s.mgr.metrics.Queued(-queued)
	s.mgr.deregister(s.serial)
	s.log.Debug("session dropped", zap.Int("unsent", queued))
}

// Terminate asks the session loop to return and ends the session's control
// stream. Terminate is idempotent and safe from any goroutine.
func (s *Session) Terminate() {
	if s.terminated.Add(1) != 1 {
		return
	}
	_ = s.fifo.Signal(0, signalAbort)
	s.mu.Lock()
	h := s.stream
	s.mu.Unlock()
	if h != nil {
		h.Abort()
	}
	s.log.Debug("session terminated")
}

// Terminated reports whether Terminate was called.
func (s *Session) Terminated() bool {
	return s.terminated.Load() != 0
}

// attachStream binds the abort handle of the control stream serving s.
func (s *Session) attachStream(h *AbortHandle) {
	s.mu.Lock()
	s.stream = h
	s.mu.Unlock()
	if s.Terminated() {
		h.Abort()
	}
}

// SendResponse writes resp to the FIFO, or queues it behind earlier
// responses while the ring is full. Responses leave in call order.
// Responses for a closed FIFO are dropped.
func (s *Session) SendResponse(resp fifo.Response) {
	s.mgr.metrics.Response(resp.Status.String())
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		s.one[0] = resp
		_, err := s.fifo.Write(s.one[:])
		if err == nil || errors.Is(err, fifo.ErrPeerClosed) {
			return
		}
		s.mgr.metrics.RingFull()
	}
	s.queue = append(s.queue, resp)
	s.mgr.metrics.Queued(1)
	_ = s.fifo.Signal(0, signalWakeWrite)
}

// Buffer returns the attached buffer id, or nil if id is not attached.
// Drivers use it to reach the memory named by a request's buffer id.
func (s *Session) Buffer(id fifo.BufferID) *Buffer {
	return s.buffers.lookup(id)
}

// backlog returns the number of queued responses.
func (s *Session) backlog() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

var errFifoTaken = errors.New("fifo already handed out")

// handleControl answers the session control protocol.
func (s *Session) handleControl(req any) (any, error) {
	switch r := req.(type) {
	case control.FifoRequest:
		s.mu.Lock()
		taken := s.peerTaken
		s.peerTaken = true
		s.mu.Unlock()
		if taken {
			return nil, fmt.Errorf("%w: %w", fifo.StatusBadState, errFifoTaken)
		}
		return s.peer, nil
	case control.AttachBufferRequest:
		id, err := s.buffers.attach(r.Data)
		if err != nil {
			return nil, err
		}
		return id, nil
	default:
		return nil, fifo.StatusNotSupported
	}
}

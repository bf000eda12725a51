// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import (
	"errors"

	"code.hybscloud.com/blockserver/fifo"
	"code.hybscloud.com/iox"
	"go.uber.org/zap"
)

// Run serves the FIFO until the session is terminated or the FIFO is
// closed, both of which return nil. Any other FIFO error ends the loop
// and is returned. Run blocks without timeout and belongs on a goroutine
// of its own; it may run at most once.
func (s *Session) Run() error {
	if s.running.Add(1) != 1 {
		return ErrSessionRunning
	}
	s.log.Debug("session loop started")
	recs := make([]fifo.Request, s.fifo.Depth())
	for {
		if s.fifo.Pending()&signalAbort != 0 {
			return nil
		}
		if err := s.drain(); err != nil {
			if errors.Is(err, fifo.ErrPeerClosed) {
				return nil
			}
			s.log.Error("session write failed", zap.Error(err))
			return err
		}
		n, err := s.fifo.Read(recs)
		switch {
		case err == nil:
			s.dispatch(recs[:n])
			continue
		case errors.Is(err, fifo.ErrPeerClosed):
			return nil
		case !errors.Is(err, iox.ErrWouldBlock):
			s.log.Error("session read failed", zap.Error(err))
			return err
		}
		if !s.block() {
			return nil
		}
	}
}

// drain writes the longest prefix of queued responses the ring accepts.
func (s *Session) drain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	n, err := s.fifo.Write(s.queue)
	if n > 0 {
		s.queue = s.queue[:copy(s.queue, s.queue[n:])]
		s.mgr.metrics.Queued(-n)
	}
	if err != nil && !errors.Is(err, iox.ErrWouldBlock) {
		return err
	}
	return nil
}

// block waits for something to do and reports whether to keep running.
// A full ring with queued responses also waits for the client to read.
func (s *Session) block() bool {
	mask := fifo.SignalReadable | fifo.SignalPeerClosed | signalAbort | signalWakeWrite
	if s.backlog() > 0 {
		mask |= fifo.SignalWritable
	}
	got := s.fifo.Wait(mask)
	if got&signalAbort != 0 {
		return false
	}
	if got&signalWakeWrite != 0 {
		_ = s.fifo.Signal(signalWakeWrite, 0)
	}
	return true
}

// dispatch decodes recs in arrival order and hands the resulting requests
// to the driver in batches.
func (s *Session) dispatch(recs []fifo.Request) {
	for i := range recs {
		s.decodeOne(&recs[i])
	}
	s.flush()
}

func (s *Session) decodeOne(rec *fifo.Request) {
	op, buf, err := s.decoder.decode(*rec)
	if err != nil {
		s.reject(rec.ReqID, err)
		return
	}
	s.mgr.metrics.Request(op.Kind.String())
	if op.Kind == OpCloseBuffer {
		s.buffers.release(rec.Buffer)
		s.SendResponse(fifo.Response{Status: fifo.StatusOK, ReqID: rec.ReqID, Count: 1})
		return
	}

	s.pieces = s.pieces[:0]
	if err := s.offsets.Map(op, s.emit); err != nil {
		s.reject(rec.ReqID, err)
		return
	}
	if len(s.pieces) == 0 {
		s.SendResponse(fifo.Response{Status: fifo.StatusOK, ReqID: rec.ReqID, Count: 1})
		return
	}
	base := s.mgr.active.open(s, rec.ReqID, len(s.pieces))
	for i, p := range s.pieces {
		if len(s.batch) == cap(s.batch) {
			s.flush()
		}
		s.batch = append(s.batch, Request{
			ID:          base + RequestID(i),
			Op:          p,
			TraceFlowID: rec.TraceFlowID,
			Buffer:      buf,
		})
	}
}

func (s *Session) reject(reqID uint32, err error) {
	s.log.Debug("request rejected", zap.Uint32("reqid", reqID), zap.Error(err))
	s.SendResponse(fifo.Response{Status: fifo.StatusOf(err), ReqID: reqID, Count: 1})
}

func (s *Session) flush() {
	if len(s.batch) == 0 {
		return
	}
	s.mgr.metrics.Batch(len(s.batch))
	s.mgr.driver.OnRequests(s, s.batch)
	clear(s.batch)
	s.batch = s.batch[:0]
}

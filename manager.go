// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import (
	"context"
	"sync"
	"weak"

	"code.hybscloud.com/blockserver/control"
	"code.hybscloud.com/blockserver/fifo"
	"code.hybscloud.com/blockserver/pkg/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SessionManager admits sessions and routes completions back to them.
// It refers to sessions only weakly: looking one up never keeps it alive.
type SessionManager struct {
	info    PartitionInfo
	driver  Driver
	opts    *options
	log     *zap.Logger
	metrics *metrics.Metrics
	active  *activeRequests
	serials serialSource

	mu       sync.Mutex
	cond     sync.Cond
	sessions map[Serial]weak.Pointer[Session]
}

func newSessionManager(info PartitionInfo, drv Driver, o *options) *SessionManager {
	m := &SessionManager{
		info:     info,
		driver:   drv,
		opts:     o,
		log:      o.logger,
		metrics:  o.metrics,
		active:   newActiveRequests(),
		sessions: make(map[Serial]weak.Pointer[Session]),
	}
	m.cond.L = &m.mu
	return m
}

// OpenSession creates a session addressed through om, registers it and
// hands a strong handle to [Driver.OnNewSession]. The returned stream
// serves the session control protocol on ch; when it ends for any reason
// the session is terminated. Nothing is registered on error.
func (m *SessionManager) OpenSession(ch *control.Channel, om OffsetMap) (*SessionStream, error) {
	_, span := m.opts.tracer.Start(context.Background(), "blockserver.OpenSession",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	s, err := newSession(m, om)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("blockserver.session", int64(s.serial)))

	m.mu.Lock()
	m.sessions[s.serial] = weak.Make(s)
	m.mu.Unlock()
	m.metrics.SessionOpened()
	s.log.Info("session opened")

	m.driver.OnNewSession(s.Acquire())
	span.SetStatus(codes.Ok, "")
	return &SessionStream{session: s, task: control.NewTask(ch, control.Serve(s.handleControl))}, nil
}

// CompleteRequest records the completion of id. When it completes the last
// outstanding part of a wire request, the response goes to the owning
// session if that is still alive. Unknown or repeated ids are ignored.
func (m *SessionManager) CompleteRequest(id RequestID, status fifo.Status) {
	g, last := m.active.complete(id, status)
	if !last {
		return
	}
	s := g.session.Value()
	if s == nil || !s.tryAcquire() {
		return
	}
	defer s.Release()
	s.SendResponse(fifo.Response{Status: g.status, ReqID: g.reqID, Count: 1})
}

// Len returns the number of registered sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) deregister(serial Serial) {
	m.mu.Lock()
	delete(m.sessions, serial)
	if len(m.sessions) == 0 {
		m.cond.Broadcast()
	}
	m.mu.Unlock()
	m.metrics.SessionClosed()
}

// terminate terminates every live session and waits until all of them
// dropped. Strong handles taken here are given back before the registry
// lock is retaken, since dropping a session needs that lock.
func (m *SessionManager) terminate() {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for serial, wp := range m.sessions {
		s := wp.Value()
		if s == nil {
			delete(m.sessions, serial)
			continue
		}
		if s.tryAcquire() {
			live = append(live, s)
		}
	}
	m.mu.Unlock()

	for _, s := range live {
		s.Terminate()
		s.Release()
	}

	m.mu.Lock()
	for len(m.sessions) > 0 {
		m.cond.Wait()
	}
	m.mu.Unlock()
	m.log.Debug("all sessions dropped")
}

// SessionStream is the future serving one session's control channel.
// It holds the opener's handle to the session until it ends.
type SessionStream struct {
	session *Session
	task    *control.Task[struct{}]
	done    bool
}

// Session returns the session the stream serves.
func (st *SessionStream) Session() *Session { return st.session }

func (st *SessionStream) Poll() (bool, error) {
	ready, err := st.task.Poll()
	if ready {
		st.finish()
	}
	return ready, err
}

func (st *SessionStream) Cancel() {
	st.task.Cancel()
	st.finish()
}

func (st *SessionStream) finish() {
	if st.done {
		return
	}
	st.done = true
	st.session.Terminate()
	st.session.Release()
}

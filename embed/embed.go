// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package embed

import (
	"sync"

	"code.hybscloud.com/blockserver"
	"code.hybscloud.com/blockserver/control"
	"code.hybscloud.com/blockserver/fifo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PartitionInfo describes the exported partition in plain fields.
type PartitionInfo struct {
	Name         string
	TypeGUID     [16]byte
	InstanceGUID [16]byte
	BlockSize    uint32
	BlockCount   uint64
}

// Request is a decoded request in plain fields. Opcode holds a
// blockserver.OperationKind. Buffer names the attached
// buffer the request addresses, zero for none; [Runtime.SessionBuffer]
// resolves it. The embedder must not use it after completing the request.
type Request struct {
	ID           uint64
	Opcode       uint8
	Flags        uint8
	Buffer       uint16
	BlockCount   uint32
	DeviceOffset uint64
	BufferOffset uint64
	TraceFlowID  uint64
}

// Callbacks is what the embedder implements.
type Callbacks struct {
	// StartThread receives a thread handle. The embedder calls ThreadRun
	// and then ThreadDelete with it on a new thread.
	StartThread func(thread Handle)
	// OnNewSession receives a session handle. The embedder calls
	// SessionRun and then SessionRelease with it on a thread of its own.
	OnNewSession func(session Handle)
	// OnRequests receives decoded requests; reqs is only valid during the
	// call. SendReply must be called exactly once per request id.
	OnRequests func(session Handle, reqs []Request)
}

// Runtime owns every object handed across the boundary.
type Runtime struct {
	handles handleTable
	log     *zap.Logger

	mu       sync.Mutex
	sessions map[*blockserver.Session]Handle
}

func NewRuntime(log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{log: log, sessions: make(map[*blockserver.Session]Handle)}
}

// Live returns the number of handles not yet released.
func (r *Runtime) Live() int { return r.handles.len() }

// NewServer creates a server and returns its handle. It returns after the
// embedder started the thread from Callbacks.StartThread.
func (r *Runtime) NewServer(info PartitionInfo, cb Callbacks, opts ...blockserver.Option) (Handle, error) {
	drv := &driver{rt: r, cb: cb}
	srv, err := blockserver.New(blockserver.PartitionInfo{
		Name:         info.Name,
		TypeGUID:     uuid.UUID(info.TypeGUID),
		InstanceGUID: uuid.UUID(info.InstanceGUID),
		BlockSize:    info.BlockSize,
		BlockCount:   info.BlockCount,
	}, drv, append([]blockserver.Option{blockserver.WithLogger(r.log)}, opts...)...)
	if err != nil {
		return 0, err
	}
	return r.handles.insert(srv), nil
}

// ThreadRun serves the executor on the calling thread until the server
// shuts down. The handle stays valid for ThreadDelete.
func (r *Runtime) ThreadRun(thread Handle) error {
	t, err := getAs[*blockserver.Thread](&r.handles, thread)
	if err != nil {
		return err
	}
	t.Execute()
	return nil
}

// ThreadDelete releases the thread handle. If the server was handed over
// by DeleteServerAsync, it is destroyed here and its callback invoked.
func (r *Runtime) ThreadDelete(thread Handle) error {
	t, err := takeAs[*blockserver.Thread](&r.handles, thread)
	if err != nil {
		return err
	}
	t.Exit()
	return nil
}

// DeleteServer shuts the server down and waits for it. It releases the
// handle.
func (r *Runtime) DeleteServer(server Handle) error {
	srv, err := takeAs[*blockserver.BlockServer](&r.handles, server)
	if err != nil {
		return err
	}
	srv.Close()
	return nil
}

// DeleteServerAsync releases the handle and shuts the server down on its
// executor thread, which calls callback(arg) once it is gone.
func (r *Runtime) DeleteServerAsync(server Handle, callback func(arg uintptr), arg uintptr) error {
	srv, err := takeAs[*blockserver.BlockServer](&r.handles, server)
	if err != nil {
		return err
	}
	srv.CloseAsync(func(a any) {
		if callback != nil {
			callback(a.(uintptr))
		}
	}, arg)
	return nil
}

// Serve answers the volume control protocol on ch.
func (r *Runtime) Serve(server Handle, ch *control.Channel) error {
	srv, err := getAs[*blockserver.BlockServer](&r.handles, server)
	if err != nil {
		return err
	}
	srv.Serve(ch)
	return nil
}

// SessionRun runs the session loop on the calling thread.
func (r *Runtime) SessionRun(session Handle) error {
	s, err := getAs[*blockserver.Session](&r.handles, session)
	if err != nil {
		return err
	}
	return s.Run()
}

// SessionRelease releases the session handle.
func (r *Runtime) SessionRelease(session Handle) error {
	s, err := takeAs[*blockserver.Session](&r.handles, session)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.sessions, s)
	r.mu.Unlock()
	s.Release()
	return nil
}

// SessionBuffer returns the memory of buffer id attached to session, as
// named by [Request.Buffer]. The slice stays valid until the client closes
// the buffer; the embedder must not touch it after completing the request
// that referenced it. An id that is not attached yields
// fifo.StatusBadHandle.
func (r *Runtime) SessionBuffer(session Handle, id uint16) ([]byte, error) {
	s, err := getAs[*blockserver.Session](&r.handles, session)
	if err != nil {
		return nil, err
	}
	buf := s.Buffer(fifo.BufferID(id))
	if buf == nil {
		return nil, fifo.StatusBadHandle
	}
	return buf.Bytes(), nil
}

// SendReply completes request id with status.
func (r *Runtime) SendReply(server Handle, id uint64, status int32) error {
	srv, err := getAs[*blockserver.BlockServer](&r.handles, server)
	if err != nil {
		return err
	}
	srv.CompleteRequest(blockserver.RequestID(id), fifo.Status(status))
	return nil
}

// driver adapts the embedder's callbacks to blockserver.Driver.
type driver struct {
	rt *Runtime
	cb Callbacks
}

func (d *driver) StartThread(t *blockserver.Thread) {
	d.cb.StartThread(d.rt.handles.insert(t))
}

func (d *driver) OnNewSession(s *blockserver.Session) {
	h := d.rt.handles.insert(s)
	d.rt.mu.Lock()
	d.rt.sessions[s] = h
	d.rt.mu.Unlock()
	d.cb.OnNewSession(h)
}

var requestPool = sync.Pool{
	New: func() any { return new([]Request) },
}

func (d *driver) OnRequests(s *blockserver.Session, reqs []blockserver.Request) {
	d.rt.mu.Lock()
	h := d.rt.sessions[s]
	d.rt.mu.Unlock()

	p := requestPool.Get().(*[]Request)
	out := (*p)[:0]
	for _, req := range reqs {
		var buf uint16
		if req.Buffer != nil {
			buf = uint16(req.Buffer.ID())
		}
		out = append(out, Request{
			ID:           uint64(req.ID),
			Opcode:       uint8(req.Op.Kind),
			Flags:        uint8(req.Op.Flags),
			Buffer:       buf,
			BlockCount:   req.Op.BlockCount,
			DeviceOffset: req.Op.DeviceOffset,
			BufferOffset: req.Op.BufferOffset,
			TraceFlowID:  req.TraceFlowID,
		})
	}
	d.cb.OnRequests(h, out)
	*p = out
	requestPool.Put(p)
}

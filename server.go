// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import (
	"errors"
	"fmt"
	"runtime"

	"code.hybscloud.com/blockserver/control"
	"code.hybscloud.com/blockserver/fifo"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrThreadExited is returned by New when the executor thread exits
	// before it starts serving.
	ErrThreadExited = errors.New("blockserver: executor thread exited before initializing")

	errBlockCount = errors.New("blockserver: partition must have at least one block")
	errFifoDepth  = errors.New("blockserver: fifo depth must be a power of two >= 2")
)

// PartitionInfo describes the device a server exports.
type PartitionInfo struct {
	Name         string
	TypeGUID     uuid.UUID
	InstanceGUID uuid.UUID
	BlockSize    uint32
	BlockCount   uint64
}

// Driver carries out block operations for a [BlockServer].
type Driver interface {
	// StartThread must arrange for t.Run (or t.Execute then t.Exit) to be
	// called on a new goroutine. It must not call them itself.
	StartThread(t *Thread)

	// OnNewSession passes ownership of one strong handle. The driver runs
	// s.Run on a goroutine of its own and calls s.Release exactly once
	// after Run returned.
	OnNewSession(s *Session)

	// OnRequests hands over decoded requests in arrival order. reqs is only
	// valid during the call. Every request must be completed exactly once
	// with [BlockServer.CompleteRequest].
	OnRequests(s *Session, reqs []Request)
}

// BlockServer exports one partition to clients. Control streams and
// session admission run on a dedicated executor thread; session loops run
// on goroutines the driver provides.
type BlockServer struct {
	info PartitionInfo
	opts options
	log  *zap.Logger
	mgr  *SessionManager
	ex   *Executor
	mb   *mailbox
}

// New starts the executor thread through drv and returns once it serves.
func New(info PartitionInfo, drv Driver, opts ...Option) (*BlockServer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if info.BlockSize == 0 || info.BlockSize&(info.BlockSize-1) != 0 {
		return nil, errBlockSize
	}
	if info.BlockCount == 0 {
		return nil, errBlockCount
	}
	if o.fifoDepth < 2 || o.fifoDepth&(o.fifoDepth-1) != 0 {
		return nil, errFifoDepth
	}

	mb := newMailbox()
	drv.StartThread(&Thread{mb: mb, ex: newExecutor()})
	m := mb.awaitStart()
	if m.kind != mailInitialized {
		return nil, ErrThreadExited
	}
	s := &BlockServer{
		info: info,
		opts: o,
		log:  o.logger.With(zap.String("partition", info.Name)),
		ex:   m.executor,
		mb:   mb,
	}
	s.mgr = newSessionManager(info, drv, &s.opts)
	s.log.Info("block server started",
		zap.Uint32("block_size", info.BlockSize),
		zap.Uint64("block_count", info.BlockCount))
	return s, nil
}

// Manager returns the server's session manager.
func (s *BlockServer) Manager() *SessionManager { return s.mgr }

// CompleteRequest completes a request handed to [Driver.OnRequests].
func (s *BlockServer) CompleteRequest(id RequestID, status fifo.Status) {
	s.mgr.CompleteRequest(id, status)
}

// Serve answers the volume control protocol on ch from the executor
// thread until the client closes ch or the server shuts down.
func (s *BlockServer) Serve(ch *control.Channel) *AbortHandle {
	return s.ex.Spawn(control.NewTask(ch, control.Serve(s.handleVolume)), func(err error) {
		if err != nil && !errors.Is(err, ErrAborted) {
			s.log.Warn("control stream failed", zap.Error(err))
		}
	})
}

func (s *BlockServer) handleVolume(req any) (any, error) {
	switch r := req.(type) {
	case control.InfoRequest:
		return control.Info{
			BlockSize:         s.info.BlockSize,
			BlockCount:        s.info.BlockCount,
			MaxTransferBlocks: s.opts.maxTransfer,
			FifoDepth:         s.opts.fifoDepth,
		}, nil
	case control.PartitionRequest:
		return control.Partition{
			Name:         s.info.Name,
			TypeGUID:     s.info.TypeGUID,
			InstanceGUID: s.info.InstanceGUID,
		}, nil
	case control.OpenSessionRequest:
		om, err := s.offsetMap(r.Mappings)
		if err != nil {
			return nil, err
		}
		cli, srv := control.New()
		stream, err := s.mgr.OpenSession(srv, om)
		if err != nil {
			cli.Close()
			return nil, err
		}
		h := s.ex.Spawn(stream, func(err error) {
			if err != nil && !errors.Is(err, ErrAborted) {
				stream.session.log.Warn("session control stream failed", zap.Error(err))
			}
		})
		stream.session.attachStream(h)
		return cli, nil
	default:
		return nil, fifo.StatusNotSupported
	}
}

func (s *BlockServer) offsetMap(mappings []control.Mapping) (OffsetMap, error) {
	if len(mappings) == 0 {
		return IdentityMap{BlockCount: s.info.BlockCount}, nil
	}
	extents := make([]Extent, len(mappings))
	for i, mp := range mappings {
		extents[i] = Extent{Source: mp.Source, Target: mp.Target, Length: mp.Length}
	}
	em, err := NewExtentMap(s.info.BlockCount, extents...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fifo.StatusInvalidArgs, err)
	}
	return em, nil
}

// Close stops the executor, waits for its thread to exit, then terminates
// every session and waits for them to drop.
func (s *BlockServer) Close() {
	s.ex.Abort()
	s.mb.awaitFinished()
	s.destroy()
}

// CloseAsync hands the server to its executor thread, which destroys it on
// exit and then calls callback(arg). If the thread already exited, both
// happen before CloseAsync returns. s must not be used afterwards.
func (s *BlockServer) CloseAsync(callback func(any), arg any) {
	ex := s.ex
	if !s.mb.postAsyncShutdown(s, callback, arg) {
		s.destroy()
		if callback != nil {
			callback(arg)
		}
		return
	}
	ex.Abort()
}

func (s *BlockServer) destroy() {
	s.mgr.terminate()
	s.log.Info("block server stopped")
}

// Thread is the executor thread of a [BlockServer].
type Thread struct {
	mb *mailbox
	ex *Executor
}

// Execute serves the executor on the calling goroutine, locked to its OS
// thread, until the server shuts down.
func (t *Thread) Execute() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	t.mb.postInitialized(t.ex)
	t.ex.Run()
}

// Exit reports the thread gone. If an asynchronous shutdown handed the
// server over, Exit destroys it and invokes the shutdown callback.
func (t *Thread) Exit() {
	prev := t.mb.postFinished()
	if prev.kind != mailAsyncShutdown {
		return
	}
	prev.server.destroy()
	if prev.callback != nil {
		prev.callback(prev.arg)
	}
}

// Run is Execute followed by Exit.
func (t *Thread) Run() {
	t.Execute()
	t.Exit()
}

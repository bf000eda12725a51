// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/blockserver"
	"code.hybscloud.com/blockserver/control"
	"code.hybscloud.com/blockserver/fifo"
	"code.hybscloud.com/iox"
)

const testTimeout = 5 * time.Second

// recordingDriver runs every session loop on its own goroutine and
// records the batches it is handed.
type recordingDriver struct {
	batches  chan []blockserver.Request
	sessions chan *blockserver.Session
	runs     chan error
	wg       sync.WaitGroup
}

func newRecordingDriver() *recordingDriver {
	return &recordingDriver{
		batches:  make(chan []blockserver.Request, 256),
		sessions: make(chan *blockserver.Session, 16),
		runs:     make(chan error, 16),
	}
}

func (d *recordingDriver) StartThread(t *blockserver.Thread) {
	go t.Run()
}

func (d *recordingDriver) OnNewSession(s *blockserver.Session) {
	d.sessions <- s
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := s.Run()
		s.Release()
		d.runs <- err
	}()
}

func (d *recordingDriver) OnRequests(_ *blockserver.Session, reqs []blockserver.Request) {
	d.batches <- append([]blockserver.Request(nil), reqs...)
}

func (d *recordingDriver) nextBatch(t *testing.T) []blockserver.Request {
	t.Helper()
	select {
	case b := <-d.batches:
		return b
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a batch")
		return nil
	}
}

// collect gathers n decoded requests across batches.
func (d *recordingDriver) collect(t *testing.T, n int) []blockserver.Request {
	t.Helper()
	var out []blockserver.Request
	for len(out) < n {
		out = append(out, d.nextBatch(t)...)
	}
	return out
}

func (d *recordingDriver) noBatch(t *testing.T) {
	t.Helper()
	select {
	case b := <-d.batches:
		t.Fatalf("unexpected batch %+v", b)
	case <-time.After(20 * time.Millisecond):
	}
}

func testInfo() blockserver.PartitionInfo {
	return blockserver.PartitionInfo{Name: "test", BlockSize: 512, BlockCount: 64}
}

// openClient starts a server and negotiates one session on it.
func openClient(t *testing.T, drv *recordingDriver, opts ...blockserver.Option) (*blockserver.BlockServer, *fifo.Client, fifo.BufferID) {
	t.Helper()
	srv := startServer(t, drv, opts...)
	t.Cleanup(srv.Close)
	cli, ch := control.New()
	srv.Serve(ch)
	ring, buf := negotiate(t, cli)
	return srv, ring, buf
}

func startServer(t *testing.T, drv *recordingDriver, opts ...blockserver.Option) *blockserver.BlockServer {
	t.Helper()
	srv, err := blockserver.New(testInfo(), drv, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

// negotiate opens a session on cli and attaches an eight block buffer.
func negotiate(t *testing.T, cli *control.Channel, mappings ...control.Mapping) (*fifo.Client, fifo.BufferID) {
	t.Helper()
	session, err := control.OpenSession(cli, mappings...)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	ring, err := control.GetFifo(session)
	if err != nil {
		t.Fatalf("GetFifo: %v", err)
	}
	buf, err := control.AttachBuffer(session, make([]byte, 8*512))
	if err != nil {
		t.Fatalf("AttachBuffer: %v", err)
	}
	return ring, buf
}

// writeAll writes reqs, waiting for room while the ring is full.
func writeAll(t *testing.T, ring *fifo.Client, reqs []fifo.Request) {
	t.Helper()
	for len(reqs) > 0 {
		n, err := ring.Write(reqs)
		if err != nil && !errors.Is(err, iox.ErrWouldBlock) {
			t.Fatalf("Write: %v", err)
		}
		reqs = reqs[n:]
		if len(reqs) > 0 {
			ring.Wait(fifo.SignalWritable | fifo.SignalPeerClosed)
		}
	}
}

// readResponses reads exactly n responses.
func readResponses(t *testing.T, ring *fifo.Client, n int) []fifo.Response {
	t.Helper()
	out := make([]fifo.Response, 0, n)
	buf := make([]fifo.Response, ring.Depth())
	deadline := time.Now().Add(testTimeout)
	for len(out) < n {
		if time.Now().After(deadline) {
			t.Fatalf("read %d of %d responses before timeout", len(out), n)
		}
		m, err := ring.Read(buf[:min(len(buf), n-len(out))])
		if err != nil {
			if !errors.Is(err, iox.ErrWouldBlock) {
				t.Fatalf("Read: %v", err)
			}
			time.Sleep(time.Millisecond)
			continue
		}
		out = append(out, buf[:m]...)
	}
	return out
}

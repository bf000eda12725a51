// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fifo_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/blockserver/fifo"
	"code.hybscloud.com/iox"
)

func TestRequestRoundTrip(t *testing.T) {
	skipRace(t)
	srv, cli := fifo.New(4)

	want := fifo.Request{Opcode: fifo.OpRead, ReqID: 7, Buffer: 1, Length: 2, DeviceOffset: 9}
	n, err := cli.Write([]fifo.Request{want})
	if err != nil || n != 1 {
		t.Fatalf("Write got (%d, %v), want (1, nil)", n, err)
	}
	if got := srv.Pending(); got&fifo.SignalReadable == 0 {
		t.Fatalf("server pending %b, want readable", got)
	}

	var buf [4]fifo.Request
	n, err = srv.Read(buf[:])
	if err != nil || n != 1 {
		t.Fatalf("Read got (%d, %v), want (1, nil)", n, err)
	}
	if buf[0] != want {
		t.Fatalf("Read got %+v, want %+v", buf[0], want)
	}
	if got := cli.Pending(); got&fifo.SignalWritable == 0 {
		t.Fatalf("client pending %b, want writable", got)
	}
}

func TestReadEmptyWouldBlock(t *testing.T) {
	skipRace(t)
	srv, _ := fifo.New(4)

	var buf [1]fifo.Request
	if _, err := srv.Read(buf[:]); !errors.Is(err, iox.ErrWouldBlock) {
		t.Fatalf("Read on empty ring got %v, want ErrWouldBlock", err)
	}
}

func TestPartialWrite(t *testing.T) {
	skipRace(t)
	srv, _ := fifo.New(4)

	resps := make([]fifo.Response, 6)
	for i := range resps {
		resps[i].ReqID = uint32(i)
	}
	n, err := srv.Write(resps)
	if err != nil {
		t.Fatalf("partial Write error: %v", err)
	}
	if n == 0 || n >= len(resps) {
		t.Fatalf("partial Write got %d, want 0 < n < %d", n, len(resps))
	}
	if _, err := srv.Write(resps[n:]); !errors.Is(err, iox.ErrWouldBlock) {
		t.Fatalf("Write on full ring got %v, want ErrWouldBlock", err)
	}
}

func TestResponsesFIFOOrder(t *testing.T) {
	skipRace(t)
	srv, cli := fifo.New(16)

	for i := range 8 {
		if _, err := srv.Write([]fifo.Response{{ReqID: uint32(i)}}); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	var got [8]fifo.Response
	n, err := cli.Read(got[:])
	if err != nil || n != 8 {
		t.Fatalf("Read got (%d, %v), want (8, nil)", n, err)
	}
	for i := range n {
		if got[i].ReqID != uint32(i) {
			t.Fatalf("response %d has ReqID %d", i, got[i].ReqID)
		}
	}
}

func TestCloseDrainsThenReportsPeerClosed(t *testing.T) {
	skipRace(t)
	srv, cli := fifo.New(4)

	if _, err := cli.Write([]fifo.Request{{ReqID: 1}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	cli.Close()
	cli.Close()

	if got := srv.Wait(fifo.SignalPeerClosed); got != fifo.SignalPeerClosed {
		t.Fatalf("Wait got %b, want peer closed", got)
	}
	var buf [4]fifo.Request
	if n, err := srv.Read(buf[:]); err != nil || n != 1 {
		t.Fatalf("Read after close got (%d, %v), want (1, nil)", n, err)
	}
	if _, err := srv.Read(buf[:]); !errors.Is(err, fifo.ErrPeerClosed) {
		t.Fatalf("Read drained got %v, want ErrPeerClosed", err)
	}
	if _, err := srv.Write([]fifo.Response{{}}); !errors.Is(err, fifo.ErrPeerClosed) {
		t.Fatalf("Write after close got %v, want ErrPeerClosed", err)
	}
}

func TestUserSignals(t *testing.T) {
	srv, _ := fifo.New(2)

	if err := srv.Signal(0, fifo.SignalReadable); !errors.Is(err, fifo.ErrInvalidSignal) {
		t.Fatalf("Signal readable got %v, want ErrInvalidSignal", err)
	}
	if err := srv.Signal(0, fifo.SignalUser0|fifo.SignalUser1); err != nil {
		t.Fatalf("Signal: %v", err)
	}
	if got := srv.Wait(fifo.SignalUser1); got != fifo.SignalUser1 {
		t.Fatalf("Wait got %b, want user1", got)
	}
	if err := srv.Signal(fifo.SignalUser1, 0); err != nil {
		t.Fatalf("Signal clear: %v", err)
	}
	if got := srv.Pending(); got != fifo.SignalUser0 {
		t.Fatalf("Pending got %b, want user0 only", got)
	}
}

func TestWaitWakesOnWrite(t *testing.T) {
	skipRace(t)
	srv, cli := fifo.New(4)

	done := make(chan fifo.Signal)
	go func() {
		done <- srv.Wait(fifo.SignalReadable | fifo.SignalUser0)
	}()
	if _, err := cli.Write([]fifo.Request{{ReqID: 3}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := <-done; got&fifo.SignalReadable == 0 {
		t.Fatalf("Wait got %b, want readable", got)
	}
}

func TestNewRejectsBadDepth(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for depth 3")
		}
	}()
	fifo.New(3)
}

func TestStatus(t *testing.T) {
	if err := fifo.StatusOK.Err(); err != nil {
		t.Fatalf("StatusOK.Err got %v, want nil", err)
	}
	wrapped := errors.Join(errors.New("decode"), fifo.StatusBadHandle)
	if got := fifo.StatusOf(wrapped); got != fifo.StatusBadHandle {
		t.Fatalf("StatusOf got %v, want BAD_HANDLE", got)
	}
	if got := fifo.StatusOf(errors.New("other")); got != fifo.StatusInternal {
		t.Fatalf("StatusOf got %v, want INTERNAL", got)
	}
	if got := fifo.Status(-99).String(); got != "STATUS(-99)" {
		t.Fatalf("String got %q", got)
	}
}

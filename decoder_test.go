// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import (
	"errors"
	"math"
	"testing"

	"code.hybscloud.com/blockserver/fifo"
)

func TestNewDecoderBlockSize(t *testing.T) {
	for _, bs := range []uint32{0, 3, 500} {
		if _, err := newDecoder(bs, 0, &bufferTable{}); !errors.Is(err, errBlockSize) {
			t.Fatalf("newDecoder(%d) got %v, want errBlockSize", bs, err)
		}
	}
	d, err := newDecoder(4096, 0, &bufferTable{})
	if err != nil {
		t.Fatalf("newDecoder(4096): %v", err)
	}
	if d.blockShift != 12 {
		t.Fatalf("block shift got %d, want 12", d.blockShift)
	}
}

func TestDecode(t *testing.T) {
	var bufs bufferTable
	id, _ := bufs.attach(make([]byte, 4*512))
	d, _ := newDecoder(512, 8, &bufs)

	tests := []struct {
		name string
		rec  fifo.Request
		kind OperationKind
		err  error
	}{
		{"read", fifo.Request{Opcode: fifo.OpRead, Buffer: id, Length: 4}, OpRead, nil},
		{"write tail", fifo.Request{Opcode: fifo.OpWrite, Buffer: id, Length: 1, BufferOffset: 3}, OpWrite, nil},
		{"flush", fifo.Request{Opcode: fifo.OpFlush}, OpFlush, nil},
		{"trim", fifo.Request{Opcode: fifo.OpTrim, Length: 8, DeviceOffset: 100}, OpTrim, nil},
		{"close", fifo.Request{Opcode: fifo.OpCloseBuffer, Buffer: id}, OpCloseBuffer, nil},
		{"opcode", fifo.Request{Opcode: 0}, 0, fifo.StatusNotSupported},
		{"zero length", fifo.Request{Opcode: fifo.OpRead, Buffer: id}, OpRead, fifo.StatusInvalidArgs},
		{"trim zero", fifo.Request{Opcode: fifo.OpTrim}, OpTrim, fifo.StatusInvalidArgs},
		{"max transfer", fifo.Request{Opcode: fifo.OpTrim, Length: 9}, OpTrim, fifo.StatusInvalidArgs},
		{"bad handle", fifo.Request{Opcode: fifo.OpRead, Buffer: id + 1, Length: 1}, OpRead, fifo.StatusBadHandle},
		{"close unattached", fifo.Request{Opcode: fifo.OpCloseBuffer, Buffer: id + 7}, OpCloseBuffer, nil},
		{"buffer bounds", fifo.Request{Opcode: fifo.OpRead, Buffer: id, Length: 2, BufferOffset: 3}, OpRead, fifo.StatusOutOfRange},
		{"buffer overflow", fifo.Request{Opcode: fifo.OpRead, Buffer: id, Length: 2, BufferOffset: math.MaxUint64}, OpRead, fifo.StatusOutOfRange},
	}
	for _, tt := range tests {
		op, buf, err := d.decode(tt.rec)
		if !errors.Is(err, tt.err) && err != tt.err {
			t.Fatalf("%s: err got %v, want %v", tt.name, err, tt.err)
		}
		if err != nil {
			continue
		}
		if op.Kind != tt.kind {
			t.Fatalf("%s: kind got %v, want %v", tt.name, op.Kind, tt.kind)
		}
		needsBuf := tt.kind == OpRead || tt.kind == OpWrite
		if needsBuf != (buf != nil) {
			t.Fatalf("%s: buffer got %v, want present=%v", tt.name, buf, needsBuf)
		}
	}
}

func TestBufferTable(t *testing.T) {
	var bufs bufferTable
	a, _ := bufs.attach(nil)
	b, _ := bufs.attach(nil)
	if a != 1 || b != 2 {
		t.Fatalf("ids got %d, %d, want 1, 2", a, b)
	}
	if !bufs.release(a) || bufs.release(a) {
		t.Fatal("release must succeed exactly once")
	}
	bufs.last = math.MaxUint16 - 1
	c, _ := bufs.attach(nil)
	d, _ := bufs.attach(nil)
	if c != math.MaxUint16 || d != 1 {
		t.Fatalf("wrapped ids got %d, %d, want %d, 1", c, d, math.MaxUint16)
	}
	e, _ := bufs.attach(nil)
	if e != 3 {
		t.Fatalf("id after in-use skip got %d, want 3", e)
	}
	if bufs.len() != 4 {
		t.Fatalf("len got %d, want 4", bufs.len())
	}
}

func TestIdentityMap(t *testing.T) {
	var got []Operation
	emit := func(op Operation) { got = append(got, op) }
	m := IdentityMap{BlockCount: 16}

	op := Operation{Kind: OpRead, DeviceOffset: 12, BlockCount: 4}
	if err := m.Map(op, emit); err != nil || len(got) != 1 || got[0] != op {
		t.Fatalf("Map in range got (%v, %+v)", err, got)
	}
	if err := m.Map(Operation{Kind: OpWrite, DeviceOffset: 13, BlockCount: 4}, emit); !errors.Is(err, fifo.StatusOutOfRange) {
		t.Fatalf("Map past end got %v, want OUT_OF_RANGE", err)
	}
	if err := m.Map(Operation{Kind: OpTrim, DeviceOffset: math.MaxUint64, BlockCount: 2}, emit); !errors.Is(err, fifo.StatusOutOfRange) {
		t.Fatalf("Map overflow got %v, want OUT_OF_RANGE", err)
	}
	if err := m.Map(Operation{Kind: OpFlush, DeviceOffset: 1 << 40}, emit); err != nil {
		t.Fatalf("Map flush got %v", err)
	}
	if err := (IdentityMap{}).Map(Operation{Kind: OpRead, DeviceOffset: 1 << 40, BlockCount: 1}, emit); err != nil {
		t.Fatalf("unbounded Map got %v", err)
	}
}

func TestNewExtentMapRejects(t *testing.T) {
	cases := map[string][]Extent{
		"zero length": {{Source: 0, Target: 0, Length: 0}},
		"past device": {{Source: 0, Target: 60, Length: 8}},
		"overlap":     {{Source: 4, Target: 0, Length: 4}, {Source: 0, Target: 8, Length: 5}},
		"overflow":    {{Source: math.MaxUint64, Target: 0, Length: 2}},
	}
	for name, extents := range cases {
		if _, err := NewExtentMap(64, extents...); !errors.Is(err, errExtent) {
			t.Fatalf("%s: got %v, want errExtent", name, err)
		}
	}
}

func TestExtentMapSplits(t *testing.T) {
	m, err := NewExtentMap(64,
		Extent{Source: 8, Target: 0, Length: 2},
		Extent{Source: 0, Target: 40, Length: 4},
		Extent{Source: 4, Target: 20, Length: 4},
	)
	if err != nil {
		t.Fatalf("NewExtentMap: %v", err)
	}
	var got []Operation
	emit := func(op Operation) { got = append(got, op) }

	if err := m.Map(Operation{Kind: OpWrite, DeviceOffset: 3, BlockCount: 6, BufferOffset: 10, Flags: fifo.FlagForceAccess}, emit); err != nil {
		t.Fatalf("Map: %v", err)
	}
	want := []Operation{
		{Kind: OpWrite, DeviceOffset: 43, BlockCount: 1, BufferOffset: 10, Flags: fifo.FlagForceAccess},
		{Kind: OpWrite, DeviceOffset: 20, BlockCount: 4, BufferOffset: 11, Flags: fifo.FlagForceAccess},
		{Kind: OpWrite, DeviceOffset: 0, BlockCount: 1, BufferOffset: 15, Flags: fifo.FlagForceAccess},
	}
	if len(got) != len(want) {
		t.Fatalf("pieces got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("piece %d got %+v, want %+v", i, got[i], want[i])
		}
	}

	got = nil
	if err := m.Map(Operation{Kind: OpRead, DeviceOffset: 9, BlockCount: 2}, emit); !errors.Is(err, fifo.StatusOutOfRange) {
		t.Fatalf("Map past last extent got %v, want OUT_OF_RANGE", err)
	}
	if len(got) != 0 {
		t.Fatalf("partial mapping emitted %+v", got)
	}
	if err := m.Map(Operation{Kind: OpFlush}, emit); err != nil || len(got) != 1 {
		t.Fatalf("flush got (%v, %+v)", err, got)
	}
}

func TestActiveRequestsGroup(t *testing.T) {
	a := newActiveRequests()
	s := &Session{}
	base := a.open(s, 5, 3)
	other := a.open(s, 6, 1)
	if other != base+3 {
		t.Fatalf("ids not consecutive: base %d other %d", base, other)
	}

	if _, last := a.complete(base, fifo.StatusIO); last {
		t.Fatal("first of three reported last")
	}
	if g, last := a.complete(base, fifo.StatusOK); g != nil || last {
		t.Fatal("repeated completion found an entry")
	}
	a.complete(base+1, fifo.StatusOK)
	g, last := a.complete(base+2, fifo.StatusNoMemory)
	if !last || g.reqID != 5 || g.status != fifo.StatusIO {
		t.Fatalf("group got %+v last=%v, want reqid 5 status IO", g, last)
	}
	if g.session.Value() != s {
		t.Fatal("group lost its session")
	}
	if a.len() != 1 {
		t.Fatalf("len got %d, want 1", a.len())
	}
	if _, last := a.complete(999, fifo.StatusOK); last {
		t.Fatal("unknown id reported last")
	}
}

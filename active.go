// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import (
	"sync"
	"weak"

	"code.hybscloud.com/blockserver/fifo"
)

// requestGroup is every sub-request decoded from one wire record.
// It answers with a single response once all members completed.
type requestGroup struct {
	session   weak.Pointer[Session]
	reqID     uint32
	remaining int
	status    fifo.Status
}

// activeRequests maps in-flight request ids to their group.
// Each id is removed at most once.
type activeRequests struct {
	mu     sync.Mutex
	nextID RequestID
	ids    map[RequestID]*requestGroup
}

func newActiveRequests() *activeRequests {
	return &activeRequests{ids: make(map[RequestID]*requestGroup)}
}

// open registers n consecutive ids for one wire record of s and returns the first.
func (a *activeRequests) open(s *Session, reqID uint32, n int) RequestID {
	g := &requestGroup{session: weak.Make(s), reqID: reqID, remaining: n}
	a.mu.Lock()
	defer a.mu.Unlock()
	base := a.nextID + 1
	a.nextID += RequestID(n)
	for i := range n {
		a.ids[base+RequestID(i)] = g
	}
	return base
}

// complete removes id. It returns the group and true when id was the last
// outstanding member; the group status is the first failure seen, if any.
// Unknown ids return false.
func (a *activeRequests) complete(id RequestID, status fifo.Status) (*requestGroup, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.ids[id]
	if !ok {
		return nil, false
	}
	delete(a.ids, id)
	if g.status == fifo.StatusOK {
		g.status = status
	}
	g.remaining--
	return g, g.remaining == 0
}

func (a *activeRequests) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ids)
}

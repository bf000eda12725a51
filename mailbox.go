// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package blockserver

import "sync"

type mailKind uint8

const (
	mailNone mailKind = iota
	mailInitialized
	mailAsyncShutdown
	mailFinished
)

// destroyer is what an asynchronous shutdown hands to the executor thread.
type destroyer interface {
	destroy()
}

// mail is the single value a mailbox holds.
type mail struct {
	kind     mailKind
	executor *Executor // mailInitialized
	server   destroyer // mailAsyncShutdown
	callback func(any) // mailAsyncShutdown
	arg      any       // mailAsyncShutdown
}

// mailbox is the rendezvous between the constructing goroutine, the
// executor thread and whoever tears the server down. Mail is never posted
// over unconsumed mail: each transition either consumes the previous value
// or returns it to the poster.
type mailbox struct {
	mu   sync.Mutex
	cond sync.Cond
	m    mail
}

func newMailbox() *mailbox {
	b := &mailbox{}
	b.cond.L = &b.mu
	return b
}

// postInitialized hands the executor to the constructor.
func (b *mailbox) postInitialized(ex *Executor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.m.kind != mailNone {
		panic("blockserver: mailbox initialized twice")
	}
	b.m = mail{kind: mailInitialized, executor: ex}
	b.cond.Broadcast()
}

// awaitStart blocks until the thread initialized or finished. Initialized
// mail is consumed; finished mail stays for later readers.
func (b *mailbox) awaitStart() mail {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.m.kind == mailNone {
		b.cond.Wait()
	}
	m := b.m
	if m.kind == mailInitialized {
		b.m = mail{}
	}
	return m
}

// postAsyncShutdown transfers ownership of s to the executor thread.
// It returns false if the thread already finished; the caller then keeps
// ownership and must destroy s itself.
func (b *mailbox) postAsyncShutdown(s destroyer, callback func(any), arg any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.m.kind {
	case mailFinished:
		return false
	case mailNone:
		b.m = mail{kind: mailAsyncShutdown, server: s, callback: callback, arg: arg}
		return true
	default:
		panic("blockserver: mailbox shut down twice")
	}
}

// postFinished records that the executor thread is gone and returns the
// mail it replaced. Finished is terminal.
func (b *mailbox) postFinished() mail {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.m
	b.m = mail{kind: mailFinished}
	b.cond.Broadcast()
	return prev
}

func (b *mailbox) awaitFinished() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.m.kind != mailFinished {
		b.cond.Wait()
	}
}

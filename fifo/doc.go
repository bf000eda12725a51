// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fifo provides the ring channel a block session carries its data
// traffic on.
//
// A FIFO is a pair of bounded rings of fixed-size records: [Request] from
// client to server and [Response] from server to client. Each direction is a
// lock-free SPSC queue from [code.hybscloud.com/lfq].
//
// # Semantics
//
//   - Non-blocking: [Server.Read] and [Server.Write] return
//     [code.hybscloud.com/iox.ErrWouldBlock] at the ring boundary. Write may
//     accept fewer records than offered.
//   - Readiness: each endpoint owns a wait object. [SignalReadable],
//     [SignalWritable] and [SignalPeerClosed] are raised by the transport;
//     [SignalUser0] and [SignalUser1] are left to the owner.
//   - Blocking: [Server.Wait] parks until any requested bit is raised.
//
// # Example
//
//	srv, cli := fifo.New(fifo.DefaultDepth)
//	cli.Write([]fifo.Request{{Opcode: fifo.OpFlush, ReqID: 1}})
//	srv.Wait(fifo.SignalReadable)
//	var reqs [8]fifo.Request
//	n, _ := srv.Read(reqs[:])
package fifo

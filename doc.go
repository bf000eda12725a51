// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package blockserver is the session engine of a virtual block device
// server.
//
// A [BlockServer] exports one partition. Clients negotiate over the
// control plane (package control): they query the geometry, open a
// session, fetch its FIFO (package fifo) and attach buffers. Data traffic
// then flows as fixed-size records over the FIFO. Each session's loop
// decodes requests, maps them onto the device and hands them in batches
// to a [Driver]; the driver completes every request with
// [BlockServer.CompleteRequest], and the response travels back over the
// same FIFO.
//
// # Threads
//
//   - Executor thread: started through [Driver.StartThread]. Serves every
//     control stream and admits sessions, cooperatively, one effect at a
//     time. Control streams never block it.
//   - Session loops: [Session.Run] blocks without timeout, so the driver
//     runs each on a goroutine of its own.
//   - Completions: [BlockServer.CompleteRequest] may be called from any
//     goroutine, including from inside [Driver.OnRequests].
//
// # Session loop
//
// Each iteration drains queued responses into the FIFO, then reads up to
// a FIFO depth of requests. When there is nothing to read it blocks until
// the client writes, the FIFO closes, the session is terminated, or a
// response is queued. Per-request failures go back as a [fifo.Status] in
// the response; only FIFO failures end the loop. Close-buffer requests
// are completed by the session and never reach the driver.
//
// # Teardown
//
// [BlockServer.Close] stops the executor, waits for its thread and then
// for every session to drop. [BlockServer.CloseAsync] hands the server to
// the executor thread, which destroys it when it exits and then calls the
// supplied callback exactly once.
//
// # Example
//
//	srv, err := blockserver.New(info, drv, blockserver.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	defer srv.Close()
//
//	cli, ch := control.New()
//	srv.Serve(ch)
//	session, _ := control.OpenSession(cli)
//	ring, _ := control.GetFifo(session)
//	buf, _ := control.AttachBuffer(session, make([]byte, 4096))
//	ring.Write([]fifo.Request{{Opcode: fifo.OpRead, Buffer: buf, Length: 1, ReqID: 1}})
package blockserver

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package control provides the control plane a block client uses before
// any data traffic: querying the device, opening sessions, fetching the
// session FIFO and attaching shared buffers.
//
// Protocols are algebraic-effect programs on [code.hybscloud.com/kont]
// dispatched on a [Channel] end.
//
// # Architecture
//
//   - Transport: Lock-free bounded SPSC queues via [code.hybscloud.com/lfq]. [New] creates a client/server pair.
//   - Non-blocking: Operations return [code.hybscloud.com/iox.ErrWouldBlock] on backpressure.
//   - Serving: [Serve] turns a [Handler] into a request/reply loop. [Task] steps it one effect at a time so a
//     single-threaded executor can interleave many streams.
//   - Calling: [Call] and the typed helpers ([GetInfo], [OpenSession], [GetFifo], [AttachBuffer]) block the
//     caller with adaptive backoff.
//   - Delegation: [OpenSession] replies with a new [*Channel] end, served by its own task.
//
// # Example
//
//	cli, srv := control.New()
//	task := control.NewTask(srv, control.Serve(func(req any) (any, error) {
//		return control.Info{BlockSize: 512}, nil
//	}))
//	go func() {
//		for ready, _ := task.Poll(); !ready; ready, _ = task.Poll() {
//		}
//	}()
//	info, _ := control.GetInfo(cli)
//	cli.Close()
package control

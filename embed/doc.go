// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package embed exposes a block server to an embedding driver through
// flat entry points, plain structs and integer handles.
//
// Every object handed out (server, executor thread, session) is named by a
// [Handle] owned by a [Runtime]. Handles carry a generation, so a released
// handle never resolves again, and each has exactly one releasing entry
// point:
//
//   - server: DeleteServer or DeleteServerAsync
//   - thread: ThreadDelete, after ThreadRun returned
//   - session: SessionRelease, after SessionRun returned
//
// A second release returns [ErrInvalidHandle] instead of touching the
// object.
package embed

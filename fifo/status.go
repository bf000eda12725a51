// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fifo

import (
	"errors"
	"strconv"
)

// Status is the completion code carried by a Response.
// Negative values are failures; StatusOK is the only success.
type Status int32

const (
	StatusOK           Status = 0
	StatusInternal     Status = -1
	StatusNotSupported Status = -2
	StatusNoMemory     Status = -4
	StatusInvalidArgs  Status = -10
	StatusBadHandle    Status = -11
	StatusOutOfRange   Status = -14
	StatusBadState     Status = -20
	StatusPeerClosed   Status = -24
	StatusCanceled     Status = -23
	StatusIO           Status = -40
)

var statusStr = map[Status]string{
	StatusOK:           "OK",
	StatusInternal:     "INTERNAL",
	StatusNotSupported: "NOT_SUPPORTED",
	StatusNoMemory:     "NO_MEMORY",
	StatusInvalidArgs:  "INVALID_ARGS",
	StatusBadHandle:    "BAD_HANDLE",
	StatusOutOfRange:   "OUT_OF_RANGE",
	StatusBadState:     "BAD_STATE",
	StatusPeerClosed:   "PEER_CLOSED",
	StatusCanceled:     "CANCELED",
	StatusIO:           "IO",
}

func (s Status) String() string {
	if msg, ok := statusStr[s]; ok {
		return msg
	}
	return "STATUS(" + strconv.Itoa(int(s)) + ")"
}

// Error implements error so a Status can travel as one.
func (s Status) Error() string {
	return "fifo: " + s.String()
}

// Err returns nil for StatusOK and s otherwise.
func (s Status) Err() error {
	if s == StatusOK {
		return nil
	}
	return s
}

// StatusOf maps err to the Status a response should carry.
// Errors that do not wrap a Status map to StatusInternal.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusInternal
}

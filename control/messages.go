// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control

import "github.com/google/uuid"

// Volume requests.
type (
	// InfoRequest asks for the block geometry.
	InfoRequest struct{}

	// Info describes the device as seen by a session.
	Info struct {
		BlockSize         uint32
		BlockCount        uint64
		MaxTransferBlocks uint32
		FifoDepth         int
	}

	// PartitionRequest asks for the partition identity.
	PartitionRequest struct{}

	// Partition identifies the partition a server exports.
	Partition struct {
		Name         string
		TypeGUID     uuid.UUID
		InstanceGUID uuid.UUID
	}

	// OpenSessionRequest asks for a new session. An empty Mappings list
	// selects the identity mapping. The reply is the client end of the
	// session's own control channel.
	OpenSessionRequest struct {
		Mappings []Mapping
	}

	// Mapping translates Length blocks starting at Source in the session's
	// address space to Target on the device.
	Mapping struct {
		Source uint64
		Target uint64
		Length uint64
	}
)

// Session requests.
type (
	// FifoRequest asks for the client end of the session FIFO.
	FifoRequest struct{}

	// AttachBufferRequest attaches Data as a shared buffer. The reply is
	// the fifo.BufferID requests name it by.
	AttachBufferRequest struct {
		Data []byte
	}
)

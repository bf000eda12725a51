// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control

import (
	"code.hybscloud.com/blockserver/fifo"
	"code.hybscloud.com/kont"
)

// Call sends req on the client end ch and waits for its reply.
// Blocks with adaptive backoff; returns ErrClosed if the server goes away.
func Call[T any](ch *Channel, req any) (T, error) {
	var zero T
	reply, err := Exec(ch, SendThen(req, RecvBind(func(r Reply) kont.Eff[Reply] {
		return kont.Pure(r)
	})))
	if err != nil {
		return zero, err
	}
	if reply.Err != nil {
		return zero, reply.Err
	}
	v, ok := reply.Value.(T)
	if !ok {
		return zero, ErrUnexpectedReply
	}
	return v, nil
}

// GetInfo queries the device geometry.
func GetInfo(ch *Channel) (Info, error) {
	return Call[Info](ch, InfoRequest{})
}

// GetPartition queries the partition identity.
func GetPartition(ch *Channel) (Partition, error) {
	return Call[Partition](ch, PartitionRequest{})
}

// OpenSession opens a session and returns the client end of its channel.
func OpenSession(ch *Channel, mappings ...Mapping) (*Channel, error) {
	return Call[*Channel](ch, OpenSessionRequest{Mappings: mappings})
}

// GetFifo returns the client end of the session FIFO.
func GetFifo(session *Channel) (*fifo.Client, error) {
	return Call[*fifo.Client](session, FifoRequest{})
}

// AttachBuffer attaches data to the session and returns its id.
func AttachBuffer(session *Channel, data []byte) (fifo.BufferID, error) {
	return Call[fifo.BufferID](session, AttachBufferRequest{Data: data})
}

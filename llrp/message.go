/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	message.go: LLRP message framing
*/
package llrp

import (
	"encoding/binary"
	"fmt"
	"io"
)

// LLRP (Low Level Reader Protocol, EPCglobal) messages are framed with a
// 10-byte header: version+type packed in 16 bits, a 32-bit total length
// including the header, and a 32-bit message id.

const (
	headerLen     = 10
	protocolVer   = 1
	maxMessageLen = 1 << 20
)

// Message types.
const (
	MsgSetReaderConfig         = 3
	MsgSetReaderConfigResponse = 13
	MsgCloseConnection         = 14
	MsgCloseConnectionResponse = 4
	MsgAddROSpec               = 20
	MsgDeleteROSpec            = 21
	MsgStartROSpec             = 22
	MsgStopROSpec              = 23
	MsgEnableROSpec            = 24
	MsgAddROSpecResponse       = 30
	MsgDeleteROSpecResponse    = 31
	MsgStartROSpecResponse     = 32
	MsgStopROSpecResponse      = 33
	MsgEnableROSpecResponse    = 34
	MsgROAccessReport          = 61
	MsgKeepalive               = 62
	MsgReaderEventNotification = 63
	MsgKeepaliveAck            = 72
	MsgErrorMessage            = 100
)

type Message struct {
	Type    uint16
	ID      uint32
	Payload []byte
}

func writeMessage(w io.Writer, m Message) error {
	buf := make([]byte, headerLen+len(m.Payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(protocolVer)<<10|m.Type&0x3FF)
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(buf)))
	binary.BigEndian.PutUint32(buf[6:10], m.ID)
	copy(buf[headerLen:], m.Payload)
	_, err := w.Write(buf)
	return err
}

func readMessage(r io.Reader) (Message, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, err
	}
	verType := binary.BigEndian.Uint16(hdr[0:2])
	total := binary.BigEndian.Uint32(hdr[2:6])
	if total < headerLen || total > maxMessageLen {
		return Message{}, fmt.Errorf("llrp: implausible message length %d", total)
	}

	m := Message{
		Type: verType & 0x3FF,
		ID:   binary.BigEndian.Uint32(hdr[6:10]),
	}
	if total > headerLen {
		m.Payload = make([]byte, total-headerLen)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return Message{}, err
		}
	}
	return m, nil
}

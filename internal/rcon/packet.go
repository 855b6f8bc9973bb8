package rcon

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Packet types used by the console protocol.
const (
	packetTypeCommand = 2
	packetTypeAuth    = 3
)

// requestID is sent with every outbound packet. Replies are correlated by
// arrival order only, so a fixed id is sufficient; the single reserved value
// is -1, which the server uses to reject authentication.
const requestID int32 = 0x0BADC0DE

// packetOverhead counts the request id, packet type and the two trailing
// NUL bytes — everything in the length field besides the body.
const packetOverhead = 10

// maxPacketLen bounds a declared reply length so a corrupt length field
// cannot make the reader allocate unbounded memory.
const maxPacketLen = 1 << 20

type packet struct {
	ID   int32
	Type int32
	Body string
}

// encodePacket frames a packet: little-endian int32 length (covering
// everything after itself), request id, type, UTF-8 body, two NUL bytes.
func encodePacket(id, typ int32, body string) []byte {
	buf := make([]byte, 4+packetOverhead+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(packetOverhead+len(body)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(id))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(typ))
	copy(buf[12:], body)
	// trailing NULs are already zero in the fresh slice
	return buf
}

// readPacket consumes exactly one packet from r. Short reads are protocol
// violations and surface as errors; the caller must treat the connection as
// unusable afterwards.
func readPacket(r io.Reader) (packet, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return packet{}, fmt.Errorf("read packet length: %w", err)
	}
	length := binary.LittleEndian.Uint32(head[:])
	if length < packetOverhead || length > maxPacketLen {
		return packet{}, fmt.Errorf("invalid packet length %d", length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return packet{}, fmt.Errorf("read packet body: %w", err)
	}
	return packet{
		ID:   int32(binary.LittleEndian.Uint32(body[0:4])),
		Type: int32(binary.LittleEndian.Uint32(body[4:8])),
		Body: string(body[8 : length-2]),
	}, nil
}

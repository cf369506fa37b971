package reassembly

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"net/netip"
	"time"
)

// ConnectionEndReason tells the end callback why a connection was closed.
type ConnectionEndReason int

const (
	// ClosedByFinRst means the connection ended naturally with a FIN or RST packet.
	ClosedByFinRst ConnectionEndReason = iota
	// ClosedManually means the connection was closed by CloseConnection or CloseAllConnections.
	ClosedManually
)

func (r ConnectionEndReason) String() string {
	switch r {
	case ClosedByFinRst:
		return "fin_rst"
	case ClosedManually:
		return "manual"
	default:
		return "unknown"
	}
}

// ConnectionData is the connection snapshot passed to callbacks.
// The "source" side is the side observed first on the wire. All fields are
// plain values, so a snapshot stays valid after the engine forgets the
// connection.
type ConnectionData struct {
	SrcIP     netip.Addr
	DstIP     netip.Addr
	SrcPort   uint16
	DstPort   uint16
	FlowKey   uint32
	StartTime time.Time
	EndTime   time.Time
}

// String formats the connection 5-tuple for logs and file names.
func (c ConnectionData) String() string {
	return fmt.Sprintf("%s.%d-%s.%d", c.SrcIP, c.SrcPort, c.DstIP, c.DstPort)
}

// StreamData is one contiguous byte range delivered to a side of a connection.
// Data is an owned copy handed off to the callback; the engine never touches
// it again, so callbacks may retain it past return.
type StreamData struct {
	Data       []byte
	Connection ConnectionData
}

// Callback types. UserCookie is the opaque value from Config, threaded
// through unchanged.
type (
	OnMessageReady    func(side int, data StreamData, userCookie any)
	OnConnectionStart func(conn ConnectionData, userCookie any)
	OnConnectionEnd   func(conn ConnectionData, reason ConnectionEndReason, userCookie any)
)

const protoTCP = 6

// flowHash computes the direction-insensitive 32-bit flow key: both
// directions of a conversation hash to the same value. Endpoints are
// canonically ordered before hashing, and IPv4 addresses go through their
// 16-byte mapped form so the representation does not affect the key.
func flowHash(srcIP, dstIP netip.Addr, srcPort, dstPort uint16) uint32 {
	src := endpointBytes(srcIP, srcPort)
	dst := endpointBytes(dstIP, dstPort)
	if bytes.Compare(src[:], dst[:]) > 0 {
		src, dst = dst, src
	}
	h := fnv.New32a()
	h.Write(src[:])
	h.Write(dst[:])
	h.Write([]byte{protoTCP})
	return h.Sum32()
}

func endpointBytes(ip netip.Addr, port uint16) [18]byte {
	var b [18]byte
	a16 := ip.As16()
	copy(b[:16], a16[:])
	binary.BigEndian.PutUint16(b[16:], port)
	return b
}

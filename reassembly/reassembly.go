// Package reassembly implements passive TCP stream reassembly: it consumes
// IP/TCP packets observed on a tap, in capture order, and emits per
// connection and per direction the contiguous byte stream the endpoints
// agreed upon, handling retransmissions, out-of-order segments, sequence
// wraparound and connection teardown. Consumers parse application protocols
// on top of the emitted bytes without tracking TCP state themselves.
//
// The engine is single-threaded by design: it is not internally
// synchronized, callbacks run synchronously on the calling goroutine, and
// callers feeding packets from multiple goroutines must either serialize
// externally or shard by flow key across independent instances.
package reassembly

import (
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"

	"firestige.xyz/tcpflow/internal/metrics"
)

// tcpReassemblyData is the full per-connection state: the two directional
// side trackers, the connection snapshot and the lifecycle flags.
// sides[0] is the side observed first.
type tcpReassemblyData struct {
	numOfSides int
	prevSide   int
	sides      [2]tcpOneSideData
	connData   ConnectionData
	closed     bool
}

// TCPReassembly reassembles TCP streams out of captured packets. Create it
// with New, feed it with ReassemblePacket and close leftover connections
// with CloseAllConnections before discarding it — dropping the instance
// without closing skips the end callbacks.
type TCPReassembly struct {
	cfg Config
	log logrus.FieldLogger

	connections map[uint32]*tcpReassemblyData
	connInfo    map[uint32]ConnectionData

	// purge schedule: eligibility time (unix seconds) -> flow keys closed
	// ClosedConnectionDelay before it.
	cleanupList    map[int64][]uint32
	purgeTimepoint time.Time
}

// New creates a reassembly engine. OnMessageReady is required; every other
// Config field has a usable zero value.
func New(cfg Config) (*TCPReassembly, error) {
	if cfg.OnMessageReady == nil {
		return nil, ErrMessageReadyRequired
	}
	cfg.applyDefaults()

	logger := cfg.Logger
	if logger == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		logger = silent
	}

	return &TCPReassembly{
		cfg:         cfg,
		log:         logger,
		connections: make(map[uint32]*tcpReassemblyData),
		connInfo:    make(map[uint32]ConnectionData),
		cleanupList: make(map[int64][]uint32),
	}, nil
}

// ReassemblePacket classifies one captured packet into a connection and a
// side, and advances that side's stream. Packets without an IPv4/IPv6 layer
// or a TCP layer are ignored silently; so is anything arriving on a closed
// connection. It never fails — arbitrary adversarial input only ever
// results in dropped packets or gap markers.
func (t *TCPReassembly) ReassemblePacket(packet gopacket.Packet) {
	if packet == nil {
		return
	}
	srcIP, dstIP, ok := packetEndpoints(packet)
	if !ok {
		return
	}
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return
	}
	tcp, ok := tcpLayer.(*layers.TCP)
	if !ok {
		return
	}

	ts := packet.Metadata().Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	metrics.PacketsTotal.Inc()

	srcPort := uint16(tcp.SrcPort)
	dstPort := uint16(tcp.DstPort)
	flowKey := flowHash(srcIP, dstIP, srcPort, dstPort)

	conn, exists := t.connections[flowKey]
	if !exists {
		// a FIN or RST on a flow we never saw carries nothing to reassemble
		if tcp.RST || (tcp.FIN && len(tcp.Payload) == 0) {
			return
		}
		conn = &tcpReassemblyData{prevSide: -1}
		conn.sides[0] = tcpOneSideData{srcIP: srcIP, srcPort: srcPort}
		conn.numOfSides = 1
		conn.connData = ConnectionData{
			SrcIP:     srcIP,
			DstIP:     dstIP,
			SrcPort:   srcPort,
			DstPort:   dstPort,
			FlowKey:   flowKey,
			StartTime: ts,
		}
		t.connections[flowKey] = conn
		t.connInfo[flowKey] = conn.connData
		metrics.ActiveConnections.Inc()
		t.log.WithField("conn", conn.connData.String()).Debug("new connection")
		if t.cfg.OnConnectionStart != nil {
			t.cfg.OnConnectionStart(conn.connData, t.cfg.UserCookie)
		}
	}

	// post-close traffic never re-opens a connection
	if conn.closed {
		t.maybeAutoPurge()
		return
	}

	sideIndex := 0
	if conn.sides[0].srcIP != srcIP || conn.sides[0].srcPort != srcPort {
		if conn.numOfSides == 1 {
			conn.sides[1] = tcpOneSideData{srcIP: srcIP, srcPort: srcPort}
			conn.numOfSides = 2
		}
		sideIndex = 1
	}

	// A message from the other side means the previous side will not fill
	// its gaps any time soon: surface its queued data, gap markers included,
	// before reporting the new direction.
	if conn.prevSide != -1 && conn.prevSide != sideIndex &&
		len(conn.sides[conn.prevSide].fragments) > 0 {
		t.drainFragments(conn, conn.prevSide, true)
	}
	conn.prevSide = sideIndex

	payload := tcp.Payload
	seq := tcp.Seq

	if tcp.SYN && len(payload) == 0 {
		conn.sides[sideIndex].sequence = seq + 1
		t.maybeAutoPurge()
		return
	}

	if tcp.RST {
		t.handleFinOrRst(conn, sideIndex, flowKey, ts)
		t.maybeAutoPurge()
		return
	}

	if len(payload) > 0 {
		conn.connData.EndTime = ts
		t.processPayload(conn, sideIndex, seq, payload)
		t.connInfo[flowKey] = conn.connData
	}

	if tcp.FIN {
		t.handleFinOrRst(conn, sideIndex, flowKey, ts)
	}

	t.maybeAutoPurge()
}

// processPayload decides whether the segment is expected, a retransmission,
// a partial overlap or future out-of-order data, and acts accordingly.
func (t *TCPReassembly) processPayload(conn *tcpReassemblyData, sideIndex int, seq uint32, payload []byte) {
	side := &conn.sides[sideIndex]
	length := uint32(len(payload))

	// first data seen on this side: adopt its sequence as the baseline
	if side.sequence == 0 {
		side.sequence = seq
	}

	diff := seqDiff(seq, side.sequence)
	switch {
	case diff == 0:
		t.deliver(conn, sideIndex, copyBytes(payload))
		side.sequence = seq + length
		t.drainFragments(conn, sideIndex, false)

	case diff < 0 && seqDiff(seq+length, side.sequence) <= 0:
		// pure retransmission or duplicate

	case diff < 0:
		// partial overlap: only the tail past the expected sequence is new
		skip := uint32(-diff)
		t.deliver(conn, sideIndex, copyBytes(payload[skip:]))
		side.sequence = seq + length
		t.drainFragments(conn, sideIndex, false)

	default:
		// future data, queue until the gap before it fills
		side.insertFragment(seq, payload)
	}
}

// drainFragments moves matured fragments from the pending queue to the
// user. With cleanWholeFragList the queue is emptied completely, bridging
// every remaining gap with a "[N bytes missing]" marker; otherwise draining
// stops at the first gap.
func (t *TCPReassembly) drainFragments(conn *tcpReassemblyData, sideIndex int, cleanWholeFragList bool) {
	side := &conn.sides[sideIndex]
	for len(side.fragments) > 0 {
		head := side.fragments[0]
		length := uint32(len(head.data))
		diff := seqDiff(head.sequence, side.sequence)

		switch {
		case diff == 0:
			t.deliver(conn, sideIndex, head.data)
			side.sequence = head.sequence + length
			side.popFront()

		case diff < 0 && seqDiff(head.sequence+length, side.sequence) > 0:
			skip := uint32(-diff)
			t.deliver(conn, sideIndex, head.data[skip:])
			side.sequence = head.sequence + length
			side.popFront()

		case diff < 0:
			// stale duplicate, fully behind the expected sequence
			side.popFront()

		default:
			if !cleanWholeFragList {
				return
			}
			marker := fmt.Sprintf("[%d bytes missing]", uint32(diff))
			t.deliver(conn, sideIndex, []byte(marker))
			side.sequence = head.sequence
		}
	}
}

// deliver hands one contiguous byte range to the user. data must be owned
// by the engine; ownership transfers to the callback.
func (t *TCPReassembly) deliver(conn *tcpReassemblyData, sideIndex int, data []byte) {
	metrics.StreamBytesTotal.Add(float64(len(data)))
	t.cfg.OnMessageReady(sideIndex, StreamData{Data: data, Connection: conn.connData}, t.cfg.UserCookie)
}

// handleFinOrRst marks the side as sealed and decides whether the whole
// connection closes. Policy: close once both sides have signalled FIN/RST,
// or when the sealing side is the only side ever observed; a first FIN/RST
// on a two-sided conversation only flushes this side's queue. A repeated
// FIN/RST on an already sealed side is a no-op.
func (t *TCPReassembly) handleFinOrRst(conn *tcpReassemblyData, sideIndex int, flowKey uint32, ts time.Time) {
	side := &conn.sides[sideIndex]
	if side.gotFinOrRst {
		return
	}
	side.gotFinOrRst = true

	if conn.sides[1-sideIndex].gotFinOrRst || conn.numOfSides == 1 {
		t.closeConnectionInternal(flowKey, ClosedByFinRst, ts)
		return
	}
	t.drainFragments(conn, sideIndex, true)
}

// CloseConnection closes a connection manually by its flow key, flushing
// any queued data first. The end callback fires with ClosedManually.
// Closing an unknown flow returns ErrConnectionNotFound; closing an
// already closed flow logs and returns ErrConnectionClosed without
// invoking callbacks again.
func (t *TCPReassembly) CloseConnection(flowKey uint32) error {
	return t.closeConnectionInternal(flowKey, ClosedManually, time.Now())
}

// CloseAllConnections closes every active connection manually. Every open
// connection receives exactly one end callback; iteration order is
// unspecified.
func (t *TCPReassembly) CloseAllConnections() {
	now := time.Now()
	for flowKey, conn := range t.connections {
		if !conn.closed {
			t.closeConnectionInternal(flowKey, ClosedManually, now)
		}
	}
}

func (t *TCPReassembly) closeConnectionInternal(flowKey uint32, reason ConnectionEndReason, ts time.Time) error {
	conn, ok := t.connections[flowKey]
	if !ok {
		t.log.WithField("flow_key", flowKey).Warn("close requested for unknown connection")
		return ErrConnectionNotFound
	}
	if conn.closed {
		t.log.WithField("conn", conn.connData.String()).Warn("connection already closed")
		return ErrConnectionClosed
	}

	for i := range conn.sides {
		if len(conn.sides[i].fragments) > 0 {
			t.drainFragments(conn, i, true)
		}
	}

	conn.connData.EndTime = ts
	t.connInfo[flowKey] = conn.connData
	if t.cfg.OnConnectionEnd != nil {
		t.cfg.OnConnectionEnd(conn.connData, reason, t.cfg.UserCookie)
	}
	conn.closed = true

	metrics.ActiveConnections.Dec()
	metrics.ConnectionsClosedTotal.WithLabelValues(reason.String()).Inc()
	t.log.WithFields(logrus.Fields{
		"conn":   conn.connData.String(),
		"reason": reason.String(),
	}).Debug("connection closed")

	t.insertIntoCleanupList(flowKey, ts)
	return nil
}

// IsConnectionOpen reports the lifecycle state of a connection: a positive
// number if it is active, zero if it is known but closed, and a negative
// number if this engine does not know it.
func (t *TCPReassembly) IsConnectionOpen(conn ConnectionData) int {
	if c, ok := t.connections[conn.FlowKey]; ok {
		if c.closed {
			return 0
		}
		return 1
	}
	if _, ok := t.connInfo[conn.FlowKey]; ok {
		return 0
	}
	return -1
}

// GetConnectionInformation returns the map of every connection this engine
// has seen, keyed by flow key. The map is owned by the engine and must be
// treated as read-only; entries disappear only through purge (unless
// KeepConnInfo is set).
func (t *TCPReassembly) GetConnectionInformation() map[uint32]ConnectionData {
	return t.connInfo
}

// packetEndpoints extracts the L3 endpoints of a captured packet.
func packetEndpoints(packet gopacket.Packet) (src, dst netip.Addr, ok bool) {
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		src, ok = netip.AddrFromSlice(ip.SrcIP)
		if !ok {
			return netip.Addr{}, netip.Addr{}, false
		}
		dst, ok = netip.AddrFromSlice(ip.DstIP)
	case *layers.IPv6:
		src, ok = netip.AddrFromSlice(ip.SrcIP)
		if !ok {
			return netip.Addr{}, netip.Addr{}, false
		}
		dst, ok = netip.AddrFromSlice(ip.DstIP)
	default:
		return netip.Addr{}, netip.Addr{}, false
	}
	return src.Unmap(), dst.Unmap(), ok
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

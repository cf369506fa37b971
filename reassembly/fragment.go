package reassembly

import (
	"net/netip"
	"sort"

	"firestige.xyz/tcpflow/internal/metrics"
)

// tcpFragment is a single out-of-order byte range waiting for its
// predecessor bytes. data is always an owned copy of length >= 1.
type tcpFragment struct {
	sequence uint32
	data     []byte
}

// tcpOneSideData tracks one direction of a connection: the endpoint that
// sends the bytes, the next expected sequence number and the pending
// out-of-order fragments, sorted by sequence ascending.
type tcpOneSideData struct {
	srcIP       netip.Addr
	srcPort     uint16
	sequence    uint32
	fragments   []*tcpFragment
	gotFinOrRst bool
}

// insertFragment queues an out-of-order payload at its sorted position.
// A fragment that is byte-identical by (sequence, length) to one already
// queued is rejected. Returns whether the fragment was stored.
func (s *tcpOneSideData) insertFragment(seq uint32, payload []byte) bool {
	if len(payload) == 0 {
		return false
	}

	idx := sort.Search(len(s.fragments), func(i int) bool {
		return seqDiff(s.fragments[i].sequence, seq) >= 0
	})

	for i := idx; i < len(s.fragments) && s.fragments[i].sequence == seq; i++ {
		if len(s.fragments[i].data) == len(payload) {
			return false
		}
	}

	data := make([]byte, len(payload))
	copy(data, payload)

	s.fragments = append(s.fragments, nil)
	copy(s.fragments[idx+1:], s.fragments[idx:])
	s.fragments[idx] = &tcpFragment{sequence: seq, data: data}

	metrics.PendingFragments.Inc()
	return true
}

// popFront removes the head fragment.
func (s *tcpOneSideData) popFront() {
	s.fragments[0] = nil
	s.fragments = s.fragments[1:]
	metrics.PendingFragments.Dec()
}

package reassembly

import (
	"sort"
	"time"

	"firestige.xyz/tcpflow/internal/metrics"
)

// insertIntoCleanupList schedules a just-closed connection for purge once
// ClosedConnectionDelay has passed.
func (t *TCPReassembly) insertIntoCleanupList(flowKey uint32, closedAt time.Time) {
	expiry := closedAt.Add(t.cfg.ClosedConnectionDelay).Unix()
	t.cleanupList[expiry] = append(t.cleanupList[expiry], flowKey)
}

// PurgeClosedConnections removes closed connections whose delay has
// expired, oldest first, and returns how many were removed. maxNumToClean
// caps the work of this one call; 0 means the configured default. Unless
// KeepConnInfo is set, the connection information entries are removed too.
func (t *TCPReassembly) PurgeClosedConnections(maxNumToClean int) int {
	if maxNumToClean <= 0 {
		maxNumToClean = t.cfg.MaxNumToClean
	}
	now := time.Now().Unix()

	expiries := make([]int64, 0, len(t.cleanupList))
	for expiry := range t.cleanupList {
		if expiry <= now {
			expiries = append(expiries, expiry)
		}
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i] < expiries[j] })

	cleaned := 0
	for _, expiry := range expiries {
		flows := t.cleanupList[expiry]
		for len(flows) > 0 && cleaned < maxNumToClean {
			flowKey := flows[0]
			flows = flows[1:]
			delete(t.connections, flowKey)
			if !t.cfg.KeepConnInfo {
				delete(t.connInfo, flowKey)
			}
			cleaned++
		}
		if len(flows) == 0 {
			delete(t.cleanupList, expiry)
		} else {
			t.cleanupList[expiry] = flows
			break
		}
		if cleaned >= maxNumToClean {
			break
		}
	}

	if cleaned > 0 {
		metrics.ConnectionsPurgedTotal.Add(float64(cleaned))
		t.log.WithField("count", cleaned).Debug("purged closed connections")
	}
	return cleaned
}

// maybeAutoPurge runs a purge pass from the packet path at most once per
// second. Automatic purging is tied to connection info removal: an embedder
// keeping the info map intact manages purging itself.
func (t *TCPReassembly) maybeAutoPurge() {
	if t.cfg.KeepConnInfo {
		return
	}
	now := time.Now()
	if now.Sub(t.purgeTimepoint) < time.Second {
		return
	}
	t.purgeTimepoint = now
	t.PurgeClosedConnections(0)
}

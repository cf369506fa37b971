package reassembly

import "errors"

// Sentinel errors returned by the engine's management surface. The packet
// feed path never returns errors; only explicit management calls do.
var (
	// ErrMessageReadyRequired is returned by New when no data callback is set.
	ErrMessageReadyRequired = errors.New("tcpflow: OnMessageReady callback is required")

	// ErrConnectionNotFound is returned when a flow key is unknown to the engine.
	ErrConnectionNotFound = errors.New("tcpflow: connection not found")

	// ErrConnectionClosed is returned when closing an already closed connection.
	ErrConnectionClosed = errors.New("tcpflow: connection already closed")
)

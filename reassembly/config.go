package reassembly

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Default cleanup parameters, applied when the corresponding Config field
// is left at its zero value.
const (
	defaultClosedConnectionDelay = 5 * time.Second
	minClosedConnectionDelay     = 1 * time.Second
	defaultMaxNumToClean         = 30
)

// Config configures a TCPReassembly instance.
type Config struct {
	// OnMessageReady is invoked for each contiguous byte range delivered to
	// a side of a connection. Required.
	OnMessageReady OnMessageReady

	// OnConnectionStart is invoked once per connection on first sight,
	// whether or not it begins with a SYN. Optional.
	OnConnectionStart OnConnectionStart

	// OnConnectionEnd is invoked once per connection when it closes, either
	// naturally by FIN/RST or manually. Optional.
	OnConnectionEnd OnConnectionEnd

	// UserCookie is an opaque value threaded through all callbacks.
	UserCookie any

	// Logger receives the engine's diagnostic logs (double close, purge
	// traces). Nil means the engine stays silent.
	Logger logrus.FieldLogger

	// KeepConnInfo retains the ConnectionData of purged connections in the
	// information map returned by GetConnectionInformation. When false (the
	// default, matching removeConnInfo=true in the original design) purge
	// deletes the entry, and automatic purging piggybacks on
	// ReassemblePacket once per second.
	KeepConnInfo bool

	// ClosedConnectionDelay is how long a closed connection stays in memory
	// before it becomes eligible for purge. Zero means 5 seconds; the
	// minimum is 1 second.
	ClosedConnectionDelay time.Duration

	// MaxNumToClean caps how many connections one purge pass may remove
	// when the caller passes 0 to PurgeClosedConnections. Zero means 30.
	MaxNumToClean int
}

func (c *Config) applyDefaults() {
	if c.ClosedConnectionDelay <= 0 {
		c.ClosedConnectionDelay = defaultClosedConnectionDelay
	}
	if c.ClosedConnectionDelay < minClosedConnectionDelay {
		c.ClosedConnectionDelay = minClosedConnectionDelay
	}
	if c.MaxNumToClean <= 0 {
		c.MaxNumToClean = defaultMaxNumToClean
	}
}

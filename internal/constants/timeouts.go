package constants

import "time"

// Shared duration vocabulary used by timeouts, keepalives and debouncing.
const (
	Duration100Milliseconds = 100 * time.Millisecond

	Duration5Seconds  = 5 * time.Second
	Duration10Seconds = 10 * time.Second
	Duration54Seconds = 54 * time.Second
	Duration60Seconds = 60 * time.Second
)

// Domain-level timing constants.
const (
	// PropertyWriteDebounce is the trailing-edge window of single-property
	// writes.
	PropertyWriteDebounce = Duration100Milliseconds

	WebSocketWriteWait  = Duration10Seconds
	WebSocketPongWait   = Duration60Seconds
	WebSocketPingPeriod = Duration54Seconds // must stay below WebSocketPongWait

	SurfaceDialTimeout  = Duration10Seconds
	HostShutdownTimeout = Duration5Seconds
	StoreBusyTimeout    = Duration5Seconds
	StoreOpenTimeout    = Duration5Seconds
)

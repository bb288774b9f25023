package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	shuttingDown atomic.Bool
	started      = time.Now()
)

// SetShuttingDown flips the drain flag. Called when SIGTERM/SIGINT is
// received; the health endpoint reports shutting-down while the flag is set.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining and should not
// receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Uptime reports how long the process has been running.
func Uptime() time.Duration {
	return time.Since(started)
}

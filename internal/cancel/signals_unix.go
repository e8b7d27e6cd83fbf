// Cancel signal set for Unix-like systems (Linux, macOS, *BSD).

//go:build !windows

package cancel

import (
	"os"

	"golang.org/x/sys/unix"
)

// DefaultSignals returns interrupt, hangup, terminate and abort. Every one
// of them maps to the same cancel event.
func DefaultSignals() []os.Signal {
	return []os.Signal{unix.SIGINT, unix.SIGHUP, unix.SIGTERM, unix.SIGABRT}
}

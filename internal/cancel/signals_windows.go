// Cancel signal set for Windows.
//
// Windows has no POSIX hangup or abort delivery. The Go runtime maps
// CTRL_C_EVENT and CTRL_BREAK_EVENT onto os.Interrupt, and console close,
// logoff and shutdown onto SIGTERM.

//go:build windows

package cancel

import (
	"os"
	"syscall"
)

// DefaultSignals returns the interrupt and terminate signals.
func DefaultSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}

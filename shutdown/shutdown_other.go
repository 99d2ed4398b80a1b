//go:build !windows

package shutdown

import (
	"os"
	"syscall"
)

// SIGHUP covers the terminal hosting the panel being closed.
var signals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

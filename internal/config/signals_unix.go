//go:build !windows

package config

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// DefaultSignalNames returns the termination-class signals bridged when the
// config does not say otherwise.
func DefaultSignalNames() []string {
	return []string{"SIGHUP", "SIGINT", "SIGTERM"}
}

// uncatchable signals can never be watched.
var uncatchable = map[syscall.Signal]bool{
	unix.SIGKILL: true,
	unix.SIGSTOP: true,
}

func lookupSignal(canon string) (os.Signal, bool) {
	sig := unix.SignalNum(canon)
	if sig == 0 || uncatchable[sig] {
		return nil, false
	}
	return sig, true
}

//go:build windows

package config

import (
	"os"
	"syscall"
)

// DefaultSignalNames returns the termination-class signals bridged when the
// config does not say otherwise. Windows raises SIGTERM for console close,
// logoff and shutdown events.
func DefaultSignalNames() []string {
	return []string{"SIGINT", "SIGTERM"}
}

// windowsSignals are the names accepted on Windows. SIGHUP is accepted so a
// config shared with Unix hosts still loads, but it is never delivered.
var windowsSignals = map[string]os.Signal{
	"SIGINT":  os.Interrupt,
	"SIGTERM": syscall.SIGTERM,
	"SIGHUP":  syscall.SIGHUP,
}

func lookupSignal(canon string) (os.Signal, bool) {
	sig, ok := windowsSignals[canon]
	return sig, ok
}

//go:build !windows

package bridge

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// raiseDefault restores the default disposition for sig and sends it to the
// current process, so the runtime lets the OS terminate us with it.
func raiseDefault(sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnsupportedSignal, sig)
	}
	signal.Reset(sig)
	if err := unix.Kill(unix.Getpid(), s); err != nil {
		return fmt.Errorf("kill self with %v: %w", sig, err)
	}
	return nil
}

// signalName returns the conventional name, such as SIGTERM.
func signalName(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		if name := unix.SignalName(s); name != "" {
			return name
		}
	}
	return sig.String()
}

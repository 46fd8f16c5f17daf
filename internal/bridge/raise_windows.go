//go:build windows

package bridge

import (
	"os"
	"os/signal"

	"golang.org/x/sys/windows"
)

// raiseDefault ends the process the way the console control handler would
// after Ctrl+C. Windows has no way to re-deliver a signal to ourselves.
func raiseDefault(sig os.Signal) error {
	signal.Reset(sig)
	windows.ExitProcess(uint32(windows.STATUS_CONTROL_C_EXIT))
	return nil
}

func signalName(sig os.Signal) string {
	if sig == os.Interrupt {
		return "SIGINT"
	}
	return sig.String()
}

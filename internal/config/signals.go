package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnknownSignal is returned by ParseSignal for names it cannot resolve.
var ErrUnknownSignal = errors.New("unknown signal")

// ParseSignal resolves a signal name. The SIG prefix and case are optional,
// so "SIGTERM", "sigterm" and "term" are equivalent.
func ParseSignal(name string) (os.Signal, error) {
	canon := strings.ToUpper(strings.TrimSpace(name))
	if canon == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnknownSignal)
	}
	if !strings.HasPrefix(canon, "SIG") {
		canon = "SIG" + canon
	}
	sig, ok := lookupSignal(canon)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}
	return sig, nil
}

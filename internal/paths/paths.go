// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import (
	"os"
	"path/filepath"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile        = "sigbridge.pid"
	ConfigFile     = "config.toml"
	LogFile        = "sigbridge.log"
	LastSignalFile = "last-signal.json"
)

const (
	BinaryName = "sigbridge"
	DataDirRel = ".sigbridge" // relative to $HOME
)

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// Default returns the DataDir under the user's home directory, or under the
// working directory when no home can be determined.
func Default() DataDir {
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDir{Root: filepath.Join(".", DataDirRel)}
	}
	return DataDir{Root: filepath.Join(home, DataDirRel)}
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// LastSignal returns the full path to the record of the signal that ended
// the previous run.
func (d DataDir) LastSignal() string { return filepath.Join(d.Root, LastSignalFile) }

// Ensure creates the data directory if it does not exist.
func (d DataDir) Ensure() error {
	return os.MkdirAll(d.Root, 0o755)
}

package shutdown

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"tools.zach/dev/sigbridge/internal/atomicfile"
)

// Record describes the signal that ended a previous run.
type Record struct {
	// Signal is the signal's name, for example "terminated".
	Signal string `json:"signal"`
	// Number is the signal number, or 0 if it has none.
	Number int `json:"number"`
	// PID is the process that received it.
	PID int `json:"pid"`
	// At is when cleanup started.
	At time.Time `json:"at"`
}

// NewRecord describes sig as received by this process now.
func NewRecord(sig os.Signal) Record {
	r := Record{Signal: sig.String(), PID: os.Getpid(), At: time.Now().UTC()}
	if s, ok := sig.(syscall.Signal); ok {
		r.Number = int(s)
	}
	return r
}

// RecordSignal persists a [Record] for sig at path so the next start can
// report how this process ended.
func RecordSignal(path string) Step {
	return Step{
		Name: "record-signal",
		Run: func(_ context.Context, sig os.Signal) error {
			return atomicfile.WriteJSON(path, NewRecord(sig), 0o644)
		},
	}
}

// ReadLastSignal loads the record written by [RecordSignal]. A missing file
// returns an error satisfying errors.Is(err, os.ErrNotExist).
func ReadLastSignal(path string) (Record, error) {
	var r Record
	data, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("parse %s: %w", path, err)
	}
	return r, nil
}

// Package migrate applies sequential schema upgrades to on-disk files,
// one version at a time.
package migrate

import (
	"fmt"
	"log/slog"
	"sort"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Migration upgrades a file's raw bytes to Version from the version before.
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short label for log output.
	Description string
	// Upgrade transforms data from the prior version to Version.
	Upgrade func(data []byte) ([]byte, error)
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Run applies, in version order, every migration newer than fromVersion.
// It returns the transformed data and the version reached. On error the
// version reached before the failing step is returned with nil data.
func Run(log *slog.Logger, data []byte, fromVersion int, migrations []Migration) ([]byte, int, error) {
	if log == nil {
		log = slog.Default()
	}
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	version := fromVersion
	for _, m := range sorted {
		if version >= m.Version {
			continue
		}
		log.Info("applying migration", "version", m.Version, "description", m.Description)
		var err error
		data, err = m.Upgrade(data)
		if err != nil {
			return nil, version, fmt.Errorf("migration to v%d failed: %w", m.Version, err)
		}
		version = m.Version
	}
	return data, version, nil
}

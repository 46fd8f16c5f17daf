package migrate

import (
	"fmt"
	"log/slog"
)

// Registry holds the current version and upgrade steps for one file
// format. Each format owns its own Registry so version numbers stay
// independent.
type Registry struct {
	// CurrentVersion is the version written by this build.
	CurrentVersion int
	// Migrations are the registered upgrades, in any order.
	Migrations []Migration
}

// Register adds m. It panics if a migration for the same version exists.
func (r *Registry) Register(m Migration) {
	if m.Version > r.CurrentVersion {
		panic(fmt.Sprintf("migrate: migration to v%d is past current version %d", m.Version, r.CurrentVersion))
	}
	for _, existing := range r.Migrations {
		if existing.Version == m.Version {
			panic(fmt.Sprintf("migrate: duplicate migration version %d (description: %q)", m.Version, m.Description))
		}
	}
	r.Migrations = append(r.Migrations, m)
}

// NeedsMigration reports whether a file at fileVersion is older than the
// current version.
func (r *Registry) NeedsMigration(fileVersion int) bool {
	return fileVersion < r.CurrentVersion
}

// Run upgrades data from fromVersion. It fails if the registered steps do
// not reach CurrentVersion.
func (r *Registry) Run(log *slog.Logger, data []byte, fromVersion int) ([]byte, error) {
	out, version, err := Run(log, data, fromVersion, r.Migrations)
	if err != nil {
		return nil, err
	}
	if version < r.CurrentVersion {
		return nil, fmt.Errorf("no migration path from v%d to v%d", version, r.CurrentVersion)
	}
	return out, nil
}

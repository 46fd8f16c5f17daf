// Package sigbridge provides embedded assets for the sigbridge daemon.
//
// The root package only embeds [config.default.toml] via [DefaultConfigTOML],
// which the config package writes to the data directory on first run.
package sigbridge

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml. It is
// regenerated by go generate in internal/config.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte

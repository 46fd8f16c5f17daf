package config

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/BurntSushi/toml"

	"tools.zach/dev/sigbridge/internal/migrate"
)

// Migrations upgrades older config files to CurrentVersion.
var Migrations = &migrate.Registry{CurrentVersion: CurrentVersion}

func init() {
	Migrations.Register(migrate.Migration{
		Version:     1,
		Description: "stamp schema version",
		Upgrade:     stampVersion(1),
	})
}

// versionLine matches a top-level version key.
var versionLine = regexp.MustCompile(`(?m)^[ \t]*version[ \t]*=.*$`)

// stampVersion sets the version key to v, adding it at the top of the file
// when absent. Comments and layout are kept.
func stampVersion(v int) func([]byte) ([]byte, error) {
	return func(data []byte) ([]byte, error) {
		line := []byte(fmt.Sprintf("version = %d", v))
		if loc := versionLine.FindIndex(data); loc != nil {
			out := make([]byte, 0, len(data)+len(line))
			out = append(out, data[:loc[0]]...)
			out = append(out, line...)
			return append(out, data[loc[1]:]...), nil
		}
		return bytes.Join([][]byte{line, data}, []byte("\n")), nil
	}
}

// PeekVersion returns the version key of a config file, 0 when the key is
// absent. ok is false when the file is not valid TOML.
func PeekVersion(data []byte) (version int, ok bool) {
	var v struct {
		Version int `toml:"version"`
	}
	if _, err := toml.Decode(string(data), &v); err != nil {
		return 0, false
	}
	return v.Version, true
}

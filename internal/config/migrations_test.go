package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPeekVersion(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		want   int
		wantOK bool
	}{
		{"present", "version = 1\n[log]\nlevel = \"info\"\n", 1, true},
		{"absent", "[log]\nlevel = \"info\"\n", 0, true},
		{"invalid toml", "[log\n", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PeekVersion([]byte(tt.data))
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("PeekVersion = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestStampVersion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"adds key at top", "# mine\n[log]\nlevel = \"debug\"\n", "version = 1\n# mine\n[log]\nlevel = \"debug\"\n"},
		{"replaces zero", "version = 0\n[log]\n", "version = 1\n[log]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stampVersion(1)([]byte(tt.in))
			if err != nil {
				t.Fatalf("stampVersion: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadMigratesUnversionedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	original := "# keep this comment\n[log]\nlevel = \"debug\"\n"
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Version != CurrentVersion {
		t.Errorf("Level=%q Version=%d", cfg.Log.Level, cfg.Version)
	}

	backup, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(backup) != original {
		t.Errorf("backup = %q, want original", backup)
	}

	rewritten, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(rewritten), "version = 1\n") || !strings.Contains(string(rewritten), "# keep this comment") {
		t.Errorf("rewritten config = %q", rewritten)
	}
	if v, _ := PeekVersion(rewritten); v != CurrentVersion {
		t.Errorf("rewritten version = %d", v)
	}
}

func TestLoadCurrentVersionNotRewritten(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("version = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Errorf("backup written for a current config: %v", err)
	}
}

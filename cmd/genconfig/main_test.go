package main

import (
	"slices"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"

	"tools.zach/dev/sigbridge/internal/config"
)

func TestRenderDecodesToExample(t *testing.T) {
	out, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	var got config.Config
	if _, err := toml.Decode(out, &got); err != nil {
		t.Fatalf("rendered TOML does not decode: %v\n%s", err, out)
	}
	want := config.ExampleConfig()
	if !slices.Equal(got.Signals.Watch, want.Signals.Watch) {
		t.Errorf("watch = %v, want %v", got.Signals.Watch, want.Signals.Watch)
	}
	if got.Shutdown.TimeoutSeconds != want.Shutdown.TimeoutSeconds {
		t.Errorf("timeout_seconds = %d, want %d", got.Shutdown.TimeoutSeconds, want.Shutdown.TimeoutSeconds)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("rendered config invalid: %v", err)
	}
}

func TestRenderAnnotations(t *testing.T) {
	out, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"# Sigbridge Configuration",
		"# ///// Signals /////",
		"# ///// Shutdown /////",
		"# Signal names; the SIG prefix is optional.",
		`# remove = ["*.sock", "tmp/**"]`,
		`# webhook_url = "https://hooks.example.com/sigbridge"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if !strings.HasSuffix(out, "\n") || strings.HasSuffix(out, "\n\n") {
		t.Error("output should end with exactly one newline")
	}
}

func TestInjectOmitted(t *testing.T) {
	docs := map[string]config.FieldDoc{
		"shutdown.b":       {Comment: "second", Alternatives: []string{"b = 1"}},
		"shutdown.a":       {Comment: "first"},
		"shutdown.present": {Comment: "written"},
		"shutdown.deep.x":  {Comment: "nested"},
		"log.level":        {Comment: "other section"},
	}
	emitted := map[string]bool{"shutdown.present": true}

	got := injectOmitted(nil, docs, []string{"shutdown"}, emitted)
	want := []string{"", "# first", "", "# second", "# b = 1"}
	if !slices.Equal(got, want) {
		t.Errorf("injectOmitted = %q, want %q", got, want)
	}
	if !emitted["shutdown.a"] || !emitted["shutdown.b"] {
		t.Error("injected keys not marked emitted")
	}

	if got := injectOmitted(nil, docs, nil, emitted); len(got) != 0 {
		t.Errorf("no section produced %q", got)
	}
}

func TestSectionName(t *testing.T) {
	tests := []struct {
		section string
		want    string
	}{
		{"signals", "Signals"},
		{"shutdown.retry", "Retry"},
		{"Log", "Log"},
		{"m", "M"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.section, func(t *testing.T) {
			if got := sectionName(tt.section); got != tt.want {
				t.Errorf("sectionName(%q) = %q, want %q", tt.section, got, tt.want)
			}
		})
	}
}

func TestParseSectionPath(t *testing.T) {
	if got := parseSectionPath("a.b.c"); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("parseSectionPath = %q", got)
	}
}

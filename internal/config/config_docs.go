package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "shutdown.remove")
// to their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// Signals
	"signals": {
		Comment: "Termination signals intercepted by the bridge. On receipt the daemon\nruns the [shutdown] cleanup, then re-raises the signal with its default\naction so the exit status reports it.",
	},
	"signals.watch": {
		Comment:      "Signal names; the SIG prefix is optional.",
		Alternatives: []string{`watch = ["SIGINT", "SIGTERM", "SIGQUIT"]`},
	},
	"signals.shared_trigger": {
		Comment: "Route every signal through one trigger instead of one per signal.\nThe most recent signal wins when several arrive together.",
	},
	"signals.respect_ignored": {
		Comment: "Leave a signal alone if it was ignored when the daemon started\n(for example SIGHUP under nohup).",
	},

	// Shutdown
	"shutdown.cleanup_delay_seconds": {
		Comment: "Pause before re-raising so in-flight work can settle.",
	},
	"shutdown.timeout_seconds": {
		Comment: "Upper bound for the whole cleanup. Remaining steps are skipped\nonce it expires and the signal is re-raised anyway.",
	},
	"shutdown.remove": {
		Comment:      "Globs relative to the data directory that are deleted during cleanup.\nSupports ** for any depth.",
		Alternatives: []string{`remove = ["*.sock", "tmp/**"]`},
	},
	"shutdown.webhook_url": {
		Comment:      "POST a JSON description of the signal here during cleanup.",
		Alternatives: []string{`webhook_url = "https://hooks.example.com/sigbridge"`},
	},
	"shutdown.record_last_signal": {
		Comment: "Write last-signal.json so the next start logs how this one ended.",
	},

	// Log
	"log.level": {
		Comment:      "Minimum level written to the log file and stderr.",
		Alternatives: []string{`level = "debug"`, `level = "trace"`},
	},
	"log.max_size_mb": {
		Comment: "Rotate the log file after this many megabytes.",
	},

	// Metrics
	"metrics.listen": {
		Comment:      "Serve Prometheus metrics on /metrics at this address. Disabled when empty.",
		Alternatives: []string{`listen = "127.0.0.1:9464"`},
	},
}

package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// [Annotate] uses FieldDoc values to comment the TOML it renders.
type FieldDoc struct {
	// Comment is shown as a header comment above the field.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "cancel.policy") to
// their [FieldDoc] entries. Section paths (e.g. "cancel") document the
// section header.
var ConfigDocs = map[string]FieldDoc{
	// ── Connection ───────────────────────────────────────────────
	"connection": {
		Comment: "Server connection. TDENGINE_CLOUD_URL and TDENGINE_CLOUD_TOKEN\noverride these values when set.",
	},
	"connection.scheme": {
		Comment: "Options: \"http\", \"https\"",
		Alternatives: []string{
			`scheme = "https"`,
		},
	},
	"connection.host": {},
	"connection.port": {
		Comment: "REST port of the server",
	},
	"connection.user": {
		Comment: "Credentials for basic auth (ignored when token is set)",
	},
	"connection.password": {},
	"connection.database": {
		Comment: "Default database for unqualified table names. Empty for none.",
	},
	"connection.token": {
		Comment: "Cloud access token",
	},
	"connection.retries": {
		Comment: "Retries when the server cannot be reached. Server errors are never retried.",
	},
	"connection.timeout_seconds": {
		Comment: "Upper bound for one request attempt in seconds. 0 = no limit;\nuse ctrl+c to interrupt a long query instead.",
	},

	// ── Cancel ───────────────────────────────────────────────────
	"cancel": {
		Comment: "What ctrl+c (or SIGTERM, SIGHUP) does while a query runs.",
	},
	"cancel.policy": {
		Comment: "Options: \"stop\", \"exit\"\n  stop: interrupt the running query and return to the prompt\n  exit: print a notice and quit the shell\nChanges take effect without restarting the shell.",
		Alternatives: []string{
			`policy = "exit"`,
		},
	},
	"cancel.retry_min_ms": {
		Comment: "Backoff bounds when waiting for a signal fails (milliseconds)",
	},
	"cancel.retry_max_ms": {},
	"cancel.warn_after_failures": {
		Comment: "Log a warning after this many consecutive wait failures",
	},

	// ── History ──────────────────────────────────────────────────
	"history.enabled": {
		Comment: "Record executed statements in the history file",
	},
	"history.max_entries": {
		Comment: "Keep at most this many statements; oldest are dropped first",
	},
	"history.ignore": {
		Comment: "Statements matching any of these glob patterns are not recorded.\nMatching is case-insensitive against the statement on one line.",
		Alternatives: []string{
			`ignore = [`,
			`  "*password*",`,
			`  "create user *",`,
			`]`,
		},
	},

	// ── Shell ────────────────────────────────────────────────────
	"shell.prompt": {
		Comment: "Prompt printed before each statement",
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging configuration. The log file is tshell.log in the data directory.",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\", \"fail\"\nChanges take effect without restarting the shell.",
		Alternatives: []string{
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
}

// Package config loads tagwatch settings from an optional file (JSON, YAML or
// TOML) and the environment, and validates them before anything starts.
package config

// Config mirrors the file layout. Durations are Go duration strings.
type Config struct {
	Watch    WatchConfig    `json:"watch"`
	GitHub   GitHubConfig   `json:"github"`
	Notifier NotifierConfig `json:"notifier"`
	Telegram TelegramConfig `json:"telegram"`
	NATS     NATSConfig     `json:"nats"`
	State    StateConfig    `json:"state"`
	Logging  LoggingConfig  `json:"logging"`
	HTTP     HTTPConfig     `json:"http"`
}

type WatchConfig struct {
	Repos []string `json:"repos"`
	// Schedule accepts a duration ("2m"), a daily time ("09:30") or a cron spec.
	Schedule          string `json:"schedule"`
	Timezone          string `json:"timezone,omitempty"`
	NotifyOnFirstSeen bool   `json:"notify_on_first_seen"`
	Concurrency       int    `json:"concurrency"`
	ResolveTimeout    string `json:"resolve_timeout"`
	NotifyTimeout     string `json:"notify_timeout"`
	// Filter is an optional expr-lang expression; a candidate tag is kept when it
	// evaluates to true.
	Filter string `json:"filter,omitempty"`
}

type GitHubConfig struct {
	Token      string  `json:"token"` // do not log
	BaseURL    string  `json:"base_url,omitempty"`
	RatePerSec float64 `json:"rate_per_sec"`
}

// NotifierConfig selects the sink. Driver is one of telegram, nats or log.
type NotifierConfig struct {
	Driver     string  `json:"driver"`
	RatePerSec float64 `json:"rate_per_sec"`
}

type TelegramConfig struct {
	Token          string `json:"token"` // do not log
	ChatID         int64  `json:"chat_id"`
	ThreadID       int    `json:"thread_id,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
	APIURL         string `json:"api_url,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
}

type NATSConfig struct {
	URL         string `json:"url"`
	Subject     string `json:"subject"`
	Stream      string `json:"stream,omitempty"`
	Token       string `json:"token,omitempty"` // do not log
	Creds       string `json:"creds,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"`
}

// StateConfig controls where last-seen identifiers live.
//
// Example:
//
//	"state": { "driver": "file", "path": "/var/lib/tagwatch/state.json" }
type StateConfig struct {
	Driver         string `json:"driver"`
	Path           string `json:"path"`
	PersistTimeout string `json:"persist_timeout"`
	BusyTimeout    string `json:"busy_timeout,omitempty"` // sqlite
	// DetectForeignWrites watches the state file and warns when something else
	// rewrites it. Pointer so an omitted key keeps the default (true).
	DetectForeignWrites *bool `json:"detect_foreign_writes,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// HTTPConfig controls the optional metrics/health server.
//
// Security note:
//   - Prefer binding to localhost (the default "127.0.0.1:9464").
//   - A non-loopback address needs a token or an explicit allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	PprofPrefix   string `json:"pprof_prefix,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// Defaults returns the settings used for every key the file and environment
// leave out.
func Defaults() Config {
	on := true
	return Config{
		Watch: WatchConfig{
			Schedule:       "120s",
			Concurrency:    4,
			ResolveTimeout: "20s",
			NotifyTimeout:  "15s",
		},
		GitHub:   GitHubConfig{RatePerSec: 5},
		Notifier: NotifierConfig{Driver: "telegram", RatePerSec: 1},
		Telegram: TelegramConfig{Timeout: "15s"},
		NATS:     NATSConfig{Subject: "tagwatch.releases", DedupWindow: "2m"},
		State: StateConfig{
			Driver:              "file",
			Path:                "state.json",
			PersistTimeout:      "10s",
			BusyTimeout:         "1s",
			DetectForeignWrites: &on,
		},
		Logging: LoggingConfig{Level: "info", Console: true},
		HTTP:    HTTPConfig{Addr: "127.0.0.1:9464", PprofPrefix: "/debug/pprof/"},
	}
}

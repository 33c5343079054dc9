package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"tagwatch/internal/watch"
)

// Error reports configuration that cannot be used. It is fatal at startup.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "invalid configuration: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// LookupFunc reads one environment variable; os.LookupEnv in production.
type LookupFunc func(key string) (string, bool)

// Load builds the configuration: defaults, then the file at path (skipped when
// path is empty), then environment overrides. The result is not validated; call
// Resolve for that. All failures are *Error.
func Load(path string, lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := Defaults()
	if p := strings.TrimSpace(path); p != "" {
		if err := parseFile(p, &cfg); err != nil {
			return nil, &Error{Err: err}
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, &Error{Err: err}
	}
	return &cfg, nil
}

func parseFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	jb, format, err := coerceToJSONBytes(path, b)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := decodeStrict(jb, cfg); err != nil {
		return fmt.Errorf("%s (%s): %w", path, format, err)
	}
	return nil
}

// applyEnv applies the variables the original single-binary deployment used,
// plus a few for the newer sinks. Set variables win over the file.
func applyEnv(cfg *Config, lookup LookupFunc) error {
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	var errs []error

	if v, ok := get("REPOS"); ok {
		cfg.Watch.Repos = watch.SplitCSV(v)
	}
	if v, ok := get("POLL_SECS"); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			errs = append(errs, fmt.Errorf("POLL_SECS: want a positive number of seconds, got %q", v))
		} else {
			cfg.Watch.Schedule = strconv.FormatUint(n, 10) + "s"
		}
	}
	// POLL_SCHEDULE is the richer form and wins over POLL_SECS.
	if v, ok := get("POLL_SCHEDULE"); ok {
		cfg.Watch.Schedule = v
	}
	if v, ok := get("NOTIFY_ON_FIRST_SEEN"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("NOTIFY_ON_FIRST_SEEN: want a boolean, got %q", v))
		} else {
			cfg.Watch.NotifyOnFirstSeen = b
		}
	}
	if v, ok := get("GITHUB_TOKEN"); ok {
		cfg.GitHub.Token = v
	}
	if v, ok := get("TG_BOT_TOKEN"); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get("TG_CHAT_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TG_CHAT_ID: want an integer chat id, got %q", v))
		} else {
			cfg.Telegram.ChatID = id
		}
	}
	if v, ok := get("NATS_URL"); ok {
		cfg.NATS.URL = v
	}
	if v, ok := get("STATE_PATH"); ok {
		cfg.State.Path = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	return errors.Join(errs...)
}

package app

import (
	"strings"

	"tagwatch/internal/config"
	"tagwatch/internal/state"
)

func mapStateConfig(cfg *config.Config, rt *config.Runtime) state.Config {
	driver := strings.ToLower(strings.TrimSpace(cfg.State.Driver))
	if driver == "" || driver == "json" {
		driver = "file"
	}
	return state.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(cfg.State.Path),
		BusyTimeout: rt.BusyTimeout,
	}
}

// guardEnabled reports whether the foreign-writer watch applies; it only
// understands the file layout.
func guardEnabled(sc state.Config, rt *config.Runtime) bool {
	return rt.DetectForeignWrites && sc.Driver == "file"
}

package cmd

import (
	"path/filepath"

	"github.com/luigi-run/luigi/config"
)

// LoadEffectiveConfig builds the configuration following the teacher's
// layering: defaults, then a config file (if found), then CLI flags applied
// only when explicitly set.
func LoadEffectiveConfig() *config.Config {
	cfg := config.DefaultConfig()

	if path := GetConfigFile(); path != "" {
		fileCfg, err := config.Load(path)
		if err == nil {
			cfg = fileCfg
		}
		// A missing, unparsable, or invalid file (Load validates what it
		// reads) falls back to the defaults; its error is not reported.
	}

	if IsDebugMode() {
		cfg.Debug = true
	}
	if WasLogLevelSet() {
		cfg.LogLevel = GetLogLevel()
	}

	return cfg
}

// RunsDir returns the directory Run snapshots are persisted under for repo:
// cfg.Store.Dir if set, else a .luigi/runs directory inside the repo.
func RunsDir(cfg *config.Config, repoPath string) string {
	if cfg.Store.Dir != "" {
		return cfg.Store.Dir
	}
	return filepath.Join(repoPath, ".luigi", "runs")
}

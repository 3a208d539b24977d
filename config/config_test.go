package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadMissingFileReturnsErrConfigNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoadRoundTripsThroughJSON(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	data, err := cfg.ToJSON()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "luigi.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", loaded.LogLevel)
	require.Equal(t, cfg.Agents.Reviewers[0].ID, loaded.Agents.Reviewers[0].ID)
}

func TestLoadFromBytesSkipsValidation(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`{"logLevel":"not-a-level"}`))
	require.NoError(t, err)
	require.Equal(t, "not-a-level", cfg.LogLevel)
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "verbose"
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsExecutorsPerPlanAboveExecutorCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scheduler.ExecutorsPerPlan = 2
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsDuplicateAgentIDs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agents.Executors = append(cfg.Agents.Executors, AgentInstanceConfig{ID: "r1", Preset: "claude"})
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestGetEffectiveLogLevelForcesTraceInDebug(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "error"
	cfg.Debug = true
	require.Equal(t, "trace", cfg.GetEffectiveLogLevel())
}

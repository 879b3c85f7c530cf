package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/par2lab/par2verify/internal/flags"
	"github.com/par2lab/par2verify/internal/logging"
	"github.com/par2lab/par2verify/internal/repair"
	"github.com/par2lab/par2verify/internal/util"
)

// Expectation: a valid YAML config file should be parsed successfully.
func Test_parseConfigFile_ValidConfig_Success(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	yamlContent := `verify:
  log-level: "debug"
  json: true
repair:
  threads: 4
  purge-backups: true
  log-level: "warn"
  json: false`
	require.NoError(t, afero.WriteFile(fs, "/par2verify.yaml", []byte(yamlContent), 0o644))

	cfg, err := parseConfigFile(fs, "/par2verify.yaml")

	require.NoError(t, err)
	require.NotNil(t, cfg.Verify)
	require.NotNil(t, cfg.Repair)
}

// Expectation: an error should be returned when the file does not exist.
func Test_parseConfigFile_FileNotExist_Error(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()

	cfg, err := parseConfigFile(fs, "/nonexistent.yaml")

	require.Error(t, err)
	require.ErrorContains(t, err, "failed to read file")
	require.Nil(t, cfg)
}

// Expectation: an error should be returned when the YAML is invalid.
func Test_parseConfigFile_InvalidYAML_Error(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/par2verify.yaml", []byte("invalid yaml {]"), 0o644))

	cfg, err := parseConfigFile(fs, "/par2verify.yaml")

	require.Error(t, err)
	require.ErrorContains(t, err, "failed to decode yaml")
	require.Nil(t, cfg)
}

// Expectation: an error should be returned when an unknown field is present.
func Test_parseConfigFile_UnknownField_Error(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	yamlContent := `repair:
  threads: 4
  unknown_field: "value"`
	require.NoError(t, afero.WriteFile(fs, "/par2verify.yaml", []byte(yamlContent), 0o644))

	cfg, err := parseConfigFile(fs, "/par2verify.yaml")

	require.Error(t, err)
	require.ErrorContains(t, err, "failed to decode yaml")
	require.Nil(t, cfg)
}

// Expectation: an empty config file should be parsed successfully.
func Test_parseConfigFile_EmptyConfig_Success(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/par2verify.yaml", []byte("{}"), 0o644))

	cfg, err := parseConfigFile(fs, "/par2verify.yaml")

	require.NoError(t, err)
	require.Nil(t, cfg.Verify)
	require.Nil(t, cfg.Repair)
}

func discardLogOptions() logging.Options {
	return logging.Options{Logout: io.Discard, Stdout: io.Discard, Stderr: io.Discard}
}

// Expectation: YAML config values should be merged into unset log settings.
func Test_configFileVerify_Merge_AllFields_Success(t *testing.T) {
	t.Parallel()

	level := flags.LogLevel{}
	_ = level.Set("debug")

	yamlCfg := &configFileVerify{LogLevel: &level, WantJSON: util.Ptr(true)}

	logs := discardLogOptions()
	_ = logs.LogLevel.Set("info")

	yamlCfg.Merge(&logs, map[string]bool{})

	require.Equal(t, slog.LevelDebug, logs.LogLevel.Value)
	require.True(t, logs.WantJSON)
}

// Expectation: a flag the user explicitly set takes precedence over the config file.
func Test_configFileVerify_Merge_CLIFlagsPrecedence_Success(t *testing.T) {
	t.Parallel()

	level := flags.LogLevel{}
	_ = level.Set("debug")

	yamlCfg := &configFileVerify{LogLevel: &level, WantJSON: util.Ptr(true)}

	logs := discardLogOptions()
	_ = logs.LogLevel.Set("warn")

	yamlCfg.Merge(&logs, map[string]bool{"log-level": true, "json": true})

	require.Equal(t, slog.LevelWarn, logs.LogLevel.Value)
	require.False(t, logs.WantJSON)
}

// Expectation: nil fields in the YAML config should not override existing values.
func Test_configFileVerify_Merge_NilFields_Success(t *testing.T) {
	t.Parallel()

	yamlCfg := &configFileVerify{}

	logs := discardLogOptions()
	_ = logs.LogLevel.Set("warn")

	yamlCfg.Merge(&logs, map[string]bool{})

	require.Equal(t, slog.LevelWarn, logs.LogLevel.Value)
	require.False(t, logs.WantJSON)
}

// Expectation: YAML config values should be merged into repair.Options and logs.
func Test_configFileRepair_Merge_AllFields_Success(t *testing.T) {
	t.Parallel()

	level := flags.LogLevel{}
	_ = level.Set("debug")

	yamlCfg := &configFileRepair{
		Threads:      util.Ptr(4),
		PurgeBackups: util.Ptr(true),
		LogLevel:     &level,
		WantJSON:     util.Ptr(true),
	}

	cfg := repair.Options{}
	logs := discardLogOptions()
	_ = logs.LogLevel.Set("info")

	yamlCfg.Merge(&cfg, &logs, map[string]bool{})

	require.Equal(t, 4, cfg.Workers)
	require.True(t, cfg.PurgeBackups)
	require.Equal(t, slog.LevelDebug, logs.LogLevel.Value)
	require.True(t, logs.WantJSON)
}

// Expectation: CLI flags should take precedence over the YAML config for repair.
func Test_configFileRepair_Merge_CLIFlagsPrecedence_Success(t *testing.T) {
	t.Parallel()

	level := flags.LogLevel{}
	_ = level.Set("debug")

	yamlCfg := &configFileRepair{
		Threads:      util.Ptr(8),
		PurgeBackups: util.Ptr(true),
		LogLevel:     &level,
		WantJSON:     util.Ptr(true),
	}

	cfg := repair.Options{Workers: 2, PurgeBackups: false}
	logs := discardLogOptions()
	_ = logs.LogLevel.Set("warn")

	setFlags := map[string]bool{"threads": true, "purge": true, "log-level": true, "json": true}

	yamlCfg.Merge(&cfg, &logs, setFlags)

	require.Equal(t, 2, cfg.Workers)
	require.False(t, cfg.PurgeBackups)
	require.Equal(t, slog.LevelWarn, logs.LogLevel.Value)
	require.False(t, logs.WantJSON)
}

// Expectation: nil fields in the YAML config should not override existing values for repair.
func Test_configFileRepair_Merge_NilFields_Success(t *testing.T) {
	t.Parallel()

	yamlCfg := &configFileRepair{}

	cfg := repair.Options{Workers: 3, PurgeBackups: true}
	logs := discardLogOptions()
	_ = logs.LogLevel.Set("warn")

	yamlCfg.Merge(&cfg, &logs, map[string]bool{})

	require.Equal(t, 3, cfg.Workers)
	require.True(t, cfg.PurgeBackups)
	require.Equal(t, slog.LevelWarn, logs.LogLevel.Value)
}

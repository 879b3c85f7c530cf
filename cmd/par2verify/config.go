package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/par2lab/par2verify/internal/flags"
	"github.com/par2lab/par2verify/internal/logging"
	"github.com/par2lab/par2verify/internal/repair"
)

// configFile is the optional on-disk YAML configuration (--config/-c),
// carrying default values for flags the user did not explicitly set.
// Explicit flags always win; a config file only fills gaps, the same
// precedence the teacher's par2cron configuration applies.
type configFile struct {
	Verify *configFileVerify `yaml:"verify"`
	Repair *configFileRepair `yaml:"repair"`
}

func parseConfigFile(fsys afero.Fs, path string) (*configFile, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	cfg := &configFile{}
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}

	return cfg, nil
}

type configFileVerify struct {
	LogLevel *flags.LogLevel `yaml:"log-level"`
	WantJSON *bool           `yaml:"json"`
}

func (yamlCfg *configFileVerify) Merge(logs *logging.Options, setFlags map[string]bool) {
	if yamlCfg.LogLevel != nil && !setFlags["log-level"] {
		logs.LogLevel = *yamlCfg.LogLevel
	}
	if yamlCfg.WantJSON != nil && !setFlags["json"] {
		logs.WantJSON = *yamlCfg.WantJSON
	}
}

type configFileRepair struct {
	Threads      *int  `yaml:"threads"`
	PurgeBackups *bool `yaml:"purge-backups"`

	LogLevel *flags.LogLevel `yaml:"log-level"`
	WantJSON *bool           `yaml:"json"`
}

func (yamlCfg *configFileRepair) Merge(cfg *repair.Options, logs *logging.Options, setFlags map[string]bool) {
	if yamlCfg.Threads != nil && !setFlags["threads"] {
		cfg.Workers = *yamlCfg.Threads
	}
	if yamlCfg.PurgeBackups != nil && !setFlags["purge"] {
		cfg.PurgeBackups = *yamlCfg.PurgeBackups
	}
	if yamlCfg.LogLevel != nil && !setFlags["log-level"] {
		logs.LogLevel = *yamlCfg.LogLevel
	}
	if yamlCfg.WantJSON != nil && !setFlags["json"] {
		logs.WantJSON = *yamlCfg.WantJSON
	}
}

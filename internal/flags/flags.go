package flags

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var (
	_ pflag.Value = (*LogLevel)(nil)

	_ yaml.Unmarshaler = (*LogLevel)(nil)

	errInvalidValue = errors.New("invalid value")
)

// LogLevel is a pflag/yaml-settable wrapper around [slog.Level].
type LogLevel struct {
	Raw   string
	Value slog.Level
}

func (f *LogLevel) String() string {
	return f.Raw
}

func (f *LogLevel) Set(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "debug":
		f.Value = slog.LevelDebug
	case "info":
		f.Value = slog.LevelInfo
	case "warn", "warning":
		f.Value = slog.LevelWarn
	case "error":
		f.Value = slog.LevelError
	default:
		return fmt.Errorf("%w: %q is not recognized", errInvalidValue, s)
	}

	f.Raw = s

	return nil
}

func (f *LogLevel) Type() string {
	return "level"
}

func (f *LogLevel) UnmarshalYAML(node *yaml.Node) error {
	return f.Set(node.Value)
}

package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "STAKESIM_LOG_LEVEL"
	EnvLogFormat  = "STAKESIM_LOG_FORMAT"
	EnvLogNoColor = "STAKESIM_LOG_NOCOLOR"

	FormatConsole = "console"
	FormatJSON    = "json"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

type Options struct {
	App     string
	Level   string
	Format  string
	NoColor bool
	Writer  io.Writer
}

func DefaultOptions(profile Profile) Options {
	switch profile {
	case ProfileTest:
		return Options{App: "stakesim-test", Level: "disabled", Format: FormatJSON, NoColor: true}
	default:
		return Options{App: "stakesim", Level: "info", Format: FormatConsole}
	}
}

// New builds a logger from opts after applying STAKESIM_LOG_* overrides.
func New(opts Options) zerolog.Logger {
	applyEnvOverrides(&opts)

	out := opts.Writer
	if out == nil {
		out = os.Stderr
	}
	if !strings.EqualFold(strings.TrimSpace(opts.Format), FormatJSON) {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    opts.NoColor,
		}
	}

	level, ok := parseLevel(opts.Level)
	if !ok {
		level = zerolog.InfoLevel
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if opts.App != "" {
		ctx = ctx.Str("app", opts.App)
	}
	return ctx.Logger()
}

// NewTest returns a logger that discards output unless STAKESIM_LOG_LEVEL
// asks for more.
func NewTest() zerolog.Logger {
	return New(DefaultOptions(ProfileTest))
}

func applyEnvOverrides(opts *Options) {
	if raw := os.Getenv(EnvLogLevel); strings.TrimSpace(raw) != "" {
		if _, ok := parseLevel(raw); ok {
			opts.Level = raw
		}
	}
	if raw := strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))); raw == FormatJSON || raw == FormatConsole {
		opts.Format = raw
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		opts.NoColor = v
	}
}

func ParseLevel(raw string) (zerolog.Level, bool) {
	return parseLevel(raw)
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

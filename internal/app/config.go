package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/specialistvlad/formulagrid/internal/engine"
	"github.com/specialistvlad/formulagrid/internal/provider"
	"github.com/specialistvlad/formulagrid/internal/provider/rabbitmq"
	"github.com/specialistvlad/formulagrid/internal/provider/socketio"
)

// DefaultReportInterval is how often the running app prints its report.
const DefaultReportInterval = 10 * time.Second

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	DocumentPath string // hcl files
	ConfigPath   string // optional toml file

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	Once            bool

	Settings Settings
}

// Settings is the content of the TOML configuration file.
type Settings struct {
	LockTimeout    Duration          `toml:"lock_timeout"`
	PollSchedule   string            `toml:"poll_schedule"`
	ReportInterval Duration          `toml:"report_interval"`
	Clock          *ClockSettings    `toml:"clock"`
	Env            *EnvSettings      `toml:"env"`
	SocketIO       []socketio.Config `toml:"socketio"`
	RabbitMQ       []rabbitmq.Config `toml:"rabbitmq"`
}

// ClockSettings enables the clock source.
type ClockSettings struct {
	Name     string `toml:"name"`
	Location string `toml:"location"`
}

// EnvSettings enables the environment source.
type EnvSettings struct {
	Name   string `toml:"name"`
	Prefix string `toml:"prefix"`
}

// Duration is a wrapper for time.Duration that supports TOML marshaling.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadSettings decodes a TOML configuration file. Unknown keys are an error.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Settings{}, fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}
	return s, nil
}

// NewConfig validates cfg, loads its config file and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.DocumentPath == "" {
		return nil, errors.New("DocumentPath is a required configuration field and cannot be empty")
	}

	if cfg.ConfigPath != "" {
		s, err := LoadSettings(cfg.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.Settings = s
	}

	s := &cfg.Settings
	if s.LockTimeout.Duration < 0 {
		return nil, fmt.Errorf("lock_timeout must not be negative, got %s", s.LockTimeout)
	}
	if s.LockTimeout.Duration == 0 {
		s.LockTimeout.Duration = engine.DefaultLockTimeout
	}
	if s.ReportInterval.Duration < 0 {
		return nil, fmt.Errorf("report_interval must not be negative, got %s", s.ReportInterval)
	}
	if s.ReportInterval.Duration == 0 {
		s.ReportInterval.Duration = DefaultReportInterval
	}
	if s.PollSchedule == "" {
		s.PollSchedule = provider.DefaultSchedule
	}
	if err := provider.ValidateSchedule(s.PollSchedule); err != nil {
		return nil, err
	}
	if s.Clock != nil {
		if s.Clock.Name == "" {
			s.Clock.Name = "Clock"
		}
		if _, err := time.LoadLocation(s.Clock.Location); err != nil {
			return nil, fmt.Errorf("invalid clock location %q: %w", s.Clock.Location, err)
		}
	}
	if s.Env != nil {
		if s.Env.Name == "" {
			s.Env.Name = "Env"
		}
		if s.Env.Prefix == "" {
			return nil, errors.New("env source requires a prefix")
		}
	}

	return &cfg, nil
}

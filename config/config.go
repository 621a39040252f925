package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config defines process configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	Timesheet TimesheetConfig `yaml:"timesheet"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Timezone       string   `yaml:"timezone"`
	MaxPastWeeks   int      `yaml:"max_past_weeks"`
	MaxFutureWeeks int      `yaml:"max_future_weeks"`
}

// DBConfig selects the record store. Driver is one of "sqlite", "postgres", "memory".
type DBConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the shared in-flight guard when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	GuardTTL time.Duration `yaml:"guard_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// TimesheetConfig is the calendar and cap section. Nil fields inherit from
// the preset; an explicit empty list clears it.
type TimesheetConfig struct {
	Preset              string            `yaml:"preset" json:"preset"`
	DaysPerWeek         int               `yaml:"days_per_week,omitempty" json:"days_per_week,omitempty"`
	DailyCaps           []string          `yaml:"daily_caps,omitempty" json:"daily_caps,omitempty"`         // hours per weekday, "9", "6.5"
	FixedHolidays       []string          `yaml:"fixed_holidays,omitempty" json:"fixed_holidays,omitempty"` // "MM-DD"
	MovableFeastOffsets []int             `yaml:"movable_feast_offsets,omitempty" json:"movable_feast_offsets,omitempty"`
	ManualHolidays      []string          `yaml:"manual_holidays,omitempty" json:"manual_holidays,omitempty"` // "YYYY-MM-DD"
	LeaveProjects       map[string]string `yaml:"leave_projects,omitempty" json:"leave_projects,omitempty"`   // reason -> project code
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
			Timezone:       "America/Santiago",
			MaxPastWeeks:   1,
			MaxFutureWeeks: 52,
		},
		DB: DBConfig{
			Driver: "sqlite",
			Path:   "timesheet.db",
		},
		Redis: RedisConfig{
			GuardTTL: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Timesheet: TimesheetConfig{
			Preset: "five-day",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("TIMESHEET_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("TIMESHEET_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("TIMESHEET_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TIMESHEET_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if tz := os.Getenv("TIMESHEET_TIMEZONE"); tz != "" {
		cfg.Server.Timezone = tz
	}
	if driver := os.Getenv("TIMESHEET_DB_DRIVER"); driver != "" {
		cfg.DB.Driver = driver
	}
	if dbPath := os.Getenv("TIMESHEET_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if dsn := os.Getenv("TIMESHEET_DB_DSN"); dsn != "" {
		cfg.DB.DSN = dsn
	}
	if addr := os.Getenv("TIMESHEET_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if level := os.Getenv("TIMESHEET_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if preset := os.Getenv("TIMESHEET_PRESET"); preset != "" {
		cfg.Timesheet.Preset = preset
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the process-level settings. The timesheet section is
// checked when factory builds the engine configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Server.MaxPastWeeks < 0 || c.Server.MaxFutureWeeks < 0 {
		return fmt.Errorf("navigation limits must not be negative")
	}
	if _, err := time.LoadLocation(c.Server.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Server.Timezone, err)
	}
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for sqlite")
		}
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown db driver %q", c.DB.Driver)
	}
	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/dukerupert/accountable/internal/engine"
	"github.com/dukerupert/accountable/internal/scoring"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// ACCOUNTABLE_LISTEN_ADDR.
const EnvPrefix = "ACCOUNTABLE"

type Discord struct {
	Token             string  `yaml:"token"             envconfig:"TOKEN"`
	APIBase           string  `yaml:"apiBase"           envconfig:"API_BASE"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond" envconfig:"REQUESTS_PER_SECOND"`
}

// Community is a guild the bot serves and where its leaderboard goes.
type Community struct {
	ID                 string `yaml:"id"`
	LeaderboardChannel string `yaml:"leaderboardChannel"`
}

type Config struct {
	ListenAddr       string        `yaml:"listenAddr"       split_words:"true"`
	DatabasePath     string        `yaml:"databasePath"     split_words:"true"`
	LogLevel         string        `yaml:"logLevel"         split_words:"true"`
	LogFile          string        `yaml:"logFile"          split_words:"true"`
	Timezone         string        `yaml:"timezone"`
	SettleAt         string        `yaml:"settleAt"         split_words:"true"`
	SweepInterval    time.Duration `yaml:"sweepInterval"    split_words:"true"`
	Rules            scoring.Rules `yaml:"rules"`
	LeaveQuota       int           `yaml:"leaveQuota"       split_words:"true"`
	ProtectDays      int           `yaml:"protectDays"      split_words:"true"`
	WarnAfter        time.Duration `yaml:"warnAfter"        split_words:"true"`
	KickAfter        time.Duration `yaml:"kickAfter"        split_words:"true"`
	LeaderboardSize  int           `yaml:"leaderboardSize"  split_words:"true"`
	SweepConcurrency int           `yaml:"sweepConcurrency" split_words:"true"`
	Discord          Discord       `yaml:"discord"`
	Communities      []Community   `yaml:"communities"      ignored:"true"`
	AdminTokenHash   string        `yaml:"adminTokenHash"   split_words:"true"`
	AllowedOrigins   []string      `yaml:"allowedOrigins"   split_words:"true"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:       ":8080",
		DatabasePath:     "accountable.db",
		LogLevel:         "info",
		Timezone:         "Asia/Kolkata",
		SettleAt:         "23:59",
		SweepInterval:    time.Hour,
		Rules:            scoring.DefaultRules(),
		LeaveQuota:       3,
		ProtectDays:      2,
		WarnAfter:        36 * time.Hour,
		KickAfter:        48 * time.Hour,
		LeaderboardSize:  20,
		SweepConcurrency: 4,
		Discord: Discord{
			RequestsPerSecond: 5,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
	}
	if _, err := c.SettleOffset(); err != nil {
		errs = append(errs, err)
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweepInterval must be positive"))
	}
	if c.LeaveQuota < 0 {
		errs = append(errs, errors.New("leaveQuota must not be negative"))
	}
	if c.ProtectDays < 1 {
		errs = append(errs, errors.New("protectDays must be at least 1"))
	}
	if c.WarnAfter <= 0 || c.KickAfter <= c.WarnAfter {
		errs = append(errs, fmt.Errorf("need 0 < warnAfter < kickAfter, got %s and %s", c.WarnAfter, c.KickAfter))
	}
	if c.LeaderboardSize < 1 {
		errs = append(errs, errors.New("leaderboardSize must be at least 1"))
	}
	if c.SweepConcurrency < 1 {
		errs = append(errs, errors.New("sweepConcurrency must be at least 1"))
	}
	seen := make(map[string]bool)
	for i, cm := range c.Communities {
		if cm.ID == "" {
			errs = append(errs, fmt.Errorf("communities[%d]: missing id", i))
			continue
		}
		if seen[cm.ID] {
			errs = append(errs, fmt.Errorf("communities[%d]: duplicate id %s", i, cm.ID))
		}
		seen[cm.ID] = true
	}
	return errors.Join(errs...)
}

// Location returns the reference timezone for calendar days.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// SettleOffset parses SettleAt ("HH:MM") into an offset from midnight.
func (c *Config) SettleOffset() (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(c.SettleAt))
	if err != nil {
		return 0, fmt.Errorf("settleAt %q: want HH:MM", c.SettleAt)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// LeaderboardChannels maps community id to leaderboard channel.
func (c *Config) LeaderboardChannels() map[string]string {
	m := make(map[string]string, len(c.Communities))
	for _, cm := range c.Communities {
		if cm.LeaderboardChannel != "" {
			m[cm.ID] = cm.LeaderboardChannel
		}
	}
	return m
}

// Engine returns the engine policy for this configuration.
func (c *Config) Engine() (engine.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return engine.Config{}, fmt.Errorf("load timezone: %w", err)
	}
	ids := make([]string, 0, len(c.Communities))
	for _, cm := range c.Communities {
		ids = append(ids, cm.ID)
	}
	return engine.Config{
		Location:         loc,
		Rules:            c.Rules,
		LeaveQuota:       c.LeaveQuota,
		ProtectDays:      c.ProtectDays,
		WarnAfter:        c.WarnAfter,
		KickAfter:        c.KickAfter,
		LeaderboardSize:  c.LeaderboardSize,
		SweepConcurrency: c.SweepConcurrency,
		Communities:      ids,
	}, nil
}

// Package config provides YAML-based configuration loading for QuayDesk.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config is the top-level QuayDesk configuration, loaded from quaydesk.yaml.
type Config struct {
	Discord   DiscordConfig   `yaml:"discord"`
	Database  DatabaseConfig  `yaml:"database"`
	Tickets   TicketsConfig   `yaml:"tickets"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Slack     SlackConfig     `yaml:"slack"`
}

// DiscordConfig holds bot credentials and the guild the bot serves.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
}

// DatabaseConfig selects and parameterizes the GORM driver.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite or mysql
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`   // mysql
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// TicketsConfig holds the static routing table: which channel receives staff
// notifications for each ticket subtype, and the category under which
// per-ticket workspace channels are created.
type TicketsConfig struct {
	ActiveCategory     string            `yaml:"active_category"`
	Routing            map[string]string `yaml:"routing"` // subtype -> channel ID
	DefaultAccessLevel string            `yaml:"default_access_level"`
}

// DashboardConfig holds settings for the read-only HTTP dashboard.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// SlackConfig enables the optional Slack mirror of ticket lifecycle events.
// Both fields empty disables the mirror.
type SlackConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// Enabled reports whether the Slack mirror is configured.
func (s SlackConfig) Enabled() bool {
	return s.Token != "" && s.Channel != ""
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Path == "" {
		c.Database.Path = "quaydesk.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "quaydesk"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8090
	}
	if c.Tickets.DefaultAccessLevel == "" {
		c.Tickets.DefaultAccessLevel = "mod"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Discord.Token == "" {
		errs = append(errs, "discord.token is required")
	}
	if c.Discord.GuildID == "" {
		errs = append(errs, "discord.guild_id is required")
	}
	if c.Database.Driver != DriverSQLite && c.Database.Driver != DriverMySQL {
		errs = append(errs, fmt.Sprintf("database.driver must be %q or %q", DriverSQLite, DriverMySQL))
	}
	if c.Tickets.ActiveCategory == "" {
		errs = append(errs, "tickets.active_category is required")
	}
	if len(c.Tickets.Routing) == 0 {
		errs = append(errs, "tickets.routing must map at least one subtype to a channel")
	}
	for subtype, channel := range c.Tickets.Routing {
		if channel == "" {
			errs = append(errs, fmt.Sprintf("tickets.routing[%s] is empty", subtype))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

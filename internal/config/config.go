// Package config loads the daemon's TOML configuration file into a plain
// struct. Parsing itself is intentionally thin -- the daemon consumes a
// fixed-shape value and does no hot-reloading or validation beyond basic
// presence checks.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultConfigPath is where the daemon looks for its configuration file
// when no override is supplied.
const DefaultConfigPath = "/etc/btu_scheduler/btu_scheduler.toml"

// Config is the daemon's full runtime configuration, loaded once at
// startup and then treated as read-only shared state.
type Config struct {
	TimeZoneString                 string `toml:"time_zone_string"`
	FullRefreshIntervalSeconds     uint32 `toml:"full_refresh_interval_seconds"`
	SchedulerPollingIntervalSeconds uint64 `toml:"scheduler_polling_interval_seconds"`
	StartupWithoutDatabaseConns    bool   `toml:"startup_without_database_connections"`
	LogLevel                       string `toml:"log_level"`

	SQL   SQLConfig   `toml:"sql"`
	Redis RedisConfig `toml:"redis"`

	SocketPath          string `toml:"socket_path"`
	SocketFileGroupOwner string `toml:"socket_file_group_owner"`

	WebApp WebAppConfig `toml:"web_app"`

	MetricsAddr string `toml:"metrics_addr"`
}

// SQLConfig holds the relational store's connection credentials.
type SQLConfig struct {
	Host     string `toml:"host"`
	Port     uint16 `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

// RedisConfig holds the Due-Time Index / RQ Redis endpoint.
type RedisConfig struct {
	Host string `toml:"host"`
	Port uint16 `toml:"port"`
}

// WebAppConfig holds the host web application's callable-fetch endpoint.
type WebAppConfig struct {
	Host       string `toml:"host"`
	Port       uint16 `toml:"port"`
	HostHeader string `toml:"host_header"`
	Token      string `toml:"token"`
}

// Addr returns the Redis "host:port" address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DSN returns a go-sql-driver/mysql compatible data source name.
func (s SQLConfig) DSN() string {
	port := s.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		s.User, s.Password, s.Host, port, s.Database)
}

// BaseURL returns the web app's base HTTP URL.
func (w WebAppConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", w.Host, w.Port)
}

// Load reads and parses a TOML configuration file from path. If path is
// empty, DefaultConfigPath is used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config: cannot find configuration file at %q: %w", path, err)
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: could not decode TOML into configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TimeZoneString == "" {
		return fmt.Errorf("config: time_zone_string is required")
	}
	if c.SocketPath == "" {
		return fmt.Errorf("config: socket_path is required")
	}
	if c.SchedulerPollingIntervalSeconds == 0 {
		c.SchedulerPollingIntervalSeconds = 60
	}
	if c.FullRefreshIntervalSeconds == 0 {
		c.FullRefreshIntervalSeconds = 3600
	}
	if c.SQL.Port == 0 {
		c.SQL.Port = 3306
	}
	return nil
}

package config

import (
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ifuryst/threads-insights/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Threads   ThreadsConfig   `yaml:"threads"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	Host        string `yaml:"host"`
	Mode        string `yaml:"mode"`
	CertFile    string `yaml:"cert_file"`
	KeyFile     string `yaml:"key_file"`
	MetricsPath string `yaml:"metrics_path"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
	// Path is the database file when Type is sqlite. ":memory:" keeps it in process.
	Path          string        `yaml:"path"`
	MaxOpenConns  int           `yaml:"max_open_conns"`
	MaxIdleConns  int           `yaml:"max_idle_conns"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

type ThreadsConfig struct {
	BaseURL           string        `yaml:"base_url"`
	GraphURL          string        `yaml:"graph_url"`
	AuthorizeURL      string        `yaml:"authorize_url"`
	AccessToken       string        `yaml:"access_token"`
	UserID            string        `yaml:"user_id"`
	AppID             string        `yaml:"app_id"`
	AppSecret         string        `yaml:"app_secret"`
	RedirectURI       string        `yaml:"redirect_uri"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	PageSize          int           `yaml:"page_size"`
	MediaLimit        int           `yaml:"media_limit"`
}

type IngestConfig struct {
	Timezone       string        `yaml:"timezone"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	ReaperInterval time.Duration `yaml:"reaper_interval"`
}

type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Spec    string `yaml:"spec"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	return cfg, nil
}

// SetDefaults fills every unset field with its default value.
func (cfg *Config) SetDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/internal/metrics"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "threads_insights.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = 200 * time.Millisecond
	}
	if cfg.Threads.BaseURL == "" {
		cfg.Threads.BaseURL = "https://graph.threads.net/v1.0"
	}
	if cfg.Threads.GraphURL == "" {
		cfg.Threads.GraphURL = "https://graph.threads.net"
	}
	if cfg.Threads.AuthorizeURL == "" {
		cfg.Threads.AuthorizeURL = "https://threads.net/oauth/authorize"
	}
	if cfg.Threads.UserID == "" {
		cfg.Threads.UserID = "me"
	}
	if cfg.Threads.Timeout == 0 {
		cfg.Threads.Timeout = 30 * time.Second
	}
	if cfg.Threads.RequestsPerSecond == 0 {
		cfg.Threads.RequestsPerSecond = 5
	}
	if cfg.Threads.PageSize == 0 {
		cfg.Threads.PageSize = 25
	}
	if cfg.Ingest.Timezone == "" {
		cfg.Ingest.Timezone = "UTC"
	}
	if cfg.Ingest.StaleAfter == 0 {
		cfg.Ingest.StaleAfter = 2 * time.Hour
	}
	if cfg.Ingest.ReaperInterval == 0 {
		cfg.Ingest.ReaperInterval = 10 * time.Minute
	}
	if cfg.Scheduler.Spec == "" {
		cfg.Scheduler.Spec = "0 6 * * *"
	}
}

// Location resolves the ingest timezone, falling back to UTC.
func (c IngestConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

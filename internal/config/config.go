// Package config exposes strongly typed application configuration structs
// loaded from YAML, with environment overrides for secrets and deploy knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings.
type App struct {
	Name           string   `yaml:"name"`
	Env            string   `yaml:"env"`
	ListenAddr     string   `yaml:"listen_addr"`
	MetricsAddr    string   `yaml:"metrics_addr"`
	LogLevel       string   `yaml:"log_level"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Twitch holds chat and Helix credentials for the tracked channel. The
// secrets are expected to arrive via environment variables in production.
type Twitch struct {
	Channel               string `yaml:"channel"`
	BotUsername           string `yaml:"bot_username"`
	OAuthToken            string `yaml:"oauth_token"`
	ClientID              string `yaml:"client_id"`
	ClientSecret          string `yaml:"client_secret"`
	HelixPollIntervalSecs int    `yaml:"helix_poll_interval_secs"`
}

// Stonks tunes the price engine.
type Stonks struct {
	UpKeyword           string  `yaml:"up_keyword"`
	DownKeyword         string  `yaml:"down_keyword"`
	TickIntervalMinutes float64 `yaml:"tick_interval_minutes"`
	InitialPrice        float64 `yaml:"initial_price"`
	UnitStep            float64 `yaml:"unit_step"`
}

// Repository describes the postgres connection.
type Repository struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Name            string `yaml:"name"`
	SSLMode         string `yaml:"ssl_mode"`
	ConnectAttempts int    `yaml:"connect_attempts"`
}

// DSN renders the lib/pq connection string.
func (r Repository) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		r.Host, r.Port, r.User, r.Password, r.Name, r.SSLMode)
}

// Cache describes the optional redis latest-tick cache.
type Cache struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App        App        `yaml:"app"`
	Twitch     Twitch     `yaml:"twitch"`
	Stonks     Stonks     `yaml:"stonks"`
	Repository Repository `yaml:"repository"`
	Cache      Cache      `yaml:"cache"`
}

// TickInterval converts the configured minutes to a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Stonks.TickIntervalMinutes * float64(time.Minute))
}

// HelixPollInterval converts the configured seconds to a duration.
func (c *Config) HelixPollInterval() time.Duration {
	return time.Duration(c.Twitch.HelixPollIntervalSecs) * time.Second
}

// Load reads a YAML file from disk, hydrates a Config struct, applies
// environment overrides, and fills defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyEnv()
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyEnv() {
	overrideString(&c.Twitch.Channel, "TWITCH_CHANNEL")
	overrideString(&c.Twitch.BotUsername, "TWITCH_BOT_USERNAME")
	overrideString(&c.Twitch.OAuthToken, "TWITCH_OAUTH_TOKEN")
	overrideString(&c.Twitch.ClientID, "TWITCH_CLIENT_ID")
	overrideString(&c.Twitch.ClientSecret, "TWITCH_CLIENT_SECRET")

	overrideString(&c.Repository.Host, "DB_HOST")
	overrideInt(&c.Repository.Port, "DB_PORT")
	overrideString(&c.Repository.User, "DB_USER")
	overrideString(&c.Repository.Password, "DB_PASSWORD")
	overrideString(&c.Repository.Name, "DB_NAME")

	overrideString(&c.Cache.Addr, "REDIS_ADDR")
	overrideString(&c.Cache.Password, "REDIS_PASSWORD")
	overrideInt(&c.Cache.DB, "REDIS_DB")

	overrideString(&c.App.ListenAddr, "LISTEN_ADDR")
	overrideString(&c.App.LogLevel, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.App.ListenAddr == "" {
		c.App.ListenAddr = ":8000"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9100"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Stonks.UpKeyword == "" {
		c.Stonks.UpKeyword = "STONKS"
	}
	if c.Stonks.DownKeyword == "" {
		c.Stonks.DownKeyword = "STONKS DOWN"
	}
	if c.Stonks.TickIntervalMinutes <= 0 {
		c.Stonks.TickIntervalMinutes = 30
	}
	if c.Stonks.InitialPrice <= 0 {
		c.Stonks.InitialPrice = 100
	}
	if c.Stonks.UnitStep <= 0 {
		c.Stonks.UnitStep = 0.5
	}
	if c.Twitch.HelixPollIntervalSecs <= 0 {
		c.Twitch.HelixPollIntervalSecs = 180
	}
	if c.Repository.SSLMode == "" {
		c.Repository.SSLMode = "disable"
	}
	if c.Repository.ConnectAttempts <= 0 {
		c.Repository.ConnectAttempts = 5
	}
}

func overrideString(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func overrideInt(target *int, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config defines the structure for all application configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Data      DataConfig      `yaml:"data"`
	Model     ModelConfig     `yaml:"model"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	DBWriter  DBWriterConfig  `yaml:"db_writer"`
	Redis     RedisConfig     `yaml:"redis"`
	Alert     AlertConfig     `yaml:"alert"`
	LogLevel  string          `yaml:"-"` // Loaded from env or app.log_level
}

// AppConfig holds general application settings.
type AppConfig struct {
	LogLevel string `yaml:"log_level"`
}

// DataConfig holds settings for the price data file.
type DataConfig struct {
	Path              string   `yaml:"path"`
	SeedIfMissing     FlexBool `yaml:"seed_if_missing"`
	HistoryWindowDays int      `yaml:"history_window_days"`
}

// ModelConfig holds the location of the trained model artifacts.
type ModelConfig struct {
	Dir string `yaml:"dir"`
}

// SchedulerConfig holds settings for the background update loop.
type SchedulerConfig struct {
	Enabled              FlexBool `yaml:"enabled"`
	DailyAt              string   `yaml:"daily_at"` // "HH:MM", local time
	CheckIntervalMinutes int      `yaml:"check_interval_minutes"`
	PollIntervalSeconds  int      `yaml:"poll_interval_seconds"`
}

// ServerConfig holds listen addresses.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	OpsAddr string `yaml:"ops_addr"`
}

// DatabaseConfig holds connection settings for the price archive.
type DatabaseConfig struct {
	Enabled  FlexBool `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	Name     string   `yaml:"name"`
	SSLMode  string   `yaml:"sslmode"`

	// MigrationsDir holds golang-migrate files applied at startup.
	MigrationsDir string `yaml:"migrations_dir"`
}

// DBWriterConfig holds settings for the buffered archive writer.
type DBWriterConfig struct {
	BatchSize            int `yaml:"batch_size"`
	WriteIntervalSeconds int `yaml:"write_interval_seconds"`
}

// RedisConfig holds settings for the prediction cache.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	DB         int    `yaml:"db"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// AlertConfig holds notification settings.
type AlertConfig struct {
	Discord DiscordConfig `yaml:"discord"`
}

// DiscordConfig holds settings for direct-message alerts on training failures.
type DiscordConfig struct {
	Enabled               FlexBool `yaml:"enabled"`
	BotToken              string   `yaml:"bot_token"`
	UserID                string   `yaml:"user_id"`
	BufferIntervalMinutes int      `yaml:"buffer_interval_minutes"`
}

// URL returns the postgres connection URL for the archive database.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// DailyTime parses DailyAt into hour and minute.
func (s SchedulerConfig) DailyTime() (hour, minute int, err error) {
	t, err := time.Parse("15:04", s.DailyAt)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid scheduler.daily_at %q: %w", s.DailyAt, err)
	}
	return t.Hour(), t.Minute(), nil
}

var current atomic.Pointer[Config]

// GetConfig returns the most recently loaded configuration.
func GetConfig() *Config {
	return current.Load()
}

// ReloadConfig reads the configuration again and swaps it in atomically.
func ReloadConfig(configPath string) (*Config, error) {
	return LoadConfig(configPath)
}

func defaults() *Config {
	return &Config{
		App:  AppConfig{LogLevel: "info"},
		Data: DataConfig{Path: "data/crop_price_data.csv", SeedIfMissing: true, HistoryWindowDays: 365},
		Model: ModelConfig{
			Dir: "model",
		},
		Scheduler: SchedulerConfig{
			Enabled:              true,
			DailyAt:              "02:00",
			CheckIntervalMinutes: 60,
			PollIntervalSeconds:  60,
		},
		Server:   ServerConfig{Addr: ":5000", OpsAddr: ":8080"},
		Database: DatabaseConfig{Host: "localhost", Port: 5432, SSLMode: "disable", MigrationsDir: "db/schema"},
		DBWriter: DBWriterConfig{BatchSize: 500, WriteIntervalSeconds: 5},
		Redis:    RedisConfig{TTLMinutes: 60},
		Alert:    AlertConfig{Discord: DiscordConfig{BufferIntervalMinutes: 5}},
	}
}

// LoadConfig loads configuration from the specified YAML file path
// and environment variables. A .env file in the working directory is
// read first when present.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaults()

	// Read YAML file
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, err
	}
	cfg.LogLevel = cfg.App.LogLevel

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	current.Store(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if path := os.Getenv("DATA_PATH"); path != "" {
		cfg.Data.Path = path
	}
	if dir := os.Getenv("MODEL_DIR"); dir != "" {
		cfg.Model.Dir = dir
	}
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if addr := os.Getenv("OPS_ADDR"); addr != "" {
		cfg.Server.OpsAddr = addr
	}
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler.Enabled = FlexBool(b)
		}
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = p
		}
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.Name = dbName
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" {
		cfg.Alert.Discord.BotToken = token
	}
	if userID := os.Getenv("DISCORD_USER_ID"); userID != "" {
		cfg.Alert.Discord.UserID = userID
	}
}

func (c *Config) validate() error {
	if _, _, err := c.Scheduler.DailyTime(); err != nil {
		return err
	}
	if c.Scheduler.CheckIntervalMinutes <= 0 {
		c.Scheduler.CheckIntervalMinutes = 60
	}
	if c.Scheduler.PollIntervalSeconds <= 0 {
		c.Scheduler.PollIntervalSeconds = 60
	}
	if c.Data.HistoryWindowDays <= 0 {
		c.Data.HistoryWindowDays = 365
	}
	if c.Data.Path == "" {
		return errors.New("data.path must be set")
	}
	if c.Model.Dir == "" {
		return errors.New("model.dir must be set")
	}
	return nil
}

package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	ServerAddr     string   `env:"JUKEBOX_ADDR" env-default:"localhost:8000"`
	DatabaseDSN    string   `env:"DATABASE_URL" env-default:"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"`
	StorageDriver  string   `env:"STORAGE_DRIVER" env-default:"postgres"`
	RedisAddr      string   `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword  string   `env:"REDIS_PASSWORD"`
	RedisDB        int      `env:"REDIS_DB" env-default:"0"`
	SigningSecret  string   `env:"SIGNING_KEY"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" env-separator:","`

	// ProcessID names this process's job queue. It must stay stable across
	// restarts for unacknowledged jobs to be recovered.
	ProcessID string `env:"PROCESS_ID"`
	Workers   int    `env:"WORKERS" env-default:"1"`

	YouTubeAPIKey       string        `env:"YOUTUBE_API_KEY"`
	SpotifyClientID     string        `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string        `env:"SPOTIFY_CLIENT_SECRET"`
	MetadataTimeout     time.Duration `env:"METADATA_TIMEOUT" env-default:"10s"`

	AllowHostReassignment bool          `env:"ALLOW_HOST_REASSIGNMENT" env-default:"true"`
	IdleRoomTTL           time.Duration `env:"IDLE_ROOM_TTL" env-default:"0s"`
	ShutdownTimeout       time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`

	// SigningKey is the decoded SigningSecret, set by Validate.
	SigningKey []byte `env:"-"`
}

// Load reads envFile into the environment when it exists and then builds a
// Config from the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if cfg.ProcessID == "" {
		cfg.ProcessID = defaultProcessID()
	}

	return &cfg, nil
}

func defaultProcessID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "jukebox"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database DSN cannot be empty")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if c.SigningSecret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.ProcessID == "" {
		return fmt.Errorf("process id cannot be empty")
	}

	signingKey, err := decodeSigningSecret(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = signingKey

	return nil
}

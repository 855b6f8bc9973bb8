// Package config derives the process configuration from environment
// variables. Every knob has a default except the secrets and the database
// location.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full process configuration.
type Config struct {
	// Remote console.
	RCONHost     string
	RCONPort     int
	RCONPassword string
	RCONTimeout  time.Duration
	// RCONRatePerSec throttles outgoing console commands.
	RCONRatePerSec float64

	// Storage. DatabaseURL selects Postgres; when empty, SQLitePath is used.
	DatabaseURL string
	SQLitePath  string

	// Lifecycle.
	ServerName      string
	NestLifetime    time.Duration
	SweepInterval   time.Duration
	GrowthThreshold float64

	// Nest image storage: "memory" (default) or "s3".
	BlobDriver   string
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	S3PathStyle  bool
	S3AccessKey  string
	S3SecretKey  string

	// MetricsAddr is the listen address for the Prometheus endpoint;
	// empty disables it.
	MetricsAddr string
}

// FromEnv reads the configuration from the process environment.
func FromEnv() (Config, error) {
	cfg := Config{
		RCONHost:        envStr("NESTCORE_RCON_HOST", "127.0.0.1"),
		RCONPassword:    os.Getenv("NESTCORE_RCON_PASSWORD"),
		DatabaseURL:     os.Getenv("NESTCORE_DATABASE_URL"),
		SQLitePath:      envStr("NESTCORE_SQLITE_PATH", "nestcore.db"),
		ServerName:      envStr("NESTCORE_SERVER_NAME", "main"),
		BlobDriver:      envStr("NESTCORE_BLOB_DRIVER", "memory"),
		S3Bucket:        os.Getenv("NESTCORE_BLOB_S3_BUCKET"),
		S3Region:        os.Getenv("NESTCORE_BLOB_S3_REGION"),
		S3Endpoint:      os.Getenv("NESTCORE_BLOB_S3_ENDPOINT"),
		S3AccessKey:     os.Getenv("AWS_ACCESS_KEY_ID"),
		S3SecretKey:     os.Getenv("AWS_SECRET_ACCESS_KEY"),
		MetricsAddr:     envStr("NESTCORE_METRICS_ADDR", ":9109"),
	}
	var err error
	if cfg.RCONPort, err = envInt("NESTCORE_RCON_PORT", 25575); err != nil {
		return Config{}, err
	}
	if cfg.RCONTimeout, err = envDuration("NESTCORE_RCON_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RCONRatePerSec, err = envFloat("NESTCORE_RCON_RATE", 5); err != nil {
		return Config{}, err
	}
	if cfg.NestLifetime, err = envDuration("NESTCORE_NEST_LIFETIME", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = envDuration("NESTCORE_SWEEP_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.GrowthThreshold, err = envFloat("NESTCORE_GROWTH_THRESHOLD", 0.75); err != nil {
		return Config{}, err
	}
	cfg.S3PathStyle, err = envBool("NESTCORE_BLOB_S3_PATH_STYLE", false)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

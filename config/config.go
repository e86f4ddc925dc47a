// Package config loads client settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BaseURL          string
	Stream           bool
	SnapshotInterval time.Duration
	UploadRetryDelay time.Duration
	UploadMaxBytes   int64
	Timeout          time.Duration
	LogLevel         string
	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string
}

// Load reads the environment after loading the given .env files, ".env" when
// none are named. Missing files are ignored; variables already set win over
// file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	return FromEnv(), nil
}

// FromEnv reads the environment only.
func FromEnv() Config {
	return Config{
		BaseURL:          envStr("CHATSTREAM_BASE_URL", "http://localhost:50505"),
		Stream:           envBool("CHATSTREAM_STREAM", true),
		SnapshotInterval: time.Duration(envInt("CHATSTREAM_SNAPSHOT_INTERVAL_MS", 33)) * time.Millisecond,
		UploadRetryDelay: time.Duration(envInt("CHATSTREAM_UPLOAD_RETRY_DELAY_MS", 2000)) * time.Millisecond,
		UploadMaxBytes:   int64(envInt("CHATSTREAM_UPLOAD_MAX_BYTES", 10*1024*1024)),
		Timeout:          time.Duration(envInt("CHATSTREAM_TIMEOUT_MS", 120000)) * time.Millisecond,
		LogLevel:         envStr("LOG_LEVEL", "info"),
		OTLPEndpoint:     envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

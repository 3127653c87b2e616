package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Project
	ProjectPath string
	AssetRoot   string // relative sourcePaths resolve here; empty means the project's directory
	Watch       bool   // reload the project when another process rewrites it

	// Preview playback
	TickInterval   time.Duration // engine sampling of the hardware clock
	ReportInterval time.Duration // progress reporter sampling
	FFmpegPath     string        // fallback decoder for containers beep cannot read
	StreamBitrate  int           // Opus bitrate of the WebRTC monitor

	// Logging
	LogLevel string
	LogFile  string // empty logs to the console only

	// Game situation feed (disabled when URL is empty)
	MQTTURL      string
	MQTTTopic    string
	MQTTClientID string

	// s3:// asset source (disabled when endpoint is empty)
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioRegion    string
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is applied first; it never
// overrides variables that are already set.
func Load() Config {
	_ = godotenv.Load() // .env is optional

	return Config{
		Port: envInt("SEGUE_PORT", 8080),

		ProjectPath: envStr("SEGUE_PROJECT", "project.json"),
		AssetRoot:   envStr("SEGUE_ASSET_ROOT", ""),
		Watch:       envBool("SEGUE_WATCH", true),

		TickInterval:   envDuration("SEGUE_TICK_INTERVAL", 10*time.Millisecond),
		ReportInterval: envDuration("SEGUE_REPORT_INTERVAL", 50*time.Millisecond),
		FFmpegPath:     envStr("SEGUE_FFMPEG", "ffmpeg"),
		StreamBitrate:  envInt("SEGUE_STREAM_BITRATE", 128000),

		LogLevel: envStr("SEGUE_LOG_LEVEL", "info"),
		LogFile:  envStr("SEGUE_LOG_FILE", ""),

		MQTTURL:      envStr("SEGUE_MQTT_URL", ""),
		MQTTTopic:    envStr("SEGUE_MQTT_TOPIC", "game/situation"),
		MQTTClientID: envStr("SEGUE_MQTT_CLIENT_ID", "segue-editor"),

		MinioEndpoint:  envStr("SEGUE_MINIO_ENDPOINT", ""),
		MinioAccessKey: envStr("SEGUE_MINIO_ACCESS_KEY", ""),
		MinioSecretKey: envStr("SEGUE_MINIO_SECRET_KEY", ""),
		MinioUseSSL:    envBool("SEGUE_MINIO_USE_SSL", false),
		MinioRegion:    envStr("SEGUE_MINIO_REGION", "us-east-1"),
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

// envDuration accepts Go durations ("25ms") or a bare number of milliseconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

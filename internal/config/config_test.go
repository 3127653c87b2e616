package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allKeys = []string{
	"SEGUE_PORT", "SEGUE_PROJECT", "SEGUE_ASSET_ROOT", "SEGUE_WATCH",
	"SEGUE_TICK_INTERVAL", "SEGUE_REPORT_INTERVAL", "SEGUE_FFMPEG", "SEGUE_STREAM_BITRATE",
	"SEGUE_LOG_LEVEL", "SEGUE_LOG_FILE",
	"SEGUE_MQTT_URL", "SEGUE_MQTT_TOPIC", "SEGUE_MQTT_CLIENT_ID",
	"SEGUE_MINIO_ENDPOINT", "SEGUE_MINIO_ACCESS_KEY", "SEGUE_MINIO_SECRET_KEY",
	"SEGUE_MINIO_USE_SSL", "SEGUE_MINIO_REGION",
}

// clearEnv unsets every key for the test and restores it afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.ProjectPath != "project.json" {
		t.Errorf("ProjectPath = %q, want project.json", cfg.ProjectPath)
	}
	if cfg.AssetRoot != "" {
		t.Errorf("AssetRoot = %q, want empty", cfg.AssetRoot)
	}
	if !cfg.Watch {
		t.Error("Watch should default to true")
	}
	if cfg.TickInterval != 10*time.Millisecond {
		t.Errorf("TickInterval = %v, want 10ms", cfg.TickInterval)
	}
	if cfg.ReportInterval != 50*time.Millisecond {
		t.Errorf("ReportInterval = %v, want 50ms", cfg.ReportInterval)
	}
	if cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("FFmpegPath = %q", cfg.FFmpegPath)
	}
	if cfg.StreamBitrate != 128000 {
		t.Errorf("StreamBitrate = %d, want 128000", cfg.StreamBitrate)
	}
	if cfg.LogLevel != "info" || cfg.LogFile != "" {
		t.Errorf("logging = %q %q", cfg.LogLevel, cfg.LogFile)
	}
	if cfg.MQTTURL != "" || cfg.MQTTTopic != "game/situation" || cfg.MQTTClientID != "segue-editor" {
		t.Errorf("mqtt = %q %q %q", cfg.MQTTURL, cfg.MQTTTopic, cfg.MQTTClientID)
	}
	if cfg.MinioEndpoint != "" || cfg.MinioUseSSL || cfg.MinioRegion != "us-east-1" {
		t.Errorf("minio = %q %v %q", cfg.MinioEndpoint, cfg.MinioUseSSL, cfg.MinioRegion)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SEGUE_PORT", "3000")
	t.Setenv("SEGUE_PROJECT", "/work/level1.yaml")
	t.Setenv("SEGUE_WATCH", "false")
	t.Setenv("SEGUE_TICK_INTERVAL", "5ms")
	t.Setenv("SEGUE_REPORT_INTERVAL", "100")
	t.Setenv("SEGUE_STREAM_BITRATE", "64000")
	t.Setenv("SEGUE_LOG_LEVEL", "debug")
	t.Setenv("SEGUE_MQTT_URL", "tcp://broker:1883")
	t.Setenv("SEGUE_MINIO_ENDPOINT", "minio:9000")
	t.Setenv("SEGUE_MINIO_USE_SSL", "true")

	cfg := Load()

	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.ProjectPath != "/work/level1.yaml" {
		t.Errorf("ProjectPath = %q", cfg.ProjectPath)
	}
	if cfg.Watch {
		t.Error("Watch should be false")
	}
	if cfg.TickInterval != 5*time.Millisecond {
		t.Errorf("TickInterval = %v, want 5ms", cfg.TickInterval)
	}
	if cfg.ReportInterval != 100*time.Millisecond {
		t.Errorf("ReportInterval = %v, want 100ms", cfg.ReportInterval)
	}
	if cfg.StreamBitrate != 64000 {
		t.Errorf("StreamBitrate = %d", cfg.StreamBitrate)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.MQTTURL != "tcp://broker:1883" {
		t.Errorf("MQTTURL = %q", cfg.MQTTURL)
	}
	if cfg.MinioEndpoint != "minio:9000" || !cfg.MinioUseSSL {
		t.Errorf("minio = %q %v", cfg.MinioEndpoint, cfg.MinioUseSSL)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("SEGUE_PORT", "not-a-number")
	t.Setenv("SEGUE_WATCH", "maybe")
	t.Setenv("SEGUE_TICK_INTERVAL", "-3ms")
	t.Setenv("SEGUE_REPORT_INTERVAL", "soon")

	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if !cfg.Watch {
		t.Error("Watch should fall back to true")
	}
	if cfg.TickInterval != 10*time.Millisecond {
		t.Errorf("TickInterval = %v", cfg.TickInterval)
	}
	if cfg.ReportInterval != 50*time.Millisecond {
		t.Errorf("ReportInterval = %v", cfg.ReportInterval)
	}
}

func TestDotEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	env := "SEGUE_PORT=9090\nSEGUE_LOG_LEVEL=warn\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o644); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	// variables already set win over the file
	t.Setenv("SEGUE_LOG_LEVEL", "error")

	cfg := Load()
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090 from .env", cfg.Port)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want process env to win", cfg.LogLevel)
	}
}

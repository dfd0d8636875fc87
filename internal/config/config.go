package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every knob the monitor reads. Loaded once at startup.
type Config struct {
	CameraURL      string
	CameraID       string
	CameraRotation int // degrees clockwise: 0, 90, 180 or 270

	CaptureInterval time.Duration
	RequestTimeout  time.Duration

	ModelPath       string
	ModelConfigPath string
	DetectEveryN    int // run inference on every Nth frame (1 = every frame)
	DetectTimeout   time.Duration

	ClassThresholds  map[string]float64
	DefaultThreshold float64
	Debounce         time.Duration

	DataDir            string
	RetentionMaxCount  int
	RetentionMaxBytes  int64
	RetentionInterval  time.Duration
	FailureThreshold   int // consecutive capture failures before DEGRADED
	CaptureRetryLimit  int // consecutive capture failures before giving up
	DegradedMultiplier int // capture interval multiplier while DEGRADED

	KumaURL           string
	DiscordWebhookURL string
	DiscordInterval   time.Duration

	LogDirectory string
	Port         int
}

// Load reads the configuration from the environment, taking defaults for
// anything unset. A .env file in the working directory is honoured if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		CameraURL:      getEnv("CAMERA_CAPTURE_URL", ""),
		CameraID:       getEnv("CAMERA_ID", "webcam"),
		CameraRotation: getEnvAsInt("CAMERA_ROTATION", 0),

		CaptureInterval: time.Duration(getEnvAsInt("CAPTURE_INTERVAL_SECONDS", 30)) * time.Second,
		RequestTimeout:  time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 5)) * time.Second,

		ModelPath:       getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ModelConfigPath: getEnv("MODEL_CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		DetectEveryN:    getEnvAsInt("DETECT_EVERY_N", 1),
		DetectTimeout:   time.Duration(getEnvAsInt("DETECT_TIMEOUT_SECONDS", 10)) * time.Second,

		DefaultThreshold: getEnvAsFloat("DEFAULT_THRESHOLD", 0.5),
		Debounce:         time.Duration(getEnvAsInt("DEBOUNCE_SECONDS", 60)) * time.Second,

		DataDir:            getEnv("DATA_DIR", filepath.Join(".", "data")),
		RetentionMaxCount:  getEnvAsInt("RETENTION_MAX_COUNT", 1000),
		RetentionMaxBytes:  getEnvAsInt64("RETENTION_MAX_BYTES", 4) * 1024 * 1024 * 1024,
		RetentionInterval:  time.Duration(getEnvAsInt("RETENTION_INTERVAL_SECONDS", 300)) * time.Second,
		FailureThreshold:   getEnvAsInt("FAILURE_THRESHOLD", 3),
		CaptureRetryLimit:  getEnvAsInt("CAPTURE_RETRY_LIMIT", 30),
		DegradedMultiplier: getEnvAsInt("DEGRADED_MULTIPLIER", 4),

		KumaURL:           getEnv("KUMA_URL", ""),
		DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		DiscordInterval:   time.Duration(getEnvAsInt("DISCORD_INTERVAL_MINUTES", 20)) * time.Minute,

		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
		Port:         getEnvAsInt("PORT", 8080),
	}

	thresholds, err := ParseThresholds(getEnv("CLASS_THRESHOLDS", "person:0.5"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLASS_THRESHOLDS: %w", err)
	}
	cfg.ClassThresholds = thresholds

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CameraURL == "" {
		return fmt.Errorf("CAMERA_CAPTURE_URL must be set")
	}
	switch c.CameraRotation {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("CAMERA_ROTATION must be 0, 90, 180 or 270, got %d", c.CameraRotation)
	}
	if c.DetectEveryN < 1 {
		return fmt.Errorf("DETECT_EVERY_N must be at least 1, got %d", c.DetectEveryN)
	}
	if c.RetentionMaxCount < 1 {
		return fmt.Errorf("RETENTION_MAX_COUNT must be at least 1, got %d", c.RetentionMaxCount)
	}
	if c.CaptureRetryLimit < c.FailureThreshold {
		return fmt.Errorf("CAPTURE_RETRY_LIMIT (%d) must not be below FAILURE_THRESHOLD (%d)",
			c.CaptureRetryLimit, c.FailureThreshold)
	}
	if c.DefaultThreshold < 0 || c.DefaultThreshold > 1 {
		return fmt.Errorf("DEFAULT_THRESHOLD must be in [0,1], got %g", c.DefaultThreshold)
	}
	return nil
}

// ImagesDir is where artifacts are written, under the data directory.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.DataDir, "images")
}

// DatabasePath is the sqlite index file, under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "monitor.db")
}

// ParseThresholds parses a "class:threshold,class:threshold" list, e.g.
// "person:0.5,car:0.6". Whitespace around entries is ignored.
func ParseThresholds(s string) (map[string]float64, error) {
	thresholds := make(map[string]float64)
	if strings.TrimSpace(s) == "" {
		return thresholds, nil
	}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("entry %q is not class:threshold", entry)
		}
		class := strings.TrimSpace(parts[0])
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q has a non-numeric threshold", entry)
		}
		if class == "" {
			return nil, fmt.Errorf("entry %q has an empty class", entry)
		}
		if value < 0 || value > 1 {
			return nil, fmt.Errorf("threshold for %q must be in [0,1], got %g", class, value)
		}
		thresholds[class] = value
	}
	return thresholds, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

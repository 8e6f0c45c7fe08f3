package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Detector    DetectorConfig    `mapstructure:"detector"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Tracking    TrackingConfig    `mapstructure:"tracking"`
	Stream      StreamConfig      `mapstructure:"stream"`
	Redis       RedisConfig       `mapstructure:"redis"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig holds database settings.
type DBConfig struct {
	File string `mapstructure:"file"` // path to the SQLite database file
}

// DetectorConfig holds settings for the external detect-and-encode service.
type DetectorConfig struct {
	URL              string  `mapstructure:"url"`
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	DetProbThreshold float64 `mapstructure:"det_prob_threshold"`
	MinFaceSize      int     `mapstructure:"min_face_size"` // pixels, width or height
}

// RecognitionConfig holds matching thresholds.
type RecognitionConfig struct {
	MatchThreshold      float64 `mapstructure:"match_threshold"`      // combined distance cutoff, lower is stricter
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"` // minimum confidence for identification
	SearchTopK          int     `mapstructure:"search_top_k"`
}

// TrackingConfig holds face tracker lifecycle parameters.
type TrackingConfig struct {
	MaxTrackAgeSeconds float64 `mapstructure:"max_track_age_seconds"`
	LostGraceSeconds   float64 `mapstructure:"lost_grace_seconds"`
	ScoreThreshold     float64 `mapstructure:"score_threshold"`
}

// StreamConfig holds websocket streaming settings.
type StreamConfig struct {
	MaxFrameRate   int `mapstructure:"max_frame_rate"` // frames per second per session
	MaxConnections int `mapstructure:"max_connections"`
}

// RedisConfig holds optional cache settings.
type RedisConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// MQTTConfig holds settings for the MQTT event publisher.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// CORSConfig holds allowed origins for browser clients.
type CORSConfig struct {
	Origins []string `mapstructure:"origins"` // empty means allow all
}

// CleanupConfig holds recognition-log retention settings.
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// Load reads configuration from file, environment variables and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Environment variables overlay the file configuration.
	v.AutomaticEnv()
	v.SetEnvPrefix("FACESTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.data_dir", "/data")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	// DB
	v.SetDefault("db.file", "/data/facestream.db")

	// Detector
	v.SetDefault("detector.url", "http://localhost:18081")
	v.SetDefault("detector.timeout_seconds", 30)
	v.SetDefault("detector.det_prob_threshold", 0.8)
	v.SetDefault("detector.min_face_size", 100)

	// Recognition
	v.SetDefault("recognition.match_threshold", 0.6)
	v.SetDefault("recognition.confidence_threshold", 0.85)
	v.SetDefault("recognition.search_top_k", 10)

	// Tracking
	v.SetDefault("tracking.max_track_age_seconds", 6.0)
	v.SetDefault("tracking.lost_grace_seconds", 1.0)
	v.SetDefault("tracking.score_threshold", 0.3)

	// Stream
	v.SetDefault("stream.max_frame_rate", 5)
	v.SetDefault("stream.max_connections", 100)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.ttl_seconds", 3600)

	// MQTT
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "facestream-go")
	v.SetDefault("mqtt.topic", "facestream/recognitions")

	// Cleanup
	v.SetDefault("cleanup.retention_days", 30)
}

func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0750); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	if cfg.DB.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0750); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return nil
}

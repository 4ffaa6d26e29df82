// Package config loads squatcoach settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/squatcoach/internal/exercise"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SQUATCOACH_"

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Exercise ExerciseConfig `yaml:"exercise"`
	Store    StoreConfig    `yaml:"store"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	Tray     TrayConfig     `yaml:"tray"`
	Log      LogConfig      `yaml:"log"`
	WebDir   string         `yaml:"web_dir"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// HUDInterval is the period of WebSocket snapshot pushes.
	HUDInterval time.Duration `yaml:"hud_interval"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type CameraConfig struct {
	Device  int  `yaml:"device"`
	Width   int  `yaml:"width"`
	Height  int  `yaml:"height"`
	FPS     int  `yaml:"fps"`
	Mirror  bool `yaml:"mirror"`
	Quality int  `yaml:"jpeg_quality"`
	// MotionThreshold is the percentage of changed pixels that wakes the
	// detector.
	MotionThreshold float64       `yaml:"motion_threshold"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
}

type DetectorConfig struct {
	Script          string  `yaml:"script"`
	Python          string  `yaml:"python"`
	ModelComplexity int     `yaml:"model_complexity"`
	Smooth          bool    `yaml:"smooth"`
	MinDetection    float64 `yaml:"min_detection_confidence"`
	MinTracking     float64 `yaml:"min_tracking_confidence"`
}

type ExerciseConfig struct {
	Extension        float64       `yaml:"extension"`
	Flexion          float64       `yaml:"flexion"`
	DepthWarning     float64       `yaml:"depth_warning"`
	MinVisibility    float64       `yaml:"min_visibility"`
	FlashDuration    time.Duration `yaml:"flash_duration"`
	GateDepthWarning bool          `yaml:"gate_depth_warning"`
}

// Thresholds converts the section to state machine thresholds.
func (e ExerciseConfig) Thresholds() exercise.Thresholds {
	return exercise.Thresholds{
		Extension:        e.Extension,
		Flexion:          e.Flexion,
		DepthWarning:     e.DepthWarning,
		MinVisibility:    e.MinVisibility,
		FlashDuration:    e.FlashDuration,
		GateDepthWarning: e.GateDepthWarning,
	}
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type PluginsConfig struct {
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout"`
}

type TrayConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel maps the configured level name to a slog level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	t := exercise.DefaultThresholds()
	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8080,
			HUDInterval: time.Second / 15,
		},
		Camera: CameraConfig{
			Device:          0,
			Width:           640,
			Height:          480,
			FPS:             15,
			Mirror:          true,
			Quality:         80,
			MotionThreshold: 1.0,
			IdleTimeout:     2 * time.Second,
		},
		Detector: DetectorConfig{
			ModelComplexity: 1,
			Smooth:          true,
			MinDetection:    0.5,
			MinTracking:     0.5,
		},
		Exercise: ExerciseConfig{
			Extension:        t.Extension,
			Flexion:          t.Flexion,
			DepthWarning:     t.DepthWarning,
			MinVisibility:    t.MinVisibility,
			FlashDuration:    t.FlashDuration,
			GateDepthWarning: t.GateDepthWarning,
		},
		Store:   StoreConfig{Path: "~/.squatcoach/squatcoach.db"},
		MQTT:    MQTTConfig{Broker: "localhost:1883", ClientID: "squatcoach", TopicPrefix: "squatcoach"},
		Plugins: PluginsConfig{Dir: "~/.squatcoach/plugins", Timeout: 5 * time.Second},
		Tray:    TrayConfig{Enabled: true},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns ~/.squatcoach/config.yaml.
func DefaultPath() string {
	return expandHome("~/.squatcoach/config.yaml")
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. A missing file is not an error.
//
// Env vars use the prefix SQUATCOACH_ and underscore-separated paths:
//
//	SQUATCOACH_SERVER_HOST, SQUATCOACH_SERVER_PORT,
//	SQUATCOACH_CAMERA_DEVICE, SQUATCOACH_STORE_PATH,
//	SQUATCOACH_PLUGINS_DIR, SQUATCOACH_WEB_DIR,
//	SQUATCOACH_MQTT_ENABLED, SQUATCOACH_MQTT_BROKER,
//	SQUATCOACH_TRAY_ENABLED, SQUATCOACH_LOG_LEVEL
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Plugins.Dir = expandHome(cfg.Plugins.Dir)
	cfg.WebDir = expandHome(cfg.WebDir)
	cfg.Detector.Script = expandHome(cfg.Detector.Script)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv(EnvPrefix + "SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv(EnvPrefix + "CAMERA_DEVICE"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.Camera.Device = id
		}
	}
	if v := os.Getenv(EnvPrefix + "STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv(EnvPrefix + "PLUGINS_DIR"); v != "" {
		cfg.Plugins.Dir = v
	}
	if v := os.Getenv(EnvPrefix + "WEB_DIR"); v != "" {
		cfg.WebDir = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.Enabled = b
		}
	}
	if v := os.Getenv(EnvPrefix + "MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv(EnvPrefix + "TRAY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tray.Enabled = b
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.HUDInterval <= 0 {
		return fmt.Errorf("server.hud_interval must be positive")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera size must be positive")
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("camera.fps must be positive")
	}
	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		return fmt.Errorf("camera.jpeg_quality must be within [1, 100]")
	}
	if c.Detector.ModelComplexity < 0 || c.Detector.ModelComplexity > 2 {
		return fmt.Errorf("detector.model_complexity must be 0, 1 or 2")
	}
	if err := c.Exercise.Thresholds().Validate(); err != nil {
		return fmt.Errorf("exercise: %w", err)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

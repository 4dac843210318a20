package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int      `yaml:"port"`
	DataPath    string   `yaml:"data_path"`
	DBPath      string   `yaml:"db_path"`
	TempPath    string   `yaml:"temp_path"`
	CORSOrigins []string `yaml:"cors_origins"`
	MaxUploadMB int64    `yaml:"max_upload_mb"`
	RateLimit   int      `yaml:"rate_limit"` // upload requests per minute per IP, 0 disables
	LogLevel    string   `yaml:"log_level"`

	Audio  AudioConfig  `yaml:"audio"`
	Engine EngineConfig `yaml:"engine"`
	Auth   AuthConfig   `yaml:"auth"`
}

// AudioConfig holds decoding and fragmentation settings.
type AudioConfig struct {
	Decoder        string `yaml:"decoder"` // "ffmpeg" or "wav"
	FFmpegPath     string `yaml:"ffmpeg_path"`
	FragmentMillis int64  `yaml:"fragment_ms"`
	Language       string `yaml:"language"`
}

// EngineConfig selects and configures transcription engines.
type EngineConfig struct {
	Default       string `yaml:"default"` // "whisper.cpp", "openai", "whisper-cli"
	Model         string `yaml:"model"`
	Exclusive     bool   `yaml:"exclusive"`
	WhisperURL    string `yaml:"whisper_url"`
	ReloadModel   string `yaml:"reload_model"`
	OpenAIKey     string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	WhisperCLI    string `yaml:"whisper_cli"`
}

type AuthConfig struct {
	Required      bool   `yaml:"required"`
	JWTSecret     string `yaml:"jwt_secret"`
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

var (
	engines  = []string{"whisper.cpp", "openai", "whisper-cli"}
	decoders = []string{"ffmpeg", "wav"}
)

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Port:        8080,
		DataPath:    "/data",
		CORSOrigins: []string{"*"},
		MaxUploadMB: 512,
		RateLimit:   10,
		LogLevel:    "info",
		Audio: AudioConfig{
			Decoder:        "ffmpeg",
			FFmpegPath:     "ffmpeg",
			FragmentMillis: 30000,
			Language:       "ru",
		},
		Engine: EngineConfig{
			Default:    "whisper.cpp",
			Model:      "turbo",
			Exclusive:  true,
			WhisperURL: "http://localhost:8178",
			WhisperCLI: "whisper",
		},
		Auth: AuthConfig{
			AdminUsername: "admin",
			AdminPassword: "admin",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order. A .env file in the working directory is loaded
// first and never overrides variables that are already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("[config] could not load .env", "error", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" && err == nil {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = n
		}
	}
	setInt64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" && err == nil {
			n, perr := strconv.ParseInt(v, 10, 64)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" && err == nil {
			b, perr := strconv.ParseBool(v)
			if perr != nil {
				err = fmt.Errorf("%s: %w", key, perr)
				return
			}
			*dst = b
		}
	}

	setInt("PORT", &c.Port)
	c.DataPath = getEnv("DATA_PATH", c.DataPath)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.TempPath = getEnv("TEMP_PATH", c.TempPath)
	setInt64("MAX_UPLOAD_MB", &c.MaxUploadMB)
	setInt("RATE_LIMIT", &c.RateLimit)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	// CORS origins: comma-separated list or "*"
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}

	c.Audio.Decoder = getEnv("AUDIO_DECODER", c.Audio.Decoder)
	c.Audio.FFmpegPath = getEnv("FFMPEG_PATH", c.Audio.FFmpegPath)
	setInt64("FRAGMENT_MS", &c.Audio.FragmentMillis)
	c.Audio.Language = getEnv("LANGUAGE", c.Audio.Language)

	c.Engine.Default = getEnv("WHISPER_ENGINE", c.Engine.Default)
	c.Engine.Model = getEnv("WHISPER_MODEL", c.Engine.Model)
	setBool("ENGINE_EXCLUSIVE", &c.Engine.Exclusive)
	c.Engine.WhisperURL = getEnv("WHISPER_URL", c.Engine.WhisperURL)
	c.Engine.ReloadModel = getEnv("WHISPER_RELOAD_MODEL", c.Engine.ReloadModel)
	c.Engine.OpenAIKey = getEnv("OPENAI_API_KEY", c.Engine.OpenAIKey)
	c.Engine.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.Engine.OpenAIBaseURL)
	c.Engine.WhisperCLI = getEnv("WHISPER_CLI", c.Engine.WhisperCLI)

	setBool("AUTH_REQUIRED", &c.Auth.Required)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.AdminUsername = getEnv("ADMIN_USERNAME", c.Auth.AdminUsername)
	c.Auth.AdminPassword = getEnv("ADMIN_PASSWORD", c.Auth.AdminPassword)

	return err
}

// fillDerived sets paths that default relative to DataPath and generates a
// JWT secret when none is configured.
func (c *Config) fillDerived() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataPath, "transcribe.db")
	}
	if c.TempPath == "" {
		c.TempPath = filepath.Join(c.DataPath, "audio")
	}

	// JWT secret: require explicit setting or generate random
	if c.Auth.JWTSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			panic(fmt.Sprintf("generate JWT secret: %v", err))
		}
		c.Auth.JWTSecret = hex.EncodeToString(b)
		slog.Warn("[config] JWT_SECRET not set, using random secret. Sessions will not survive restarts.")
	}
}

// UploadsPath is where queued job uploads wait for the worker.
func (c *Config) UploadsPath() string {
	return filepath.Join(c.DataPath, "uploads")
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.DataPath == "" {
		return fmt.Errorf("data_path must not be empty")
	}
	if c.Audio.FragmentMillis <= 0 {
		return fmt.Errorf("audio.fragment_ms must be > 0, got %d", c.Audio.FragmentMillis)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be >= 0")
	}
	if !contains(decoders, c.Audio.Decoder) {
		return fmt.Errorf("audio.decoder must be one of %v, got %q", decoders, c.Audio.Decoder)
	}
	if !contains(engines, c.Engine.Default) {
		return fmt.Errorf("engine.default must be one of %v, got %q", engines, c.Engine.Default)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a config log level to slog; unknown values mean info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

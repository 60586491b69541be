package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration for the midas server and CLI. Every
// field comes from a MIDAS_* variable except the provider API keys, which use
// the names the provider SDKs document.
type Config struct {
	Addr      string `env:"MIDAS_ADDR" envDefault:":8080"`
	LogLevel  string `env:"MIDAS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"MIDAS_LOG_FORMAT" envDefault:"text"`

	// Chat
	Model         string  `env:"MIDAS_MODEL" envDefault:"openai/gpt-4o"`
	OpenAIAPIKey  string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string  `env:"OPENAI_BASE_URL"`
	GeminiAPIKey  string  `env:"GEMINI_API_KEY"`
	MaxTokens     int     `env:"MIDAS_MAX_TOKENS" envDefault:"300"`
	Temperature   float64 `env:"MIDAS_TEMPERATURE" envDefault:"0.7"`

	// Voice
	STTProvider      string `env:"MIDAS_STT_PROVIDER" envDefault:"none"`
	TTSProvider      string `env:"MIDAS_TTS_PROVIDER" envDefault:"none"`
	CartesiaAPIKey   string `env:"CARTESIA_API_KEY"`
	ElevenLabsAPIKey string `env:"ELEVENLABS_API_KEY"`
	Language         string `env:"MIDAS_LANGUAGE" envDefault:"en"`
	Voice            string `env:"MIDAS_VOICE"`
	Player           string `env:"MIDAS_PLAYER" envDefault:"none"`

	// Camera and overlay
	CameraURL        string        `env:"MIDAS_CAMERA_URL"`
	CameraFile       string        `env:"MIDAS_CAMERA_FILE"`
	DetectorURL      string        `env:"MIDAS_DETECTOR_URL"`
	DetectConfidence float64       `env:"MIDAS_DETECT_CONFIDENCE" envDefault:"0.25"`
	OverlayInterval  time.Duration `env:"MIDAS_OVERLAY_INTERVAL" envDefault:"500ms"`

	// Reply reveal pacing
	RevealMin time.Duration `env:"MIDAS_REVEAL_MIN" envDefault:"40ms"`
	RevealMax time.Duration `env:"MIDAS_REVEAL_MAX" envDefault:"110ms"`

	// Repair history
	HistoryDSN  string `env:"MIDAS_HISTORY_DSN"`
	DeviceID    string `env:"MIDAS_DEVICE_ID"`
	DeviceModel string `env:"MIDAS_DEVICE_MODEL"`
	UserID      string `env:"MIDAS_USER_ID"`

	// Diagnosis cache
	DiagnosisCacheDir string        `env:"MIDAS_DIAGNOSIS_CACHE_DIR"`
	DiagnosisCacheTTL time.Duration `env:"MIDAS_DIAGNOSIS_CACHE_TTL" envDefault:"24h"`

	// Frame archive
	ArchiveBucket    string `env:"MIDAS_ARCHIVE_BUCKET"`
	ArchivePrefix    string `env:"MIDAS_ARCHIVE_PREFIX" envDefault:"frames"`
	ArchiveRegion    string `env:"MIDAS_ARCHIVE_REGION" envDefault:"us-east-1"`
	ArchiveEndpoint  string `env:"MIDAS_ARCHIVE_ENDPOINT"`
	ArchiveAccessKey string `env:"MIDAS_ARCHIVE_ACCESS_KEY"`
	ArchiveSecretKey string `env:"MIDAS_ARCHIVE_SECRET_KEY"`
	ArchivePathStyle bool   `env:"MIDAS_ARCHIVE_PATH_STYLE"`

	// Live feed and browser access
	RedisAddr      string   `env:"MIDAS_REDIS_ADDR"`
	RedisPassword  string   `env:"MIDAS_REDIS_PASSWORD"`
	RedisDB        int      `env:"MIDAS_REDIS_DB" envDefault:"0"`
	AllowedOrigins []string `env:"MIDAS_ALLOWED_ORIGINS" envSeparator:","`

	// Per-client limits. Zero disables each.
	LimitRPS        float64 `env:"MIDAS_LIMIT_RPS" envDefault:"2"`
	LimitBurst      int     `env:"MIDAS_LIMIT_BURST" envDefault:"5"`
	LimitMaxStreams int     `env:"MIDAS_LIMIT_MAX_STREAMS" envDefault:"4"`

	// Operational defaults
	MaxBodyBytes        int64         `env:"MIDAS_MAX_BODY_BYTES" envDefault:"8388608"`
	ReadHeaderTimeout   time.Duration `env:"MIDAS_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ReadTimeout         time.Duration `env:"MIDAS_READ_TIMEOUT" envDefault:"30s"`
	HandlerTimeout      time.Duration `env:"MIDAS_HANDLER_TIMEOUT" envDefault:"2m"`
	ShutdownGracePeriod time.Duration `env:"MIDAS_SHUTDOWN_GRACE_PERIOD" envDefault:"30s"`

	ProfilePath string `env:"MIDAS_PROFILE"`
}

// LoadFromEnv parses the environment and validates the result.
func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.STTProvider = strings.ToLower(strings.TrimSpace(c.STTProvider))
	c.TTSProvider = strings.ToLower(strings.TrimSpace(c.TTSProvider))
	c.Player = strings.ToLower(strings.TrimSpace(c.Player))
	c.Model = strings.TrimSpace(c.Model)

	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
}

// Validate reports the first invalid setting by its variable name.
func (c Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("MIDAS_LOG_LEVEL must be one of debug|info|warn|error")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("MIDAS_LOG_FORMAT must be one of text|json")
	}

	provider, model, ok := strings.Cut(c.Model, "/")
	if !ok || provider == "" || model == "" {
		return fmt.Errorf("MIDAS_MODEL must be provider/model")
	}
	switch provider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY must be set when MIDAS_MODEL uses openai")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY must be set when MIDAS_MODEL uses gemini")
		}
	default:
		return fmt.Errorf("MIDAS_MODEL provider must be one of openai|gemini")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("MIDAS_MAX_TOKENS must be > 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("MIDAS_TEMPERATURE must be within [0, 2]")
	}

	switch c.STTProvider {
	case "none":
	case "cartesia":
		if c.CartesiaAPIKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY must be set when MIDAS_STT_PROVIDER=cartesia")
		}
	case "google":
	default:
		return fmt.Errorf("MIDAS_STT_PROVIDER must be one of cartesia|google|none")
	}
	switch c.TTSProvider {
	case "none":
	case "cartesia":
		if c.CartesiaAPIKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY must be set when MIDAS_TTS_PROVIDER=cartesia")
		}
	case "elevenlabs":
		if c.ElevenLabsAPIKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY must be set when MIDAS_TTS_PROVIDER=elevenlabs")
		}
	default:
		return fmt.Errorf("MIDAS_TTS_PROVIDER must be one of cartesia|elevenlabs|none")
	}
	switch c.Player {
	case "none", "ffplay", "timed":
	default:
		return fmt.Errorf("MIDAS_PLAYER must be one of ffplay|timed|none")
	}

	if c.CameraURL != "" && c.CameraFile != "" {
		return fmt.Errorf("MIDAS_CAMERA_URL and MIDAS_CAMERA_FILE are mutually exclusive")
	}
	if c.DetectConfidence < 0 || c.DetectConfidence > 1 {
		return fmt.Errorf("MIDAS_DETECT_CONFIDENCE must be within [0, 1]")
	}
	if c.OverlayInterval < 0 {
		return fmt.Errorf("MIDAS_OVERLAY_INTERVAL must be >= 0")
	}
	if c.RevealMin < 0 {
		return fmt.Errorf("MIDAS_REVEAL_MIN must be >= 0")
	}
	if c.RevealMax < c.RevealMin {
		return fmt.Errorf("MIDAS_REVEAL_MAX must be >= MIDAS_REVEAL_MIN")
	}
	if c.DiagnosisCacheTTL < 0 {
		return fmt.Errorf("MIDAS_DIAGNOSIS_CACHE_TTL must be >= 0")
	}
	if c.ArchiveBucket != "" && strings.TrimSpace(c.ArchiveRegion) == "" {
		return fmt.Errorf("MIDAS_ARCHIVE_REGION must not be empty when MIDAS_ARCHIVE_BUCKET is set")
	}
	if (c.ArchiveAccessKey == "") != (c.ArchiveSecretKey == "") {
		return fmt.Errorf("MIDAS_ARCHIVE_ACCESS_KEY and MIDAS_ARCHIVE_SECRET_KEY must be set together")
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("MIDAS_REDIS_DB must be >= 0")
	}

	if c.LimitRPS < 0 || c.LimitBurst < 0 || c.LimitMaxStreams < 0 {
		return fmt.Errorf("MIDAS_LIMIT_RPS, MIDAS_LIMIT_BURST and MIDAS_LIMIT_MAX_STREAMS must be >= 0")
	}
	if (c.LimitRPS > 0) != (c.LimitBurst > 0) {
		return fmt.Errorf("MIDAS_LIMIT_RPS and MIDAS_LIMIT_BURST must be set together")
	}

	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MIDAS_MAX_BODY_BYTES must be > 0")
	}
	if c.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("MIDAS_READ_HEADER_TIMEOUT must be > 0")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("MIDAS_READ_TIMEOUT must be > 0")
	}
	if c.HandlerTimeout <= 0 {
		return fmt.Errorf("MIDAS_HANDLER_TIMEOUT must be > 0")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("MIDAS_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	return nil
}

// ChatProvider returns the provider half of Model.
func (c Config) ChatProvider() string {
	provider, _, _ := strings.Cut(c.Model, "/")
	return provider
}

// ChatModel returns the model half of Model.
func (c Config) ChatModel() string {
	_, model, _ := strings.Cut(c.Model, "/")
	return model
}

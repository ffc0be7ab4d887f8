package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL"` // empty = in-memory repositories
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"16"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	AudioDir    string `env:"AUDIO_DIR" envDefault:"./audio"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	// Upload validation
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"20971520"` // 20 MB
	AllowedExts    string `env:"ALLOWED_AUDIO_EXTS" envDefault:"wav,mp3,m4a,amr"`

	// Auth
	LoginVerifyURL string        `env:"LOGIN_VERIFY_URL"` // empty = accept any code (dev)
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"720h"`

	// ASR capability
	ASRBaseURL string        `env:"ASR_BASE_URL"`
	ASRAPIKey  string        `env:"ASR_API_KEY"`
	ASRModel   string        `env:"ASR_MODEL" envDefault:"whisper-1"`
	ASRTimeout time.Duration `env:"ASR_TIMEOUT" envDefault:"120s"`

	// Summarization capability
	LLMBaseURL string        `env:"LLM_BASE_URL"`
	LLMAPIKey  string        `env:"LLM_API_KEY"`
	LLMModel   string        `env:"LLM_MODEL" envDefault:"qwen-plus"`
	LLMTimeout time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	// Transcription worker pool
	TranscribeWorkers   int           `env:"TRANSCRIBE_WORKERS" envDefault:"4"`
	TranscribeQueueSize int           `env:"TRANSCRIBE_QUEUE_SIZE" envDefault:"256"`
	RetryInterval       time.Duration `env:"TRANSCRIBE_RETRY_INTERVAL" envDefault:"5m"`

	// Optional MQTT event notifications
	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"listen-engine"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`
	MQTTTopicBase string `env:"MQTT_TOPIC_BASE" envDefault:"listen/events"`

	S3 S3Config

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config configures the optional S3 audio store backend.
type S3Config struct {
	Endpoint      string        `env:"S3_ENDPOINT"`
	Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	Bucket        string        `env:"S3_BUCKET"`
	Prefix        string        `env:"S3_PREFIX"`
	AccessKey     string        `env:"S3_ACCESS_KEY"`
	SecretKey     string        `env:"S3_SECRET_KEY"`
	PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"1h"`
}

// Enabled reports whether an S3 bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	AudioDir    string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.AudioDir != "" {
		cfg.AudioDir = overrides.AudioDir
	}

	return cfg, nil
}

// AllowedExtensions parses the configured extension allowlist.
func (c *Config) AllowedExtensions() []string {
	var out []string
	for _, e := range strings.Split(c.AllowedExts, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level" envconfig:"LOG_LEVEL" default:"info"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Server    ServerConfig    `yaml:"server"`
	Browser   BrowserConfig   `yaml:"browser"`
	Anime     AnimeConfig     `yaml:"anime"`
	TikTok    TikTokConfig    `yaml:"tiktok"`
	Download  DownloadConfig  `yaml:"download"`
	Watermark WatermarkConfig `yaml:"watermark"`
	Storage   StorageConfig   `yaml:"storage"`
	State     StateConfig     `yaml:"state"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// TelegramConfig holds Bot API configuration.
type TelegramConfig struct {
	Token       string        `yaml:"token" envconfig:"BOT_TOKEN"`
	APIEndpoint string        `yaml:"api_endpoint" envconfig:"TELEGRAM_API_ENDPOINT"`
	PollTimeout int           `yaml:"poll_timeout" envconfig:"TELEGRAM_POLL_TIMEOUT" default:"60"`
	AdminIDs    []int64       `yaml:"admin_ids" envconfig:"ADMIN_IDS"`
	Debug       bool          `yaml:"debug" envconfig:"TELEGRAM_DEBUG"`
	HandlerWait time.Duration `yaml:"handler_timeout" envconfig:"TELEGRAM_HANDLER_TIMEOUT" default:"3m"`
}

// IsAdmin reports whether the user is in the admin allow-list.
func (c *TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ServerConfig holds the health-check HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"PORT" default:"3000"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	// StatusToken, when set, is required as a bearer token on /status and /metrics.
	StatusToken  string        `yaml:"status_token" envconfig:"STATUS_TOKEN"`
}

// BrowserConfig holds headless browser configuration.
type BrowserConfig struct {
	BrowserlessToken string        `yaml:"browserless_token" envconfig:"BROWSERLESS_TOKEN"`
	BrowserlessURL   string        `yaml:"browserless_url" envconfig:"BROWSERLESS_URL" default:"wss://chrome.browserless.io"`
	ExecutablePath   string        `yaml:"executable_path" envconfig:"PUPPETEER_EXECUTABLE_PATH"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"BROWSER_TIMEOUT" default:"45s"`
	UserAgent        string        `yaml:"user_agent" envconfig:"BROWSER_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"`
}

// Remote reports whether pages are rendered by browserless instead of a local Chrome.
func (c *BrowserConfig) Remote() bool {
	return c.BrowserlessToken != ""
}

// RemoteURL returns the browserless websocket URL with the token attached.
func (c *BrowserConfig) RemoteURL() string {
	if c.BrowserlessToken == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(c.BrowserlessURL, "?") {
		sep = "&"
	}
	return c.BrowserlessURL + sep + "token=" + url.QueryEscape(c.BrowserlessToken)
}

// AnimeConfig holds anime source configuration.
type AnimeConfig struct {
	SiteURL    string        `yaml:"site_url" envconfig:"ANIME_SITE_URL" default:"https://anitaku.to"`
	APIURL     string        `yaml:"api_url" envconfig:"ANIME_API_URL" default:"https://anime-api.koyeb.app"`
	APITimeout time.Duration `yaml:"api_timeout" envconfig:"ANIME_API_TIMEOUT" default:"20s"`
	PageSize   int           `yaml:"page_size" envconfig:"ANIME_PAGE_SIZE" default:"5"`
	Attempts   int           `yaml:"attempts" envconfig:"ANIME_SCRAPE_ATTEMPTS" default:"3"`
}

// TikTokConfig holds TikTok downloader configuration.
type TikTokConfig struct {
	TikWMURL       string        `yaml:"tikwm_url" envconfig:"TIKWM_API_URL" default:"https://www.tikwm.com"`
	FallbackAPIURL string        `yaml:"fallback_api_url" envconfig:"TIKTOK_FALLBACK_API_URL" default:"https://api.tiklydown.eu.org"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"TIKTOK_TIMEOUT" default:"30s"`
	BreakerTimeout time.Duration `yaml:"breaker_timeout" envconfig:"TIKTOK_BREAKER_TIMEOUT" default:"60s"`
}

// DownloadConfig holds media download configuration.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"2m"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"DOWNLOAD_READ_TIMEOUT" default:"60s"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"2s"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"20s"`
	UserAgent     string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
	Referer       string        `yaml:"referer" envconfig:"DOWNLOAD_REFERER" default:"https://www.tiktok.com/"`
}

// WatermarkConfig holds ffmpeg and watermark configuration.
type WatermarkConfig struct {
	FFmpegPath    string `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath   string `yaml:"ffprobe_path" envconfig:"FFPROBE_PATH" default:"ffprobe"`
	FontDir       string `yaml:"font_dir" envconfig:"WATERMARK_FONT_DIR" default:"/usr/share/fonts/truetype/dejavu"`
	MaxConcurrent int    `yaml:"max_concurrent" envconfig:"WATERMARK_MAX_CONCURRENT" default:"2"`
}

// StorageConfig holds filesystem storage configuration.
type StorageConfig struct {
	TempPath    string `yaml:"temp_path" envconfig:"STORAGE_TEMP_PATH" default:"/tmp/mediabot"`
	HistoryPath string `yaml:"history_path" envconfig:"HISTORY_DB_PATH" default:"/tmp/mediabot/history.db"`
	MaxFileSize int64  `yaml:"max_file_size" envconfig:"MAX_FILE_SIZE" default:"52428800"` // 50MB bot upload limit
}

// StateConfig holds TTLs for in-memory user state and caches.
type StateConfig struct {
	TTL           time.Duration `yaml:"ttl" envconfig:"STATE_TTL" default:"30m"`
	CacheTTL      time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" default:"10m"`
	JobTTL        time.Duration `yaml:"job_ttl" envconfig:"JOB_TTL" default:"1h"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"SWEEP_INTERVAL" default:"1m"`
}

// WorkerConfig holds worker pool configuration.
type WorkerConfig struct {
	Count         int           `yaml:"count" envconfig:"WORKER_COUNT" default:"2"`
	PollInterval  time.Duration `yaml:"poll_interval" envconfig:"WORKER_POLL_INTERVAL" default:"1s"`
	MaxRetries    int           `yaml:"max_retries" envconfig:"WORKER_MAX_RETRIES" default:"2"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"WORKER_RETRY_DELAY" default:"10s"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"WORKER_MAX_RETRY_DELAY" default:"2m"`
}

// Load reads configuration from a .env file, an optional YAML file and
// environment variables. Environment variables override file values.
func Load(configPath string) (*Config, error) {
	// A missing .env is normal in containers.
	_ = godotenv.Load(".env")

	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.State.TTL <= 0 || c.State.CacheTTL <= 0 {
		return fmt.Errorf("STATE_TTL and CACHE_TTL must be positive")
	}
	if c.Storage.TempPath == "" {
		return fmt.Errorf("STORAGE_TEMP_PATH is required")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
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

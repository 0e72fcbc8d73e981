// Package config builds the single run configuration from defaults, an
// optional .env file, the process environment and the feeds YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"

	HistoryFile     = "file"
	HistoryPostgres = "postgres"

	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultOpenAIModel = "gpt-4o-mini"
)

// DefaultFeeds are used when neither FEEDS nor the feeds file lists any source.
var DefaultFeeds = []string{
	"https://techcrunch.com/category/artificial-intelligence/feed/",
	"https://venturebeat.com/category/ai/feed/",
}

type Config struct {
	// Telegram settings
	TelegramToken     string
	TelegramChannelID string
	ChatMaxRunes      int // hard ceiling of the chat sink in UTF-16 units (4096 for Telegram)
	ChatSafetyMargin  int // units kept free below the ceiling

	// Blogger settings
	BloggerID        string
	BloggerTokenJSON string
	BlogLabels       []string

	// Summarization backend
	SummaryBackend       string // gemini | openai
	GeminiAPIKey         string
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	Model                string // empty = backend default
	SummaryPoints        int
	MinImpactLines       int
	FallbackSummaryRunes int

	// RSS settings
	FeedsConfigPath string
	Feeds           []string
	PerSourceLimit  int
	ShuffleSources  bool
	UserAgent       string
	// fetch the article page when a feed entry has no description
	FetchArticleText bool

	// History settings
	HistoryBackend  string // file | postgres
	HistoryFilePath string
	HistoryCapacity int
	DatabaseURL     string

	// Timeouts
	FeedTimeout    time.Duration
	BackendTimeout time.Duration
	SinkTimeout    time.Duration

	LogLevel string
}

// Default returns the configuration with every default applied and no
// credentials.
func Default() *Config {
	return &Config{
		ChatMaxRunes:         4096,
		ChatSafetyMargin:     96,
		BlogLabels:           []string{"AI News", "Gemini Analysis"},
		SummaryBackend:       BackendGemini,
		SummaryPoints:        5,
		MinImpactLines:       3,
		FallbackSummaryRunes: 280,
		FeedsConfigPath:      "configs/feeds.yaml",
		PerSourceLimit:       2,
		FetchArticleText:     true,
		UserAgent:            "impactdigest/1.0 (+https://github.com/deusflow/impactdigest)",
		HistoryBackend:       HistoryFile,
		HistoryFilePath:      "history.json",
		HistoryCapacity:      500,
		FeedTimeout:          20 * time.Second,
		BackendTimeout:       30 * time.Second,
		SinkTimeout:          30 * time.Second,
		LogLevel:             "info",
	}
}

// Load reads .env (if present) and the environment, then the feeds list.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Default()
	cfg.applyEnv(os.Getenv)

	if len(cfg.Feeds) == 0 {
		feeds, err := LoadFeeds(cfg.FeedsConfigPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load feeds: %w", err)
		}
		cfg.Feeds = feeds
	}
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = append([]string(nil), DefaultFeeds...)
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	positive := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if val, err := strconv.Atoi(v); err == nil && val > 0 {
				*dst = val
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				*dst = d
			}
		}
	}

	str("TELEGRAM_BOT_TOKEN", &c.TelegramToken)
	str("TELEGRAM_CHANNEL_ID", &c.TelegramChannelID)
	positive("CHAT_MAX_RUNES", &c.ChatMaxRunes)
	if v := getenv("CHAT_SAFETY_MARGIN"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val >= 0 {
			c.ChatSafetyMargin = val
		}
	}

	str("BLOGGER_ID", &c.BloggerID)
	str("BLOGGER_TOKEN_JSON", &c.BloggerTokenJSON)
	if v := getenv("BLOG_LABELS"); v != "" {
		c.BlogLabels = splitList(v)
	}

	str("SUMMARY_BACKEND", &c.SummaryBackend)
	c.SummaryBackend = strings.ToLower(c.SummaryBackend)
	str("GEMINI_API_KEY", &c.GeminiAPIKey)
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)
	str("OPENAI_BASE_URL", &c.OpenAIBaseURL)
	str("AI_MODEL", &c.Model)
	positive("SUMMARY_POINTS", &c.SummaryPoints)
	positive("MIN_IMPACT_LINES", &c.MinImpactLines)
	positive("FALLBACK_SUMMARY_RUNES", &c.FallbackSummaryRunes)

	str("FEEDS_CONFIG_PATH", &c.FeedsConfigPath)
	if v := getenv("FEEDS"); v != "" {
		c.Feeds = splitList(v)
	}
	positive("PER_SOURCE_LIMIT", &c.PerSourceLimit)
	if getenv("SHUFFLE_SOURCES") == "true" {
		c.ShuffleSources = true
	}
	str("USER_AGENT", &c.UserAgent)
	if v := strings.ToLower(getenv("FETCH_ARTICLE_TEXT")); v != "" {
		c.FetchArticleText = v == "true" || v == "1"
	}

	str("HISTORY_BACKEND", &c.HistoryBackend)
	c.HistoryBackend = strings.ToLower(c.HistoryBackend)
	str("HISTORY_FILE_PATH", &c.HistoryFilePath)
	positive("HISTORY_CAPACITY", &c.HistoryCapacity)
	str("DATABASE_URL", &c.DatabaseURL)

	duration("FEED_TIMEOUT", &c.FeedTimeout)
	duration("BACKEND_TIMEOUT", &c.BackendTimeout)
	duration("SINK_TIMEOUT", &c.SinkTimeout)

	str("LOG_LEVEL", &c.LogLevel)
	if getenv("DEBUG") == "true" {
		c.LogLevel = "debug"
	}
}

// ModelOrDefault returns the configured model or the backend's default.
func (c *Config) ModelOrDefault() string {
	if c.Model != "" {
		return c.Model
	}
	return c.DefaultModel()
}

// DefaultModel is the fixed fallback model of the selected backend.
func (c *Config) DefaultModel() string {
	if c.SummaryBackend == BackendOpenAI {
		return DefaultOpenAIModel
	}
	return DefaultGeminiModel
}

// ChatLimit is the rune budget for one chat message.
func (c *Config) ChatLimit() int {
	limit := c.ChatMaxRunes - c.ChatSafetyMargin
	if limit <= 0 {
		return c.ChatMaxRunes
	}
	return limit
}

func (c *Config) Validate() error {
	var errs []error
	if c.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.TelegramChannelID == "" {
		errs = append(errs, errors.New("TELEGRAM_CHANNEL_ID is required"))
	}
	if c.BloggerID == "" {
		errs = append(errs, errors.New("BLOGGER_ID is required"))
	}
	if c.BloggerTokenJSON == "" {
		errs = append(errs, errors.New("BLOGGER_TOKEN_JSON is required"))
	}
	switch c.SummaryBackend {
	case BackendGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required"))
		}
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("SUMMARY_BACKEND must be '%s' or '%s'", BackendGemini, BackendOpenAI))
	}
	switch c.HistoryBackend {
	case HistoryFile:
		if c.HistoryFilePath == "" {
			errs = append(errs, errors.New("HISTORY_FILE_PATH is required"))
		}
	case HistoryPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres history"))
		}
	default:
		errs = append(errs, fmt.Errorf("HISTORY_BACKEND must be '%s' or '%s'", HistoryFile, HistoryPostgres))
	}
	if c.ChatMaxRunes <= 0 {
		errs = append(errs, errors.New("CHAT_MAX_RUNES must be positive"))
	}
	return errors.Join(errs...)
}

// FeedsConfig is YAML config structure
// feeds:
//   - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads RSS feeds list from YAML file
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	var feeds []string
	for _, u := range cfg.Feeds {
		if u = strings.TrimSpace(u); u != "" {
			feeds = append(feeds, u)
		}
	}
	return feeds, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

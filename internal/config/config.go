package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Default style suffix appended to every image prompt. The admin panel can
// replace it at runtime through the prompt manager.
const DefaultStylePrompt = "Мрачный кинематографичный реализм во вселенной Пиратов карибского моря; " +
	"деревянные корабли с парусами и пушками; пираты; морская дымка, контраст, рим-свет; " +
	"палитра: сталь/свинец воды, изумруд/бирюза, мох, мокрое дерево, патина бронзы, янтарные блики; " +
	"фактуры: соль на канатах, камень, рваная парусина, брызги; широкий план, масштаб, без крупных лиц"

// Config holds the service configuration.
// Environment variables are parsed with the SHOWCANVAS_ prefix, for example
// SHOWCANVAS_HTTP_PORT or SHOWCANVAS_GEMINI_API_KEY.
type Config struct {
	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Persistence
	DataFile       string `envconfig:"DATA_FILE" default:"showcanvas_data.json"`
	MessageLogPath string `envconfig:"MESSAGE_LOG_PATH" default:"messages.db"`
	StyleFile      string `envconfig:"STYLE_FILE" default:"current_base_prompt.txt"`
	OutputDir      string `envconfig:"OUTPUT_DIR" default:"generated_images"`

	// Image output frame
	ImageWidth  int `envconfig:"IMAGE_WIDTH" default:"1920"`
	ImageHeight int `envconfig:"IMAGE_HEIGHT" default:"1280"`

	// Prompt budgets (runes)
	MixedTextLimit  int `envconfig:"MIXED_TEXT_LIMIT" default:"100"`
	FullPromptLimit int `envconfig:"FULL_PROMPT_LIMIT" default:"500"`

	// Batch partition policy
	BatchSplitThreshold int `envconfig:"BATCH_SPLIT_THRESHOLD" default:"10"`
	BatchSplitCount     int `envconfig:"BATCH_SPLIT_COUNT" default:"10"`

	// Quota limits for the image API (free-tier estimates)
	RequestsPerMinute int `envconfig:"REQUESTS_PER_MINUTE" default:"15"`
	RequestsPerDay    int `envconfig:"REQUESTS_PER_DAY" default:"1500"`
	TokensPerMinute   int `envconfig:"TOKENS_PER_MINUTE" default:"32000"`

	// Image client retry policy
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3"`
	BaseRetryDelay time.Duration `envconfig:"BASE_RETRY_DELAY" default:"1s"`
	HTTPTimeout    time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`

	// Pipeline cadence
	CollectInterval    time.Duration `envconfig:"COLLECT_INTERVAL" default:"5s"`
	InterBatchPause    time.Duration `envconfig:"INTER_BATCH_PAUSE" default:"500ms"`
	SweepAge           time.Duration `envconfig:"SWEEP_AGE" default:"1h"`
	CheckpointInterval time.Duration `envconfig:"CHECKPOINT_INTERVAL" default:"2s"`

	// Gemini image generation
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash-image"`
	GeminiURL    string `envconfig:"GEMINI_URL" default:""`

	// LLM used for mixed-text summarization (OpenAI-compatible chat API)
	LLMAPIKey  string `envconfig:"LLM_API_KEY" default:""`
	LLMBaseURL string `envconfig:"LLM_BASE_URL" default:"https://api.openai.com/v1"`
	LLMModel   string `envconfig:"LLM_MODEL" default:"gpt-3.5-turbo"`

	// Audience locale used in summarization prompts
	Locale string `envconfig:"LOCALE" default:"ru"`

	// Telegram delivery (0 disables announcements)
	BotToken       string `envconfig:"BOT_TOKEN" default:""`
	AnnounceChatID int64  `envconfig:"ANNOUNCE_CHAT_ID" default:"0"`
}

// ResolveDefaults derives values that depend on other fields.
func (c *Config) ResolveDefaults() error {
	if c.GeminiURL == "" {
		c.GeminiURL = fmt.Sprintf(
			"https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent",
			c.GeminiModel,
		)
	}
	if c.BatchSplitThreshold < 1 || c.BatchSplitCount < 1 {
		return fmt.Errorf("batch split threshold and count must be positive (got %d, %d)",
			c.BatchSplitThreshold, c.BatchSplitCount)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	return nil
}

// New creates a Config by parsing SHOWCANVAS_-prefixed environment variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("SHOWCANVAS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting returns a config with defaults suitable for unit tests:
// temp-friendly paths and no external credentials.
func NewForTesting() *Config {
	cfg := &Config{
		HTTPPort:            8080,
		DataFile:            "showcanvas_data.json",
		MessageLogPath:      ":memory:",
		StyleFile:           "current_base_prompt.txt",
		OutputDir:           "generated_images",
		ImageWidth:          1920,
		ImageHeight:         1280,
		MixedTextLimit:      100,
		FullPromptLimit:     500,
		BatchSplitThreshold: 10,
		BatchSplitCount:     10,
		RequestsPerMinute:   15,
		RequestsPerDay:      1500,
		TokensPerMinute:     32000,
		MaxRetries:          3,
		BaseRetryDelay:      time.Second,
		HTTPTimeout:         30 * time.Second,
		CollectInterval:     5 * time.Second,
		InterBatchPause:     500 * time.Millisecond,
		SweepAge:            time.Hour,
		CheckpointInterval:  2 * time.Second,
		GeminiModel:         "gemini-2.5-flash-image",
		LLMBaseURL:          "https://api.openai.com/v1",
		LLMModel:            "gpt-3.5-turbo",
		Locale:              "ru",
	}
	_ = cfg.ResolveDefaults()
	return cfg
}

package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      Log      `yaml:"log"`
	Redis    Redis    `yaml:"redis"`
	Server   Server   `yaml:"server"`
	OpenAI   OpenAI   `yaml:"openai"`
	AntiBan  AntiBan  `yaml:"anti_ban"`
	Context  Context  `yaml:"context"`
	Language Language `yaml:"language"`
}

type OpenAI struct {
	Reply   ModelConfig `yaml:"reply" validate:"required"`
	Summary ModelConfig `yaml:"summary" validate:"required"`
}

type ModelConfig struct {
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://openrouter.ai/api/v1" validate:"required"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// OpenAI model
	Model string `yaml:"model" example:"gpt-4o-mini" validate:"required"`
}

type AntiBan struct {
	// Master toggle, opt-out handling is honored even when disabled
	Disabled bool `yaml:"disabled"`
	// Max distinct new identities served per hour
	MaxNewUsersPerHour int `yaml:"max_new_users_per_hour" example:"10"`
	// Human pacing delay bounds, seconds
	MinReplyDelay float64 `yaml:"min_reply_delay" example:"2.0"`
	MaxReplyDelay float64 `yaml:"max_reply_delay" example:"5.0"`
	// Min interval between any two outbound messages, seconds
	GlobalRateLimit float64 `yaml:"global_rate_limit" example:"1.0"`
	// Warm-up schedule: daily message cap per account-age tier (week 1..4+)
	DailyMessageLimits []int `yaml:"daily_message_limits"`
	// Night window during which pacing delays are stretched
	NightStartHour int `yaml:"night_start_hour" example:"22"`
	NightEndHour   int `yaml:"night_end_hour" example:"6"`
	// Per-identity admission lock, suppresses concurrent duplicate checks
	AdmissionLock bool `yaml:"admission_lock"`
}

type Context struct {
	// Hard context budget for one model call
	MaxContextTokens int `yaml:"max_context_tokens" example:"3000"`
	// Token count above which history is compacted
	SummaryTriggerTokens int `yaml:"summary_trigger_tokens" example:"2500"`
	// Target size of a generated summary
	SummaryTargetTokens int `yaml:"summary_target_tokens" example:"800"`
	// Number of most recent turns kept verbatim
	KeepRecentMessages int `yaml:"keep_recent_messages" example:"4"`
}

type Language struct {
	// Disable to always use the default language
	DetectionEnabled bool `yaml:"detection_enabled"`
	// Language used on short or ambiguous input
	Default string `yaml:"default" example:"english"`
	// Languages the summarizer has prompts for
	Supported []string `yaml:"supported"`
}

type Server struct {
	// HTTP listen address
	Addr string `yaml:"addr" example:":8080"`
}

type Log struct {
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type Redis struct {
	// Redis address
	Addr string `yaml:"addr" example:"localhost:6379" validate:"required"`
	// Redis password
	Pass string `yaml:"pass"`
	// Redis database index
	DB int `yaml:"db"`
}

func (a AntiBan) MinDelay() time.Duration {
	return time.Duration(a.MinReplyDelay * float64(time.Second))
}

func (a AntiBan) MaxDelay() time.Duration {
	return time.Duration(a.MaxReplyDelay * float64(time.Second))
}

func (a AntiBan) GlobalMinInterval() time.Duration {
	return time.Duration(a.GlobalRateLimit * float64(time.Second))
}

func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	result.ApplyDefaults()

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	if err := result.Check(); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Config) ApplyDefaults() {
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}

	if c.AntiBan.MaxNewUsersPerHour == 0 {
		c.AntiBan.MaxNewUsersPerHour = 10
	}
	if c.AntiBan.MinReplyDelay == 0 {
		c.AntiBan.MinReplyDelay = 2.0
	}
	if c.AntiBan.MaxReplyDelay == 0 {
		c.AntiBan.MaxReplyDelay = 5.0
	}
	if c.AntiBan.GlobalRateLimit == 0 {
		c.AntiBan.GlobalRateLimit = 1.0
	}
	if len(c.AntiBan.DailyMessageLimits) == 0 {
		c.AntiBan.DailyMessageLimits = []int{20, 50, 100, 200}
	}
	if c.AntiBan.NightStartHour == 0 {
		c.AntiBan.NightStartHour = 22
	}
	if c.AntiBan.NightEndHour == 0 {
		c.AntiBan.NightEndHour = 6
	}

	if c.Context.MaxContextTokens == 0 {
		c.Context.MaxContextTokens = 3000
	}
	if c.Context.SummaryTriggerTokens == 0 {
		c.Context.SummaryTriggerTokens = 2500
	}
	if c.Context.SummaryTargetTokens == 0 {
		c.Context.SummaryTargetTokens = 800
	}
	if c.Context.KeepRecentMessages == 0 {
		c.Context.KeepRecentMessages = 4
	}

	if c.Language.Default == "" {
		c.Language.Default = "english"
	}
	if len(c.Language.Supported) == 0 {
		c.Language.Supported = []string{"english", "romanian"}
	}
}

func (c *Config) Check() error {
	if c.Context.MaxContextTokens < 0 || c.Context.SummaryTriggerTokens < 0 ||
		c.Context.SummaryTargetTokens < 0 {
		return oops.Errorf("token budgets must be positive")
	}

	if c.Context.SummaryTriggerTokens > c.Context.MaxContextTokens {
		return oops.Errorf("summary_trigger_tokens (%d) exceeds max_context_tokens (%d)",
			c.Context.SummaryTriggerTokens, c.Context.MaxContextTokens)
	}

	if c.Context.KeepRecentMessages < 1 {
		return oops.Errorf("keep_recent_messages must be at least 1")
	}

	if c.AntiBan.MinReplyDelay < 0 || c.AntiBan.MaxReplyDelay < c.AntiBan.MinReplyDelay {
		return oops.Errorf("invalid reply delay bounds: min=%.2f max=%.2f",
			c.AntiBan.MinReplyDelay, c.AntiBan.MaxReplyDelay)
	}

	if len(c.AntiBan.DailyMessageLimits) != 4 {
		return oops.Errorf("daily_message_limits must have exactly 4 tiers, got %d",
			len(c.AntiBan.DailyMessageLimits))
	}

	for i, limit := range c.AntiBan.DailyMessageLimits {
		if limit <= 0 {
			return oops.Errorf("daily_message_limits[%d] must be positive, got %d", i, limit)
		}
	}

	return nil
}

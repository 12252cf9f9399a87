// Package config handles application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"statusbot/internal/reltime"
)

// Channel search backends.
const (
	SearchAPI  = "api"
	SearchFeed = "feed"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,notEmpty"`
	DatabasePath     string `env:"DATABASE_PATH" envDefault:"./data/statusbot.db"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	AllowedUsers     []int64

	// MaxDuplicateInterval is the window in which Twitter rejects an
	// identical status from the same account.
	MaxDuplicateInterval reltime.Offset `env:"MAX_DUPLICATE_INTERVAL" envDefault:"+7 days"`

	TwitterAPIURL      string `env:"TWITTER_API_URL" envDefault:"https://api.twitter.com" validate:"url"`
	TwitterWebURL      string `env:"TWITTER_WEB_URL" envDefault:"https://twitter.com" validate:"url"`
	TwitterBearerToken string `env:"TWITTER_BEARER_TOKEN"`

	ChannelSearch  string        `env:"CHANNEL_SEARCH" envDefault:"api" validate:"oneof=api feed"`
	ChannelFeedURL string        `env:"CHANNEL_FEED_URL" validate:"required_if=ChannelSearch feed"`
	SearchTimeout  time.Duration `env:"SEARCH_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	SchedulerTick  time.Duration `env:"SCHEDULER_TICK" envDefault:"1m" validate:"gt=0"`

	MetricsAddr string `env:"METRICS_ADDR"`
}

// rawEnv holds values that need parsing beyond what struct tags express.
type rawEnv struct {
	AllowedUsers []string `env:"ALLOWED_USERS" envSeparator:","`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// intervalReference is the fixed instant offsets are measured against when
// checking their direction.
var intervalReference = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	var raw rawEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	for _, s := range raw.AllowedUsers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		uid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
		}
		cfg.AllowedUsers = append(cfg.AllowedUsers, uid)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints that parsing alone does not enforce.
func (c *Config) Validate() error {
	if c.MaxDuplicateInterval.IsZero() {
		return errors.New("MAX_DUPLICATE_INTERVAL is required")
	}
	if !c.MaxDuplicateInterval.From(intervalReference).After(intervalReference) {
		return fmt.Errorf("MAX_DUPLICATE_INTERVAL %q must reach into the future", c.MaxDuplicateInterval.String())
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

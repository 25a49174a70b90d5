package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const defaultConfigFile = "config.yaml"

// envPrefix scopes environment overrides: UEWATCH_CHANNEL sets channel,
// UEWATCH_TELEGRAM__BOT_TOKEN sets telegram.bot_token (double underscore
// separates nesting levels, single underscores stay part of the key).
const envPrefix = "UEWATCH_"

type Config struct {
	Channel       string        `koanf:"channel" validate:"required"`
	CheckInterval time.Duration `koanf:"check_interval" validate:"gte=1s"`
	FetchLimit    int           `koanf:"fetch_limit" validate:"min=1,max=100"`

	Log      LogConfig      `koanf:"log"`
	Telegram TelegramConfig `koanf:"telegram"`
	Feed     FeedConfig     `koanf:"feed"`
	Download DownloadConfig `koanf:"download"`
	Seen     SeenConfig     `koanf:"seen"`
	Notify   NotifyConfig   `koanf:"notify"`
	Storage  StorageConfig  `koanf:"storage"`
	Server   ServerConfig   `koanf:"server"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

// TelegramConfig configures the Bot API source. When the token is empty the
// watcher falls back to the RSS feed source.
type TelegramConfig struct {
	BotToken string `koanf:"bot_token"`
}

type FeedConfig struct {
	URL string `koanf:"url" validate:"omitempty,url"`
}

type DownloadConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
}

type SeenConfig struct {
	Backend   string `koanf:"backend" validate:"oneof=memory redis"`
	RedisAddr string `koanf:"redis_addr"`
	// Capacity bounds the in-memory seen set; 0 means never evict.
	// Only meaningful with the Telegram source, whose ids grow
	// monotonically; RSS ids are hashes, so a bounded set there can evict
	// an id that is still inside the feed window and re-notify it.
	Capacity int `koanf:"capacity" validate:"min=0"`
}

type NotifyConfig struct {
	TelegramToken   string   `koanf:"telegram_token"`
	TelegramChatIDs []string `koanf:"telegram_chat_ids"`
	KafkaBrokers    []string `koanf:"kafka_brokers"`
	KafkaTopic      string   `koanf:"kafka_topic"`
}

type StorageConfig struct {
	DSN string `koanf:"dsn"`
}

type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// Load reads the yaml config file, applies UEWATCH_* environment overrides
// and validates the result. An empty path means the default config.yaml,
// which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	optional := path == ""
	if optional {
		path = defaultConfigFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !optional || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		CheckInterval: 5 * time.Minute,
		FetchLimit:    20,
		Log:           LogConfig{Level: "info", Format: "console"},
		Seen:          SeenConfig{Backend: "memory"},
		Notify:        NotifyConfig{KafkaTopic: "uewatch.updates"},
		Server:        ServerConfig{Addr: ":8080"},
	}
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}

	if cfg.Telegram.BotToken == "" && cfg.Feed.URL == "" {
		return errors.New("config invalid: either telegram.bot_token or feed.url must be set")
	}
	if cfg.Download.Enabled && cfg.Download.Dir == "" {
		return errors.New("config invalid: download.enabled requires download.dir")
	}
	if cfg.Seen.Backend == "redis" && cfg.Seen.RedisAddr == "" {
		return errors.New("config invalid: seen.backend=redis requires seen.redis_addr")
	}

	return nil
}

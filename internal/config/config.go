package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the filesentry daemon
type Config struct {
	Server struct {
		Port         int           `env:"PORT" envDefault:"8080" validate:"min=1,max=65535"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
		BodyLimit    int           `env:"BODY_LIMIT" envDefault:"65536" validate:"min=1"`
	}

	Storage struct {
		DataDir   string `env:"DATA_DIR" envDefault:"./data"`
		RulesFile string `env:"RULES_FILE"`
	}

	Watch struct {
		Dir      string        `env:"WATCH_DIR" envDefault:"."`
		Ignore   []string      `env:"WATCH_IGNORE" envSeparator:"," envDefault:".git,node_modules,.DS_Store"`
		Debounce time.Duration `env:"DEBOUNCE" envDefault:"300ms"`
	}

	Engine struct {
		RecentMatchLimit int `env:"RECENT_MATCH_LIMIT" envDefault:"100" validate:"min=1,max=10000"`
	}

	LLM struct {
		Endpoint   string        `env:"LLM_ENDPOINT" envDefault:"http://127.0.0.1:11434" validate:"required,url"`
		Model      string        `env:"LLM_MODEL" envDefault:"llama3.1" validate:"required"`
		Timeout    time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
		MaxRetries int           `env:"LLM_MAX_RETRIES" envDefault:"2" validate:"min=0,max=10"`
	}

	Cache struct {
		CompileCacheSize int `env:"COMPILE_CACHE_SIZE" envDefault:"256" validate:"min=1"`
	}

	Notify struct {
		WebhookURL string        `env:"NOTIFY_WEBHOOK_URL" validate:"omitempty,url"`
		Timeout    time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	}

	Security struct {
		CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:"," validate:"cors_origins"`
		RateLimitRPS   int      `env:"RATE_LIMIT_RPS" envDefault:"20" validate:"min=1"`
		RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"40" validate:"min=1"`
	}

	Maintenance struct {
		Schedule string `env:"MAINTENANCE_SCHEDULE" envDefault:"@every 1m" validate:"cron_schedule"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
		Format string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`
	}
}

// Load loads configuration from environment variables and .env files
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration using struct tags
func Validate(cfg *Config) error {
	validator := validator.New()

	if err := validator.RegisterValidation("cors_origins", validateCORSOrigins); err != nil {
		return fmt.Errorf("failed to register cors_origins validation: %w", err)
	}
	if err := validator.RegisterValidation("cron_schedule", validateCronSchedule); err != nil {
		return fmt.Errorf("failed to register cron_schedule validation: %w", err)
	}

	if err := validator.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCORSOrigins validates CORS origins format
func validateCORSOrigins(fl validator.FieldLevel) bool {
	origins := fl.Field().Interface().([]string)
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return false
		}
	}
	return true
}

// validateCronSchedule accepts anything the maintenance scheduler can parse
func validateCronSchedule(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}

// validateCustomRules performs additional validation beyond struct tags
func validateCustomRules(cfg *Config) error {
	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}
	if cfg.Watch.Dir == "" {
		return fmt.Errorf("watch directory cannot be empty")
	}

	if cfg.Server.ReadTimeout < time.Millisecond {
		return fmt.Errorf("read timeout must be at least 1ms")
	}
	if cfg.Server.WriteTimeout < time.Millisecond {
		return fmt.Errorf("write timeout must be at least 1ms")
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("debounce cannot be negative")
	}
	if cfg.LLM.Timeout < time.Second {
		return fmt.Errorf("LLM timeout must be at least 1 second")
	}
	if cfg.Notify.Timeout < time.Millisecond {
		return fmt.Errorf("notify timeout must be at least 1ms")
	}

	if u, err := url.Parse(cfg.LLM.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("LLM endpoint must be an http(s) URL")
	}

	return nil
}

// RulesPath is the rule file location, defaulting to rules.json in the data directory
func (cfg *Config) RulesPath() string {
	if cfg.Storage.RulesFile != "" {
		return cfg.Storage.RulesFile
	}
	return filepath.Join(cfg.Storage.DataDir, "rules.json")
}

// WatchIgnore returns the ignore list with the data directory added when it
// lives under the watched tree, so rule file writes never feed back as events
func (cfg *Config) WatchIgnore() []string {
	ignore := make([]string, 0, len(cfg.Watch.Ignore)+1)
	for _, entry := range cfg.Watch.Ignore {
		if entry = strings.TrimSpace(entry); entry != "" {
			ignore = append(ignore, entry)
		}
	}

	root, err := filepath.Abs(cfg.Watch.Dir)
	if err != nil {
		return ignore
	}
	dataDir, err := filepath.Abs(filepath.Dir(cfg.RulesPath()))
	if err != nil {
		return ignore
	}
	rel, err := filepath.Rel(root, dataDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ignore
	}
	return append(ignore, filepath.ToSlash(rel)+"/")
}

// EnsureDirectories creates all required directories
func (cfg *Config) EnsureDirectories() error {
	dirs := []string{
		cfg.Storage.DataDir,
		filepath.Dir(cfg.RulesPath()),
	}

	for _, dir := range dirs {
		if dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("cannot create directory %s: %w", dir, err)
			}
		}
	}
	return nil
}

// formatValidationError formats validation errors into readable messages
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string
		for _, e := range validationErrors {
			switch e.Tag() {
			case "required":
				messages = append(messages, fmt.Sprintf("%s is required", e.Field()))
			case "min":
				messages = append(messages, fmt.Sprintf("%s must be at least %s", e.Field(), e.Param()))
			case "max":
				messages = append(messages, fmt.Sprintf("%s must be at most %s", e.Field(), e.Param()))
			case "oneof":
				messages = append(messages, fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param()))
			case "url":
				messages = append(messages, fmt.Sprintf("%s must be a valid URL", e.Field()))
			case "cors_origins":
				messages = append(messages, fmt.Sprintf("%s contains invalid origin format", e.Field()))
			case "cron_schedule":
				messages = append(messages, fmt.Sprintf("%s is not a valid cron schedule", e.Field()))
			default:
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", e.Field(), e.Tag()))
			}
		}
		return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
	}
	return err
}

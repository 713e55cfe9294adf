// Package config reads the service configuration from the environment.
// A .env file in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/freewebtopdf/logfilters/internal/api"
	"github.com/freewebtopdf/logfilters/internal/conflict"
	"github.com/freewebtopdf/logfilters/internal/storage"
)

// Config holds all configuration for the log filter service
type Config struct {
	Server struct {
		Port         int           `env:"PORT" envDefault:"8080" validate:"min=1,max=65535"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"5s" validate:"min=1ms"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s" validate:"min=1ms"`
		BodyLimit    int           `env:"BODY_LIMIT" envDefault:"1048576" validate:"min=1"`
	}

	Cache struct {
		MaxSize  int   `env:"CACHE_MAX_SIZE" envDefault:"10000" validate:"min=100"`
		MaxBytes int64 `env:"CACHE_MAX_BYTES" envDefault:"33554432" validate:"min=1024"`
	}

	Storage struct {
		SettingsPath  string        `env:"SETTINGS_PATH" envDefault:"./data/filters.conf" validate:"required,settings_ext"`
		AutoDir       string        `env:"AUTO_DIR"`
		ReloadPolicy  string        `env:"RELOAD_POLICY" envDefault:"accept" validate:"oneof=accept keep"`
		WatchSettings bool          `env:"WATCH_SETTINGS" envDefault:"false"`
		WatchDebounce time.Duration `env:"WATCH_DEBOUNCE" envDefault:"250ms" validate:"min=0"`
	}

	RateLimit struct {
		RPS   int `env:"RATE_LIMIT_RPS" envDefault:"100" validate:"min=0"`
		Burst int `env:"RATE_LIMIT_BURST" envDefault:"200" validate:"min=0"`
	}

	Security struct {
		CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," validate:"cors_origins"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
		Format string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`
	}
}

// settingsExtensions are the settings file formats the store can persist
var settingsExtensions = []string{".conf", ".ini", ".yaml", ".yml"}

// DefaultAutoDir is the auto-discovery directory used when AUTO_DIR is unset
func DefaultAutoDir() string {
	return filepath.Join(xdg.DataHome, "logfilters", "filters")
}

// Load loads configuration from environment variables and .env files
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if cfg.Storage.AutoDir == "" {
		cfg.Storage.AutoDir = DefaultAutoDir()
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the struct tags of cfg and reports every failing field
func Validate(cfg *Config) error {
	v := validator.New()
	custom := map[string]validator.Func{
		"cors_origins": validateCORSOrigins,
		"settings_ext": validateSettingsExt,
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validation: %w", tag, err)
		}
	}

	if err := v.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func validateCORSOrigins(fl validator.FieldLevel) bool {
	origins, _ := fl.Field().Interface().([]string)
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		switch {
		case origin == "", origin == "*":
		case strings.HasPrefix(origin, "http://"), strings.HasPrefix(origin, "https://"):
		default:
			return false
		}
	}
	return true
}

func validateSettingsExt(fl validator.FieldLevel) bool {
	ext := strings.ToLower(filepath.Ext(fl.Field().String()))
	for _, allowed := range settingsExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

var validationMessages = map[string]string{
	"required":     "%s is required",
	"min":          "%s must be at least %s",
	"max":          "%s must be at most %s",
	"oneof":        "%s must be one of: %s",
	"cors_origins": "%s contains invalid origin format",
	"settings_ext": "%s must end in .conf, .ini, .yaml or .yml",
}

func formatValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		format, ok := validationMessages[e.Tag()]
		if !ok {
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", e.Field(), e.Tag()))
			continue
		}
		if strings.Count(format, "%s") == 2 {
			messages = append(messages, fmt.Sprintf(format, e.Field(), e.Param()))
		} else {
			messages = append(messages, fmt.Sprintf(format, e.Field()))
		}
	}
	return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
}

// EnsureDirectories creates the settings directory and the auto directory
func (cfg *Config) EnsureDirectories() error {
	for _, dir := range []string{filepath.Dir(cfg.Storage.SettingsPath), cfg.Storage.AutoDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
	}
	return nil
}

// StoreConfig returns the storage configuration
func (cfg *Config) StoreConfig() storage.StoreConfig {
	return storage.StoreConfig{
		SettingsPath: cfg.Storage.SettingsPath,
		AutoDir:      cfg.Storage.AutoDir,
	}
}

// RouterConfig returns the HTTP router configuration
func (cfg *Config) RouterConfig() api.RouterConfig {
	return api.RouterConfig{
		CORSOrigins:    cfg.Security.CORSOrigins,
		BodyLimit:      cfg.Server.BodyLimit,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	}
}

// Decider returns the reload policy as a conflict decider
func (cfg *Config) Decider() conflict.Decider {
	policy, err := conflict.ParsePolicy(cfg.Storage.ReloadPolicy)
	if err != nil {
		return conflict.PolicyAccept
	}
	return policy
}

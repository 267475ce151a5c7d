// Package config loads pas2cs settings.
//
// Precedence, highest first: bound CLI flags, PAS2CS_* environment variables
// (a .env file in the working directory is loaded into the environment
// first), the pas2cs.yaml config file, and the defaults below.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/valpere/pas2cs/internal/llm"
)

const EnvPrefix = "PAS2CS"

type Config struct {
	LLM    LLMConfig    `mapstructure:"llm" json:"llm"`
	Prompt PromptConfig `mapstructure:"prompt" json:"prompt"`
	Store  StoreConfig  `mapstructure:"store" json:"store"`
	Serve  ServeConfig  `mapstructure:"serve" json:"serve"`
	Log    LogConfig    `mapstructure:"log" json:"log"`
}

type LLMConfig struct {
	BaseURL           string        `mapstructure:"base_url" json:"base_url" validate:"required,url"`
	Model             string        `mapstructure:"model" json:"model" validate:"required"`
	Temperature       float32       `mapstructure:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	Timeout           time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" json:"requests_per_minute" validate:"gte=0"`
	APIKey            string        `mapstructure:"api_key" json:"api_key"`
	APIKeyFile        string        `mapstructure:"api_key_file" json:"api_key_file"`
}

// PromptConfig locates the prompt files. Relative file names are resolved
// against Dir.
type PromptConfig struct {
	Dir       string `mapstructure:"dir" json:"dir" validate:"required"`
	Template  string `mapstructure:"template" json:"template" validate:"required"`
	Validator string `mapstructure:"validator" json:"validator" validate:"required"`
	Examples  string `mapstructure:"examples" json:"examples"`
}

type StoreConfig struct {
	Path     string `mapstructure:"path" json:"path" validate:"required_unless=Disabled true"`
	Disabled bool   `mapstructure:"disabled" json:"disabled"`
}

type ServeConfig struct {
	Listen string `mapstructure:"listen" json:"listen" validate:"required,hostname_port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" json:"format" validate:"oneof=text json"`
}

// NewDefaultConfig returns the built-in defaults. Prompt files live in a
// Prompt directory next to the executable.
func NewDefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:     llm.DefaultBaseURL,
			Model:       llm.DefaultModel,
			Temperature: llm.DefaultTemperature,
			Timeout:     llm.DefaultTimeout,
		},
		Prompt: PromptConfig{
			Dir:       filepath.Join(ExecutableDir(), "Prompt"),
			Template:  "pascal_to_csharp.txt",
			Validator: "checkRoslyn.txt",
			Examples:  "Examples",
		},
		Store: StoreConfig{
			Path: "./data/pas2cs.db",
		},
		Serve: ServeConfig{
			Listen: "127.0.0.1:8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// InitViper returns a viper instance with defaults registered, the config
// file read (when present) and environment binding enabled. configFile may
// be empty to search the usual locations.
func InitViper(configFile string) (*viper.Viper, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	v := viper.New()
	setViperDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("pas2cs")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "pas2cs"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if configFile != "" || !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.requests_per_minute", d.LLM.RequestsPerMinute)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.api_key_file", "")

	v.SetDefault("prompt.dir", d.Prompt.Dir)
	v.SetDefault("prompt.template", d.Prompt.Template)
	v.SetDefault("prompt.validator", d.Prompt.Validator)
	v.SetDefault("prompt.examples", d.Prompt.Examples)

	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.disabled", d.Store.Disabled)

	v.SetDefault("serve.listen", d.Serve.Listen)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is InitViper followed by FromViper.
func Load(configFile string) (*Config, error) {
	v, err := InitViper(configFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Client returns the settings for llm.New. apiKey is the resolved key. The
// temperature is passed as set, so 0 is honoured.
func (c LLMConfig) Client(apiKey string) llm.Config {
	temperature := c.Temperature
	return llm.Config{
		BaseURL:           c.BaseURL,
		APIKey:            apiKey,
		Model:             c.Model,
		Temperature:       &temperature,
		Timeout:           c.Timeout,
		RequestsPerMinute: c.RequestsPerMinute,
	}
}

func (p PromptConfig) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.Dir, name)
}

// TemplatePath is the conversion prompt file.
func (p PromptConfig) TemplatePath() string { return p.resolve(p.Template) }

// ValidatorPath is the review prompt file.
func (p PromptConfig) ValidatorPath() string { return p.resolve(p.Validator) }

// ExamplesDir is the few-shot examples directory; empty disables examples.
func (p PromptConfig) ExamplesDir() string { return p.resolve(p.Examples) }

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	err := getValidator().Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}

	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		messages = append(messages, fieldPath(e.Namespace())+": "+describe(e))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}

// fieldPath turns "Config.llm.base_url" into "llm.base_url".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_unless":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	case "oneof":
		return "must be one of [" + e.Param() + "]"
	case "gt":
		return "must be greater than " + e.Param()
	case "gte":
		return "must be at least " + e.Param()
	case "lte":
		return "must be at most " + e.Param()
	default:
		return "failed on " + e.Tag()
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// ErrMissingField is wrapped by every Validate error.
var ErrMissingField = errors.New("missing required field")

type TokenConfig struct {
	Value string `mapstructure:"-"`
	Path  string `mapstructure:"path"`
}

type NamespaceConfig struct {
	Target string `mapstructure:"target"`
	Text   string `mapstructure:"text"`
	Nav    string `mapstructure:"nav"`
	TOC    *bool  `mapstructure:"toc"`
}

// UsesTOC reports whether the namespace follows its outline. Defaults to true.
func (n NamespaceConfig) UsesTOC() bool {
	return n.TOC == nil || *n.TOC
}

type SiteConfig struct {
	Title       string `mapstructure:"title"`
	Lang        string `mapstructure:"lang"`
	Description string `mapstructure:"description"`
	Base        string `mapstructure:"base"`
	Theme       string `mapstructure:"theme"`
}

type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	Mount    string `mapstructure:"mount"`
	Schedule string `mapstructure:"schedule"`
}

type EmbedConfig struct {
	Providers []string `mapstructure:"providers"`
}

type SchemaConfig struct {
	IntroKey    string `mapstructure:"intro_key"`
	FeaturesKey string `mapstructure:"features_key"`
}

type ConcurrencyConfig struct {
	Namespaces int `mapstructure:"namespaces"`
	Documents  int `mapstructure:"documents"`
}

type NavConfig struct {
	DefaultText string `mapstructure:"default_text"`
}

type ImagesConfig struct {
	Strict bool `mapstructure:"strict"`
	Cache  bool `mapstructure:"cache"`
}

type Config struct {
	Host         string            `mapstructure:"host"`
	Token        TokenConfig       `mapstructure:"token"`
	Output       string            `mapstructure:"output"`
	DataDir      string            `mapstructure:"data_dir"`
	Namespaces   []NamespaceConfig `mapstructure:"namespaces"`
	Site         SiteConfig        `mapstructure:"site"`
	BuildCommand string            `mapstructure:"build_command"`
	Server       ServerConfig      `mapstructure:"server"`
	Embed        EmbedConfig       `mapstructure:"embed"`
	Schema       SchemaConfig      `mapstructure:"schema"`
	Concurrency  ConcurrencyConfig `mapstructure:"concurrency"`
	RetryDelay   time.Duration     `mapstructure:"retry_delay"`
	RateLimit    float64           `mapstructure:"rate_limit"`
	Nav          NavConfig         `mapstructure:"nav"`
	Images       ImagesConfig      `mapstructure:"images"`
}

// cacheBase returns the base cache directory for kbpress.
// Checks XDG_CACHE_HOME, then ~/.cache, then /tmp/kbpress as fallback.
func cacheBase() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "kbpress")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "kbpress")
	}
	return filepath.Join(os.TempDir(), "kbpress")
}

// DBPath returns the path to the run history database.
func DBPath() string {
	return filepath.Join(cacheBase(), "runs.db")
}

// CASDir returns the path to the image cache.
func CASDir() string {
	return filepath.Join(cacheBase(), "cas")
}

// LogPath returns the path to the server's log file.
func LogPath() string {
	return filepath.Join(cacheBase(), "server.log")
}

func newViper(file string) *viper.Viper {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "kbpress"))
		} else if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "kbpress"))
		}
	}

	v.SetDefault("host", "https://www.yuque.com")
	v.SetDefault("output", "docs")
	v.SetDefault("data_dir", ".")
	v.SetDefault("site.title", "Knowledge Base")
	v.SetDefault("site.lang", "zh-CN")
	v.SetDefault("site.base", "/")
	v.SetDefault("build_command", "npm run docs:build")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.mount", "/")
	v.SetDefault("embed.providers", []string{"codepen.io"})
	v.SetDefault("schema.intro_key", "首页介绍")
	v.SetDefault("schema.features_key", "首页特性")
	v.SetDefault("concurrency.namespaces", 4)
	v.SetDefault("concurrency.documents", 8)
	v.SetDefault("retry_delay", "3s")
	v.SetDefault("rate_limit", 0)
	v.SetDefault("nav.default_text", "知识库")
	v.SetDefault("images.cache", true)

	v.SetEnvPrefix("KBPRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func stringToTokenConfigHookFunc() mapstructure.DecodeHookFunc {
	return func(f, t reflect.Type, data interface{}) (interface{}, error) {
		if t != reflect.TypeOf(TokenConfig{}) {
			return data, nil
		}
		if f.Kind() == reflect.String {
			return TokenConfig{Value: data.(string)}, nil
		}
		return data, nil
	}
}

// Load reads file, or config.yml from the working directory or
// $XDG_CONFIG_HOME/kbpress when file is empty. A .env file in the working
// directory is loaded into the environment first.
func Load(file string) (*Config, error) {
	_ = godotenv.Load()

	v := newViper(file)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToTokenConfigHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := resolveToken(v, &config.Token); err != nil {
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}

	return &config, nil
}

func resolveToken(v *viper.Viper, token *TokenConfig) error {
	if envKey := v.GetString("token"); envKey != "" {
		if !strings.HasPrefix(envKey, "/") && !strings.HasPrefix(envKey, "./") && !strings.HasPrefix(envKey, "~/") {
			token.Value = envKey
			return nil
		}
		token.Path = envKey
	}

	if token.Path != "" {
		if strings.HasPrefix(token.Path, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				token.Path = filepath.Join(home, token.Path[2:])
			}
		}
		keyBytes, err := os.ReadFile(token.Path)
		if err != nil {
			return fmt.Errorf("failed to read token from file %s: %w", token.Path, err)
		}
		token.Value = strings.TrimSpace(string(keyBytes))
	}

	return nil
}

// Validate reports every required setting that is missing.
func (c *Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, fmt.Errorf("host: %w", ErrMissingField))
	}
	if c.Token.Value == "" {
		errs = append(errs, fmt.Errorf("token: %w", ErrMissingField))
	}
	if len(c.Namespaces) == 0 {
		errs = append(errs, fmt.Errorf("namespaces: %w", ErrMissingField))
	}
	for i, ns := range c.Namespaces {
		if ns.Target == "" {
			errs = append(errs, fmt.Errorf("namespaces[%d].target: %w", i, ErrMissingField))
		}
	}
	if c.Output == "" {
		errs = append(errs, fmt.Errorf("output: %w", ErrMissingField))
	}
	return errors.Join(errs...)
}

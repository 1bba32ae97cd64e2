// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// DefaultStartURL is the live.com desktop authorization endpoint used when no
// start URL is configured. Its redirect_uri points back at login.live.com, so
// the code arrives as a query parameter on a navigation the browser performs.
const DefaultStartURL = "https://login.live.com/oauth20_authorize.srf?client_id=00000000402b5328&response_type=code&scope=service%3A%3Auser.auth.xboxlive.com%3A%3AMBI_SSL&redirect_uri=https%3A%2F%2Flogin.live.com%2Foauth20_desktop.srf"

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
}

// CaptureConfig holds the settings of a single capture run. Most of these are
// populated from CLI flags.
type CaptureConfig struct {
	PartID   string `mapstructure:"part_id" yaml:"part_id"`
	StartURL string `mapstructure:"start_url" yaml:"start_url"`
	Title    string `mapstructure:"title" yaml:"title"`
	CodeTag  string `mapstructure:"code_tag" yaml:"code_tag"`
	ErrorTag string `mapstructure:"error_tag" yaml:"error_tag"`
	File     string `mapstructure:"file" yaml:"file"`

	// WaitTimeout bounds how long a deferred window stays hidden.
	WaitTimeout time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
}

// BrowserConfig holds settings for the Chrome instance hosting the capture window.
type BrowserConfig struct {
	ExecPath      string        `mapstructure:"exec_path" yaml:"exec_path"`
	WindowScale   float64       `mapstructure:"window_scale" yaml:"window_scale"`
	WindowWidth   int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight  int           `mapstructure:"window_height" yaml:"window_height"`
	NoSandbox     bool          `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	Args          []string      `mapstructure:"args" yaml:"args"`
	LaunchTimeout time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	// Warn keeps stderr quiet for scripted callers; the payload is on stdout.
	v.SetDefault("logger.level", "warn")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "lcap")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", false)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Capture --
	v.SetDefault("capture.part_id", "")
	v.SetDefault("capture.start_url", DefaultStartURL)
	v.SetDefault("capture.title", "LCAP")
	v.SetDefault("capture.code_tag", "code")
	v.SetDefault("capture.error_tag", "error")
	v.SetDefault("capture.file", "")
	v.SetDefault("capture.wait_timeout", "5s")

	// -- Browser --
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.window_scale", 0.6)
	v.SetDefault("browser.window_width", 1024)
	v.SetDefault("browser.window_height", 768)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.launch_timeout", "30s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture configuration invalid: %w", err)
	}
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the capture settings. A malformed part_id is deliberately
// not rejected here; it is replaced with a fresh partition later.
func (c *CaptureConfig) Validate() error {
	if c.CodeTag == "" {
		return fmt.Errorf("code_tag must not be empty")
	}
	if c.ErrorTag == "" {
		return fmt.Errorf("error_tag must not be empty")
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("wait_timeout must be a positive duration")
	}
	u, err := url.Parse(c.StartURL)
	if err != nil {
		return fmt.Errorf("start_url is not a valid URL: %w", err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("start_url must be an absolute URL")
	}
	return nil
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	if b.WindowScale <= 0 || b.WindowScale > 1 {
		return fmt.Errorf("window_scale must be in (0, 1]")
	}
	if b.WindowWidth <= 0 || b.WindowHeight <= 0 {
		return fmt.Errorf("window_width and window_height must be positive integers")
	}
	if b.LaunchTimeout <= 0 {
		return fmt.Errorf("launch_timeout must be a positive duration")
	}
	return nil
}

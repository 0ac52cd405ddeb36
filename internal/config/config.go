// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the root configuration, loaded from config.yaml, SCALPELUI_*
// environment variables and CLI flags.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Automation AutomationConfig `mapstructure:"automation" yaml:"automation"`
	Report     ReportConfig     `mapstructure:"report" yaml:"report"`
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

// ColorConfig names the console color per level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
	Fatal string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig selects and launches the remote browser.
type BrowserConfig struct {
	// Driver is the automation transport: "chromedp" or "rod".
	Driver   string `mapstructure:"driver" yaml:"driver"`
	Kind     string `mapstructure:"kind" yaml:"kind"`
	Headless bool   `mapstructure:"headless" yaml:"headless"`
	ExecPath string `mapstructure:"exec_path" yaml:"exec_path"`
	// RemoteURL attaches to a running browser's DevTools endpoint instead of launching one.
	RemoteURL         string         `mapstructure:"remote_url" yaml:"remote_url"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	LaunchTimeout     time.Duration  `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// AutomationConfig tunes the retry engine.
type AutomationConfig struct {
	// DefaultTimeout bounds every element operation, page-ready wait and
	// dialog wait unless a page overrides it.
	DefaultTimeout      time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	PollInitialInterval time.Duration `mapstructure:"poll_initial_interval" yaml:"poll_initial_interval"`
	PollMaxInterval     time.Duration `mapstructure:"poll_max_interval" yaml:"poll_max_interval"`
	PollMultiplier      float64       `mapstructure:"poll_multiplier" yaml:"poll_multiplier"`
	PollJitter          bool          `mapstructure:"poll_jitter" yaml:"poll_jitter"`
	// MaxCommandsPerSecond throttles remote commands; zero disables throttling.
	MaxCommandsPerSecond float64       `mapstructure:"max_commands_per_second" yaml:"max_commands_per_second"`
	CloseTimeout         time.Duration `mapstructure:"close_timeout" yaml:"close_timeout"`
}

// ReportConfig controls run artifacts.
type ReportConfig struct {
	Dir         string   `mapstructure:"dir" yaml:"dir"`
	Formats     []string `mapstructure:"formats" yaml:"formats"`
	Screenshots bool     `mapstructure:"screenshots" yaml:"screenshots"`
}

// NewDefaultConfig returns a Config holding only the defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default with v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpel-ui")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", "chromedp")
	v.SetDefault("browser.kind", "chrome")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.launch_timeout", 30*time.Second)
	v.SetDefault("browser.navigation_timeout", 60*time.Second)

	// -- Automation --
	v.SetDefault("automation.default_timeout", 120*time.Second)
	v.SetDefault("automation.poll_initial_interval", 50*time.Millisecond)
	v.SetDefault("automation.poll_max_interval", 500*time.Millisecond)
	v.SetDefault("automation.poll_multiplier", 1.5)
	v.SetDefault("automation.poll_jitter", true)
	v.SetDefault("automation.max_commands_per_second", 0.0)
	v.SetDefault("automation.close_timeout", 10*time.Second)

	// -- Report --
	v.SetDefault("report.dir", "./scalpel-ui-reports")
	v.SetDefault("report.formats", []string{"json", "junit"})
	v.SetDefault("report.screenshots", true)
}

// NewConfigFromViper unmarshals v, expands home-relative paths and validates.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Logger.LogFile, &c.Browser.ExecPath, &c.Report.Dir} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

var (
	validDrivers = map[string]bool{"chromedp": true, "rod": true}
	validFormats = map[string]bool{"json": true, "junit": true}
)

// Validate checks the configuration for values the runtime cannot work with.
func (c *Config) Validate() error {
	if !validDrivers[strings.ToLower(c.Browser.Driver)] {
		return fmt.Errorf("browser.driver must be one of chromedp, rod; got %q", c.Browser.Driver)
	}
	if c.Browser.Viewport.Width < 0 || c.Browser.Viewport.Height < 0 {
		return fmt.Errorf("browser.viewport dimensions must not be negative")
	}
	if c.Automation.DefaultTimeout <= 0 {
		return fmt.Errorf("automation.default_timeout must be positive")
	}
	if c.Automation.PollInitialInterval < 0 || c.Automation.PollMaxInterval < 0 {
		return fmt.Errorf("automation poll intervals must not be negative")
	}
	if c.Automation.PollMultiplier != 0 && c.Automation.PollMultiplier < 1 {
		return fmt.Errorf("automation.poll_multiplier must be at least 1")
	}
	if c.Automation.MaxCommandsPerSecond < 0 {
		return fmt.Errorf("automation.max_commands_per_second must not be negative")
	}
	for _, f := range c.Report.Formats {
		if !validFormats[strings.ToLower(f)] {
			return fmt.Errorf("report.formats: unknown format %q", f)
		}
	}
	return nil
}

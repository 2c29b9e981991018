// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Page() PageConfig
	Extractor() ExtractorConfig
	Poll() PollConfig
	Metrics() MetricsConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserRemoteURL(string)

	// Poll Setters
	SetPollMaxAttempts(int)
	SetPollRetryDelay(time.Duration)

	// Metrics Setters
	SetMetricsAddr(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	PageCfg      PageConfig      `mapstructure:"page" yaml:"page"`
	ExtractorCfg ExtractorConfig `mapstructure:"extractor" yaml:"extractor"`
	PollCfg      PollConfig      `mapstructure:"poll" yaml:"poll"`
	MetricsCfg   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Page() PageConfig           { return c.PageCfg }
func (c *Config) Extractor() ExtractorConfig { return c.ExtractorCfg }
func (c *Config) Poll() PollConfig           { return c.PollCfg }
func (c *Config) Metrics() MetricsConfig     { return c.MetricsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)         { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserRemoteURL(u string)      { c.BrowserCfg.RemoteURL = u }
func (c *Config) SetPollMaxAttempts(n int)          { c.PollCfg.MaxAttempts = n }
func (c *Config) SetPollRetryDelay(d time.Duration) { c.PollCfg.RetryDelay = d }
func (c *Config) SetMetricsAddr(addr string)        { c.MetricsCfg.Addr = addr }

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

// BrowserConfig holds settings for launching or attaching to the browser that
// carries the human-assisted session.
type BrowserConfig struct {
	// RemoteURL attaches to an already running browser (DevTools websocket or
	// http endpoint) instead of launching one.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	// TargetURLContains picks the first page target whose URL contains this
	// substring when attaching.
	TargetURLContains string         `mapstructure:"target_url_contains" yaml:"target_url_contains"`
	StartURL          string         `mapstructure:"start_url" yaml:"start_url"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir       string         `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache      bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
}

// PageConfig locates the controls of the results page.
type PageConfig struct {
	TableSelector       string        `mapstructure:"table_selector" yaml:"table_selector"`
	RowSelector         string        `mapstructure:"row_selector" yaml:"row_selector"`
	SearchAgainSelector string        `mapstructure:"search_again_selector" yaml:"search_again_selector"`
	SearchSelector      string        `mapstructure:"search_selector" yaml:"search_selector"`
	ConfirmSelector     string        `mapstructure:"confirm_selector" yaml:"confirm_selector"`
	SettleDelay         time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MinRefreshInterval  time.Duration `mapstructure:"min_refresh_interval" yaml:"min_refresh_interval"`
}

// ExtractorConfig describes how table rows map onto records.
type ExtractorConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	RowSelector      string        `mapstructure:"row_selector" yaml:"row_selector"`
	CellSelector     string        `mapstructure:"cell_selector" yaml:"cell_selector"`
	LabelAttribute   string        `mapstructure:"label_attribute" yaml:"label_attribute"`
	Labels           LabelConfig   `mapstructure:"labels" yaml:"labels"`
	ActionAttribute  string        `mapstructure:"action_attribute" yaml:"action_attribute"`
	ActionValue      string        `mapstructure:"action_value" yaml:"action_value"`
	MeetingSelector  string        `mapstructure:"meeting_selector" yaml:"meeting_selector"`
	ScheduleSelector string        `mapstructure:"schedule_selector" yaml:"schedule_selector"`
	DaySelector      string        `mapstructure:"day_selector" yaml:"day_selector"`
	TimeSelector     string        `mapstructure:"time_selector" yaml:"time_selector"`
	StatusSelector   string        `mapstructure:"status_selector" yaml:"status_selector"`
	FundSelector     string        `mapstructure:"fund_selector" yaml:"fund_selector"`
	ButtonSelector   string        `mapstructure:"button_selector" yaml:"button_selector"`
}

// LabelConfig holds the label values that identify each cell role.
type LabelConfig struct {
	Title        string `mapstructure:"title" yaml:"title"`
	Instructor   string `mapstructure:"instructor" yaml:"instructor"`
	MeetingTimes string `mapstructure:"meeting_times" yaml:"meeting_times"`
	Status       string `mapstructure:"status" yaml:"status"`
	Attributes   string `mapstructure:"attributes" yaml:"attributes"`
}

// PollConfig tunes the retry/poll engine.
type PollConfig struct {
	// MaxAttempts caps the number of search cycles. Zero means unbounded.
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	EmptyDelay      time.Duration `mapstructure:"empty_delay" yaml:"empty_delay"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	// ExtractTimeout bounds reading the fetched table. It starts when the
	// fetch returns and never shares the fetch deadline.
	ExtractTimeout  time.Duration `mapstructure:"extract_timeout" yaml:"extract_timeout"`
	InteractTimeout time.Duration `mapstructure:"interact_timeout" yaml:"interact_timeout"`
}

// MetricsConfig controls the optional prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
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
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "seatwatch")
	v.SetDefault("logger.log_file", "seatwatch.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	// The session is human-assisted, so a visible window is the default.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", "~/.seatwatch/profile")
	v.SetDefault("browser.disable_cache", false)
	v.SetDefault("browser.ignore_tls_errors", false)

	// -- Page --
	v.SetDefault("page.table_selector", "#table1")
	v.SetDefault("page.row_selector", "tbody > tr")
	v.SetDefault("page.search_again_selector", "#search-again-button")
	v.SetDefault("page.search_selector", "#search-go")
	v.SetDefault("page.confirm_selector", "#saveButton")
	v.SetDefault("page.settle_delay", "2s")
	v.SetDefault("page.poll_interval", "250ms")
	v.SetDefault("page.min_refresh_interval", "3s")

	// -- Extractor --
	v.SetDefault("extractor.max_attempts", 3)
	v.SetDefault("extractor.retry_delay", "150ms")
	// Cells are direct children of their row, so a table nested inside a cell
	// never adds cells to the outer row.
	v.SetDefault("extractor.row_selector", "tbody > tr")
	v.SetDefault("extractor.cell_selector", ":scope > td, :scope > th")
	v.SetDefault("extractor.label_attribute", "data-content")
	v.SetDefault("extractor.labels.title", "Title")
	v.SetDefault("extractor.labels.instructor", "Instructor")
	v.SetDefault("extractor.labels.meeting_times", "Meeting Times")
	v.SetDefault("extractor.labels.status", "Status")
	v.SetDefault("extractor.labels.attributes", "Attributes")
	v.SetDefault("extractor.action_attribute", "data-property")
	v.SetDefault("extractor.action_value", "add")
	v.SetDefault("extractor.meeting_selector", "div.meeting")
	v.SetDefault("extractor.schedule_selector", "div.meeting-schedule")
	v.SetDefault("extractor.day_selector", "ul li.ui-state-highlight div")
	v.SetDefault("extractor.time_selector", "span:not([class])")
	v.SetDefault("extractor.status_selector", "div.status-full")
	v.SetDefault("extractor.fund_selector", "span")
	v.SetDefault("extractor.button_selector", "button")

	// -- Poll --
	v.SetDefault("poll.max_attempts", 0)
	v.SetDefault("poll.retry_delay", "5s")
	v.SetDefault("poll.empty_delay", "5s")
	v.SetDefault("poll.fetch_timeout", "30s")
	v.SetDefault("poll.extract_timeout", "30s")
	v.SetDefault("poll.interact_timeout", "30s")

	// -- Metrics --
	v.SetDefault("metrics.addr", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in user supplied paths.
func (c *Config) expandPaths() error {
	var err error
	if c.BrowserCfg.UserDataDir, err = homedir.Expand(c.BrowserCfg.UserDataDir); err != nil {
		return fmt.Errorf("could not expand browser.user_data_dir: %w", err)
	}
	if c.LoggerCfg.LogFile, err = homedir.Expand(c.LoggerCfg.LogFile); err != nil {
		return fmt.Errorf("could not expand logger.log_file: %w", err)
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.ExtractorCfg.Validate(); err != nil {
		return fmt.Errorf("extractor configuration invalid: %w", err)
	}
	if err := c.PollCfg.Validate(); err != nil {
		return fmt.Errorf("poll configuration invalid: %w", err)
	}
	if strings.TrimSpace(c.PageCfg.TableSelector) == "" {
		return fmt.Errorf("page.table_selector is required")
	}
	return nil
}

// Validate checks the extractor settings.
func (e *ExtractorConfig) Validate() error {
	if e.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be a positive integer")
	}
	if e.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative")
	}
	if e.RowSelector == "" || e.CellSelector == "" {
		return fmt.Errorf("row_selector and cell_selector are required")
	}
	if e.Labels.Title == "" || e.Labels.Instructor == "" {
		return fmt.Errorf("labels.title and labels.instructor are required")
	}
	return nil
}

// Validate checks the poll engine settings.
func (p *PollConfig) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative")
	}
	if p.RetryDelay < 0 || p.EmptyDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if p.FetchTimeout <= 0 || p.ExtractTimeout <= 0 || p.InteractTimeout <= 0 {
		return fmt.Errorf("poll timeouts must be positive durations")
	}
	return nil
}

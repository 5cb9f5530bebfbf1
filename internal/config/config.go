// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Values come from
// config.yaml, JOBFINDER_* environment variables, and CLI flags bound through
// viper, in that order of increasing precedence.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Navigator  NavigatorConfig  `mapstructure:"navigator" yaml:"navigator"`
	Submit     SubmitConfig     `mapstructure:"submit" yaml:"submit"`
	Answers    AnswersConfig    `mapstructure:"answers" yaml:"answers"`
	Batch      BatchConfig      `mapstructure:"batch" yaml:"batch"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output"`
	Heuristics HeuristicsConfig `mapstructure:"heuristics" yaml:"heuristics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error dpanic panic fatal"`
	Format      string `mapstructure:"format" yaml:"format" validate:"oneof=console json"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width" validate:"min=0"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height" validate:"min=0"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout" validate:"required"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout" validate:"required"`
	// ComboboxOpenWait is the settle delay between opening an ARIA combobox
	// and reading its listbox. Heuristic, not a backoff.
	ComboboxOpenWait time.Duration `mapstructure:"combobox_open_wait" yaml:"combobox_open_wait"`
	// HumanTyping types field values with human cadence instead of one
	// synthetic burst. TypoRate is the per-key chance of a corrected slip.
	HumanTyping bool    `mapstructure:"human_typing" yaml:"human_typing"`
	TypoRate    float64 `mapstructure:"typo_rate" yaml:"typo_rate" validate:"min=0,max=1"`
}

// NavigatorConfig tunes the discovery pass: snapshot placement and the fixed
// settle waits inserted after state-changing actions so client-side rendering
// can catch up before the next DOM read.
type NavigatorConfig struct {
	SnapshotDir         string        `mapstructure:"snapshot_dir" yaml:"snapshot_dir" validate:"required"`
	InitialSettleWait   time.Duration `mapstructure:"initial_settle_wait" yaml:"initial_settle_wait"`
	StepSettleWait      time.Duration `mapstructure:"step_settle_wait" yaml:"step_settle_wait"`
	DismissSettleWait   time.Duration `mapstructure:"dismiss_settle_wait" yaml:"dismiss_settle_wait"`
	CookieWaitTimeout   time.Duration `mapstructure:"cookie_wait_timeout" yaml:"cookie_wait_timeout"`
	ContentReadyTimeout time.Duration `mapstructure:"content_ready_timeout" yaml:"content_ready_timeout"`
}

// SubmitConfig tunes the dispatch pass.
type SubmitConfig struct {
	// MaxAttempts bounds the submit retry loop. A field-level failure
	// re-resolves answers and tries again until this many attempts were made.
	MaxAttempts      int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1"`
	ReopenWait       time.Duration `mapstructure:"reopen_wait" yaml:"reopen_wait"`
	ReplaySettleWait time.Duration `mapstructure:"replay_settle_wait" yaml:"replay_settle_wait"`
}

// AnswersConfig points at the user-supplied answer material.
type AnswersConfig struct {
	File            string `mapstructure:"file" yaml:"file"`
	Profile         string `mapstructure:"profile" yaml:"profile"`
	CVPath          string `mapstructure:"cv_path" yaml:"cv_path"`
	CoverLetterPath string `mapstructure:"cover_letter_path" yaml:"cover_letter_path"`
}

// BatchConfig controls the batch apply run.
type BatchConfig struct {
	JobsFile string `mapstructure:"jobs_file" yaml:"jobs_file"`
	Company  string `mapstructure:"company" yaml:"company"`
	Limit    int    `mapstructure:"limit" yaml:"limit" validate:"min=0"`
	Parallel int    `mapstructure:"parallel" yaml:"parallel" validate:"min=1"`
	// Delay is the politeness pause between job navigations.
	Delay time.Duration `mapstructure:"delay" yaml:"delay"`
}

// OutputConfig decides where run artifacts land.
type OutputConfig struct {
	Dir             string `mapstructure:"dir" yaml:"dir" validate:"required"`
	PendingFilename string `mapstructure:"pending_filename" yaml:"pending_filename" validate:"required"`
}

// HeuristicsConfig enumerates the keyword and selector tables the extractor
// and dispatcher match against. They are configuration, not package state, so
// they can be swapped per target site without touching core logic.
type HeuristicsConfig struct {
	ApplyKeywords         []string `mapstructure:"apply_keywords" yaml:"apply_keywords" validate:"min=1"`
	CookieSelectors       []string `mapstructure:"cookie_selectors" yaml:"cookie_selectors"`
	CookieTexts           []string `mapstructure:"cookie_texts" yaml:"cookie_texts"`
	ContentReadySelectors []string `mapstructure:"content_ready_selectors" yaml:"content_ready_selectors"`
	SubmitKeywords        []string `mapstructure:"submit_keywords" yaml:"submit_keywords" validate:"min=1"`
	TruthyTokens          []string `mapstructure:"truthy_tokens" yaml:"truthy_tokens" validate:"min=1"`
	FalsyTokens           []string `mapstructure:"falsy_tokens" yaml:"falsy_tokens" validate:"min=1"`
	LabelContainerClasses []string `mapstructure:"label_container_classes" yaml:"label_container_classes"`
	ResumeKeywords        []string `mapstructure:"resume_keywords" yaml:"resume_keywords"`
	CoverLetterKeywords   []string `mapstructure:"cover_letter_keywords" yaml:"cover_letter_keywords"`
}

// SetDefaults initializes default values for all configuration parameters.
// The heuristic defaults are the tables proven against Workable, OneTrust and
// similar applicant-tracking-system templates.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "job-finder")
	v.SetDefault("logger.log_file", "job-finder.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.action_timeout", "15s")
	v.SetDefault("browser.combobox_open_wait", "150ms")
	v.SetDefault("browser.human_typing", false)
	v.SetDefault("browser.typo_rate", 0.02)

	// -- Navigator --
	v.SetDefault("navigator.snapshot_dir", "output/dom_snapshots")
	v.SetDefault("navigator.initial_settle_wait", "500ms")
	v.SetDefault("navigator.step_settle_wait", "2s")
	v.SetDefault("navigator.dismiss_settle_wait", "300ms")
	v.SetDefault("navigator.cookie_wait_timeout", "2s")
	v.SetDefault("navigator.content_ready_timeout", "5s")

	// -- Submit --
	v.SetDefault("submit.max_attempts", 3)
	v.SetDefault("submit.reopen_wait", "1s")
	v.SetDefault("submit.replay_settle_wait", "2s")

	// -- Answers --
	v.SetDefault("answers.file", "")
	v.SetDefault("answers.profile", "")
	v.SetDefault("answers.cv_path", "")
	v.SetDefault("answers.cover_letter_path", "")

	// -- Batch --
	v.SetDefault("batch.jobs_file", "")
	v.SetDefault("batch.company", "")
	v.SetDefault("batch.limit", 0)
	v.SetDefault("batch.parallel", 1)
	v.SetDefault("batch.delay", "10s")

	// -- Output --
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.pending_filename", "pending_questions.json")

	// -- Heuristics --
	v.SetDefault("heuristics.apply_keywords", []string{
		"apply", "proceed", "get started", "submit", "continue", "next", "apply now", "apply with",
	})
	v.SetDefault("heuristics.cookie_selectors", []string{
		"[data-ui='cookie-consent-accept']",
		"#onetrust-accept-btn-handler",
		"button[aria-label='Accept Cookies']",
	})
	v.SetDefault("heuristics.cookie_texts", []string{
		"accept all", "accept", "agree", "allow all", "got it",
	})
	v.SetDefault("heuristics.content_ready_selectors", []string{
		"[data-ui='apply-button']",
		"[data-ui='careers-page-content']",
		"a[href*='/apply']",
	})
	v.SetDefault("heuristics.submit_keywords", []string{
		"submit", "finish", "send", "apply", "complete",
	})
	v.SetDefault("heuristics.truthy_tokens", []string{"1", "true", "yes", "y"})
	v.SetDefault("heuristics.falsy_tokens", []string{"0", "false", "no", "n"})
	v.SetDefault("heuristics.label_container_classes", []string{"styles--3aPac"})
	v.SetDefault("heuristics.resume_keywords", []string{
		"resume", "résumé", "cv", "curriculum", "upload resume", "upload cv",
	})
	v.SetDefault("heuristics.cover_letter_keywords", []string{"cover letter"})
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("error expanding configured paths: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration built purely from the defaults. Intended
// for tests and for components that need sane settings without a config file.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults, but fail loudly if it somehow does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// expandPaths resolves ~ in every user-facing path setting.
func (c *Config) expandPaths() error {
	targets := []*string{
		&c.Navigator.SnapshotDir,
		&c.Output.Dir,
		&c.Answers.File,
		&c.Answers.Profile,
		&c.Answers.CVPath,
		&c.Answers.CoverLetterPath,
		&c.Batch.JobsFile,
		&c.Browser.UserDataDir,
		&c.Logger.LogFile,
	}
	for _, target := range targets {
		if *target == "" {
			continue
		}
		expanded, err := homedir.Expand(*target)
		if err != nil {
			return fmt.Errorf("expanding %q: %w", *target, err)
		}
		*target = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if c.Browser.ActionTimeout <= 0 {
		return fmt.Errorf("browser.action_timeout must be a positive duration")
	}
	if c.Batch.Delay < 0 {
		return fmt.Errorf("batch.delay must not be negative")
	}
	return nil
}

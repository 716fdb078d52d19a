// Package config loads and validates the orchestrator's YAML configuration.
package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v2"
)

// Config is the root configuration object loaded from config.yml.
type Config struct {
	Logger     Logger     `yaml:"logger"`
	HTTPClient HTTPClient `yaml:"http_client"`
	Scheduler  Scheduler  `yaml:"scheduler"`
	Checkpoint Checkpoint `yaml:"checkpoint"`
	Broker     Broker     `yaml:"broker"`
	Paths      Paths      `yaml:"paths"`
	GitClient  GitClient  `yaml:"git_client"`
	Triage     Triage     `yaml:"triage"`
	Storage    Storage    `yaml:"storage"`
}

// Storage selects the persistence.Store backend checkpoints and workflow
// metadata are written to. Backend "file" (the default) uses Paths.ResultsHome
// on local disk; "s3" uses the S3 fields below instead.
type Storage struct {
	Backend  string `yaml:"backend"` // "file" or "s3"
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
	S3Region string `yaml:"s3_region"`
}

// DefaultStorage returns the local-disk backend.
func DefaultStorage() Storage {
	return Storage{Backend: "file"}
}

// Triage controls the optional LLM-assisted remediation-suggestion step
// run during the validation node. Backend is one of "anthropic", "openai",
// or "" to disable triage entirely.
type Triage struct {
	Enabled bool          `yaml:"enabled"`
	Backend string        `yaml:"backend"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultTriage returns triage defaults with the step disabled; a backend
// requires credentials this repository never assumes are present.
func DefaultTriage() Triage {
	return Triage{Enabled: false, Backend: "anthropic", Timeout: 30 * time.Second}
}

// GitClient controls the go-git checkout used to materialize GIT_REPO
// targets before an adapter runs against them.
type GitClient struct {
	Depth           int           `yaml:"depth"`
	Timeout         time.Duration `yaml:"timeout"`
	InsecureSkipTLS bool          `yaml:"insecure_skip_tls"`
}

// DefaultGitClient returns the checkout defaults.
func DefaultGitClient() GitClient {
	return GitClient{Depth: 1, Timeout: 5 * time.Minute}
}

// Logger holds hclog output settings.
type Logger struct {
	Level           string `yaml:"level"`
	JSONFormat      bool   `yaml:"json_format"`
	DisableTime     bool   `yaml:"disable_time"`
	IncludeLocation bool   `yaml:"include_location"`
}

// HTTPClient holds the settings applied to the shared resty client.
type HTTPClient struct {
	Debug            bool          `yaml:"debug"`
	RetryCount       int           `yaml:"retry_count"`
	RetryWaitTime    time.Duration `yaml:"retry_wait_time"`
	RetryMaxWaitTime time.Duration `yaml:"retry_max_wait_time"`
	Timeout          time.Duration `yaml:"timeout"`
	TLSClientConfig  TLSConfig     `yaml:"tls_client_config"`
	Proxy            Proxy         `yaml:"proxy"`
}

// TLSConfig controls certificate verification for the shared HTTP client.
type TLSConfig struct {
	Verify bool `yaml:"verify"`
}

// Proxy holds an optional forward proxy for the shared HTTP client.
type Proxy struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Scheduler holds the bounded-concurrency dispatcher's knobs (spec.md §4.4, §9).
type Scheduler struct {
	MaxParallel        int           `yaml:"max_parallel_tools"`
	MaxParallelFlows   int           `yaml:"max_parallel_workflows"`
	PerTaskTimeout     time.Duration `yaml:"per_task_timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	BaseBackoff        time.Duration `yaml:"base_backoff"`
	BackoffFactor      float64       `yaml:"backoff_factor"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
	RetryableExitCodes []int         `yaml:"retryable_exit_codes"`
	GracePeriod        time.Duration `yaml:"grace_period"`
}

// Checkpoint controls checkpoint persistence and retention.
type Checkpoint struct {
	Enabled        bool `yaml:"enabled"`
	RetentionCount int  `yaml:"retention_count"`
}

// Broker controls the JSON-RPC broker's session behavior.
type Broker struct {
	MaxInFlight int    `yaml:"max_in_flight"`
	OnBusy      string `yaml:"on_busy"` // "queue" or "reject"
}

// Paths holds the filesystem roots the orchestrator reads/writes under.
type Paths struct {
	PluginsHome  string `yaml:"plugins_home"`
	ProjectsHome string `yaml:"projects_home"`
	ResultsHome  string `yaml:"results_home"`
}

// DefaultHTTPConfig returns baseline HTTP client settings, mirroring the
// teacher's DefaultRestyConfig.
func DefaultHTTPConfig() HTTPClient {
	return HTTPClient{
		RetryCount:       5,
		RetryWaitTime:    1 * time.Second,
		RetryMaxWaitTime: 5 * time.Second,
		Timeout:          30 * time.Second,
		TLSClientConfig:  TLSConfig{Verify: true},
	}
}

// DefaultScheduler returns the scheduler defaults from spec.md §4.4.
func DefaultScheduler() Scheduler {
	return Scheduler{
		MaxParallel:        4,
		MaxParallelFlows:   8,
		PerTaskTimeout:     10 * time.Minute,
		MaxRetries:         3,
		BaseBackoff:        2 * time.Second,
		BackoffFactor:      2.0,
		MaxBackoff:         2 * time.Minute,
		RetryableExitCodes: []int{},
		GracePeriod:        5 * time.Second,
	}
}

// DefaultCheckpoint returns the checkpoint defaults.
func DefaultCheckpoint() Checkpoint {
	return Checkpoint{Enabled: true, RetentionCount: 50}
}

// DefaultBroker returns the broker session defaults.
func DefaultBroker() Broker {
	return Broker{MaxInFlight: 4, OnBusy: "reject"}
}

// DefaultPaths returns the ~/.scanio-orchestrator layout.
func DefaultPaths() Paths {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, ".orchestrator")
	return Paths{
		PluginsHome:  filepath.Join(root, "plugins"),
		ProjectsHome: filepath.Join(root, "projects"),
		ResultsHome:  filepath.Join(root, "results"),
	}
}

// Default returns a Config populated entirely with defaults.
func Default() *Config {
	return &Config{
		Logger:     Logger{Level: "INFO"},
		HTTPClient: DefaultHTTPConfig(),
		Scheduler:  DefaultScheduler(),
		Checkpoint: DefaultCheckpoint(),
		Broker:     DefaultBroker(),
		Paths:      DefaultPaths(),
		GitClient:  DefaultGitClient(),
		Triage:     DefaultTriage(),
		Storage:    DefaultStorage(),
	}
}

// ValidateConfigPath ensures the given path exists and is a regular file.
func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a config file", path)
	}
	return nil
}

// LoadYAML decodes the YAML document at configPath into data.
func LoadYAML(configPath string, data interface{}) error {
	if err := ValidateConfigPath(configPath); err != nil {
		return err
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	if err := d.Decode(data); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads a YAML config file, overlays it on top of defaults, and
// returns the result. A missing file is not an error: defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()
	if configPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}
	if err := LoadYAML(configPath, cfg); err != nil {
		return nil, fmt.Errorf("loading config '%s': %w", configPath, err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides layers ORCHESTRATOR_*-prefixed environment variables
// on top of the file-loaded config, mirroring zero-day-ai-gibson's
// loader.go viper env-interpolation step; yaml.v2 stays the canonical
// on-disk format, viper is used only for this override layer since it
// already knows how to fold ORCHESTRATOR_LOGGER_LEVEL-style keys onto
// nested struct fields via AutomaticEnv's key replacer.
func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("ORCHESTRATOR")
	v.AutomaticEnv()

	if s := v.GetString("logger_level"); s != "" {
		cfg.Logger.Level = s
	}
	if s := v.GetString("triage_backend"); s != "" {
		cfg.Triage.Backend = s
	}
	if s := v.GetString("triage_model"); s != "" {
		cfg.Triage.Model = s
	}
	if s := os.Getenv("ORCHESTRATOR_TRIAGE_ENABLED"); s != "" {
		cfg.Triage.Enabled = v.GetBool("triage_enabled")
	}
	if s := v.GetString("storage_backend"); s != "" {
		cfg.Storage.Backend = s
	}
	if s := v.GetString("storage_s3_bucket"); s != "" {
		cfg.Storage.S3Bucket = s
	}
	if n := v.GetInt("broker_max_in_flight"); n > 0 {
		cfg.Broker.MaxInFlight = n
	}
}

// TLSClientConfig builds a *tls.Config from the HTTPClient settings.
func (h HTTPClient) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !h.TLSClientConfig.Verify,
	}
}

package config

import (
	"cmp"
	"errors"
	"fmt"
	"github.com/goccy/go-json"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	instance   *Config
	once       sync.Once
	configPath string
)

const (
	DownloaderAria2 = "aria2"
	DownloaderGrab  = "grab"
)

type RealDebrid struct {
	APIKey           string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Host             string `json:"host,omitempty" yaml:"host,omitempty"`
	RateLimit        string `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"` // 250/minute or 4/second
	Proxy            string `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	CleanupOnFailure bool   `json:"cleanup_on_failure,omitempty" yaml:"cleanup_on_failure,omitempty"`
}

type Aria2 struct {
	RPCURL       string   `json:"rpc_url,omitempty" yaml:"rpc_url,omitempty"`
	Secret       string   `json:"secret,omitempty" yaml:"secret,omitempty"`
	Binary       string   `json:"binary,omitempty" yaml:"binary,omitempty"`
	DownloadDir  string   `json:"download_dir,omitempty" yaml:"download_dir,omitempty"`
	Connections  int      `json:"connections,omitempty" yaml:"connections,omitempty"`
	SpawnRetries int      `json:"spawn_retries,omitempty" yaml:"spawn_retries,omitempty"`
	SpawnDelay   string   `json:"spawn_delay,omitempty" yaml:"spawn_delay,omitempty"`
	ExtraArgs    []string `json:"extra_args,omitempty" yaml:"extra_args,omitempty"`
}

type Monitor struct {
	InteractiveInterval string `json:"interactive_interval,omitempty" yaml:"interactive_interval,omitempty"`
	AggregateInterval   string `json:"aggregate_interval,omitempty" yaml:"aggregate_interval,omitempty"`
	AggregateThreshold  int    `json:"aggregate_threshold,omitempty" yaml:"aggregate_threshold,omitempty"`
}

type Links struct {
	TempDir string `json:"temp_dir,omitempty" yaml:"temp_dir,omitempty"`
	// Bucket is a gocloud blob URL (file:///srv/links, s3://bucket?region=...)
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
}

type Workflow struct {
	MaxDuration string `json:"max_duration,omitempty" yaml:"max_duration,omitempty"`
}

type Config struct {
	LogLevel   string     `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	Downloader string     `json:"downloader,omitempty" yaml:"downloader,omitempty"`
	RealDebrid RealDebrid `json:"realdebrid,omitempty" yaml:"realdebrid,omitempty"`
	Aria2      Aria2      `json:"aria2,omitempty" yaml:"aria2,omitempty"`
	Monitor    Monitor    `json:"monitor,omitempty" yaml:"monitor,omitempty"`
	Links      Links      `json:"links,omitempty" yaml:"links,omitempty"`
	Workflow   Workflow   `json:"workflow,omitempty" yaml:"workflow,omitempty"`
	Path       string     `json:"-" yaml:"-"` // Folder holding the config file and logs
	File       string     `json:"-" yaml:"-"`
}

// environment overrides, applied after the config file
type environment struct {
	Token       string `envconfig:"REAL_DEBRID_API_TOKEN"`
	LogLevel    string `envconfig:"MAGNETDL_LOG_LEVEL"`
	Downloader  string `envconfig:"MAGNETDL_DOWNLOADER"`
	Proxy       string `envconfig:"MAGNETDL_PROXY"`
	Aria2URL    string `envconfig:"MAGNETDL_ARIA2_URL"`
	Aria2Secret string `envconfig:"MAGNETDL_ARIA2_SECRET"`
	LinksBucket string `envconfig:"MAGNETDL_LINKS_BUCKET"`
}

func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "magnetdl", "config.json")
}

// Load reads the config file at path. A missing file is not an error, defaults apply.
func Load(path string) (*Config, error) {
	path = cmp.Or(path, DefaultPath())
	c := &Config{
		File: path,
		Path: filepath.Dir(path),
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := c.unmarshal(data); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := c.applyEnvironment(); err != nil {
		return nil, err
	}
	c.setDefaults()

	if err := ValidateConfig(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) unmarshal(data []byte) error {
	switch strings.ToLower(filepath.Ext(c.File)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("error unmarshaling config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("error unmarshaling config: %w", err)
		}
	}
	return nil
}

func (c *Config) applyEnvironment() error {
	var env environment
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	c.RealDebrid.APIKey = cmp.Or(env.Token, c.RealDebrid.APIKey)
	c.RealDebrid.Proxy = cmp.Or(env.Proxy, c.RealDebrid.Proxy)
	c.LogLevel = cmp.Or(env.LogLevel, c.LogLevel)
	c.Downloader = cmp.Or(env.Downloader, c.Downloader)
	c.Aria2.RPCURL = cmp.Or(env.Aria2URL, c.Aria2.RPCURL)
	c.Aria2.Secret = cmp.Or(env.Aria2Secret, c.Aria2.Secret)
	c.Links.Bucket = cmp.Or(env.LinksBucket, c.Links.Bucket)
	return nil
}

func (c *Config) setDefaults() {
	c.LogLevel = cmp.Or(c.LogLevel, "info")
	c.Downloader = cmp.Or(strings.ToLower(c.Downloader), DownloaderAria2)

	c.RealDebrid.Host = cmp.Or(c.RealDebrid.Host, "https://api.real-debrid.com/rest/1.0")
	c.RealDebrid.RateLimit = cmp.Or(c.RealDebrid.RateLimit, "250/minute")

	c.Aria2.RPCURL = cmp.Or(c.Aria2.RPCURL, "http://localhost:6800/jsonrpc")
	c.Aria2.Secret = cmp.Or(c.Aria2.Secret, "magnetdl")
	c.Aria2.Binary = cmp.Or(c.Aria2.Binary, "aria2c")
	c.Aria2.DownloadDir = cmp.Or(c.Aria2.DownloadDir, "./Downloads")
	c.Aria2.Connections = cmp.Or(c.Aria2.Connections, 16)
	c.Aria2.SpawnRetries = cmp.Or(c.Aria2.SpawnRetries, 5)
	c.Aria2.SpawnDelay = cmp.Or(c.Aria2.SpawnDelay, "2s")

	c.Monitor.InteractiveInterval = cmp.Or(c.Monitor.InteractiveInterval, "200ms")
	c.Monitor.AggregateInterval = cmp.Or(c.Monitor.AggregateInterval, "2s")
	c.Monitor.AggregateThreshold = cmp.Or(c.Monitor.AggregateThreshold, 10)

	c.Links.TempDir = cmp.Or(c.Links.TempDir, os.TempDir())
}

func validateRealDebrid(rd *RealDebrid) error {
	if _, _, err := ParseRate(rd.RateLimit); err != nil {
		return err
	}
	return nil
}

func validateAria2(a *Aria2) error {
	if a.RPCURL == "" {
		return errors.New("aria2 rpc url is required")
	}
	if a.SpawnRetries < 1 {
		return errors.New("aria2 spawn retries must be positive")
	}
	return nil
}

func ValidateConfig(config *Config) error {
	if err := validateRealDebrid(&config.RealDebrid); err != nil {
		return fmt.Errorf("realdebrid validation error: %w", err)
	}

	switch config.Downloader {
	case DownloaderAria2:
		if err := validateAria2(&config.Aria2); err != nil {
			return fmt.Errorf("aria2 validation error: %w", err)
		}
	case DownloaderGrab:
	default:
		return fmt.Errorf("unknown downloader %q", config.Downloader)
	}

	if config.Monitor.AggregateThreshold < 1 {
		return errors.New("monitor aggregate threshold must be positive")
	}

	for _, d := range []string{
		config.Aria2.SpawnDelay,
		config.Monitor.InteractiveInterval,
		config.Monitor.AggregateInterval,
		config.Workflow.MaxDuration,
	} {
		if _, err := parseDuration(d); err != nil {
			return err
		}
	}
	return nil
}

func SetConfigPath(path string) {
	configPath = path
}

func Get() *Config {
	once.Do(func() {
		cfg, err := Load(configPath)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "configuration Error: %v\n", err)
			os.Exit(1)
		}
		instance = cfg
	})
	return instance
}

func (c *Config) Save() error {
	if err := os.MkdirAll(c.Path, 0755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(c.File)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(c.File, data, 0600)
}

// Reload forces a reload of the configuration from disk
func Reload() {
	instance = nil
	once = sync.Once{}
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read from the working directory when no --config path is given.
const DefaultFile = "docxcompat.yml"

// Config controls a harness run. Values are layered: defaults, the YAML file, .env, the
// process environment, then command-line flags.
type Config struct {
	ServerURL            string        `yaml:"server-url"`
	FileServerPort       int           `yaml:"file-server-port"`
	PixelDiffThreshold   float64       `yaml:"pixel-diff-threshold"`
	DocumentReadyTimeout time.Duration `yaml:"document-ready-timeout"`
	SettleDelay          time.Duration `yaml:"settle-delay"`
	PollInterval         time.Duration `yaml:"poll-interval"`
	ViewportWidth        int           `yaml:"viewport-width"`
	ViewportHeight       int           `yaml:"viewport-height"`
	Language             string        `yaml:"language"`

	CorpusDir    string `yaml:"corpus-dir"`
	ReferenceDir string `yaml:"reference-dir"`
	ResultsDir   string `yaml:"results-dir"`

	BrowserPath string `yaml:"browser-path"`
	BrowserArgs string `yaml:"browser-args"`
	Headless    bool   `yaml:"headless"`

	LogFormat      string `yaml:"log-format"`
	LogLevel       string `yaml:"log-level"`
	MetricsEnabled bool   `yaml:"metrics"`

	ObjectStore ObjectStore `yaml:"object-store"`
}

// ObjectStore configures the S3 bucket that holds shared reference images and run artifacts.
type ObjectStore struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access-key"`
	SecretKey    string `yaml:"secret-key"`
	SessionToken string `yaml:"session-token"`
	PathStyle    bool   `yaml:"path-style"`
}

func Default() *Config {
	return &Config{
		ServerURL:            "http://localhost:8080",
		FileServerPort:       9090,
		PixelDiffThreshold:   0.05,
		DocumentReadyTimeout: 30 * time.Second,
		SettleDelay:          2 * time.Second,
		PollInterval:         250 * time.Millisecond,
		ViewportWidth:        1280,
		ViewportHeight:       900,
		Language:             "en",
		CorpusDir:            "corpus",
		ReferenceDir:         "reference",
		ResultsDir:           "results",
		BrowserArgs:          "--no-sandbox --disable-setuid-sandbox --disable-dev-shm-usage",
		Headless:             true,
		LogFormat:            "console",
		LogLevel:             "info",
		MetricsEnabled:       true,
		ObjectStore: ObjectStore{
			Region: "us-east-1",
		},
	}
}

// Load builds a Config. path may be empty, in which case DefaultFile is used if present.
// envFile is loaded with godotenv without overriding variables already set.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.ServerURL = envOrDefault("ONLYOFFICE_URL", c.ServerURL)
	c.Language = envOrDefault("DOCXCOMPAT_LANGUAGE", c.Language)
	c.CorpusDir = envOrDefault("DOCXCOMPAT_CORPUS_DIR", c.CorpusDir)
	c.ReferenceDir = envOrDefault("DOCXCOMPAT_REFERENCE_DIR", c.ReferenceDir)
	c.ResultsDir = envOrDefault("DOCXCOMPAT_RESULTS_DIR", c.ResultsDir)
	c.BrowserPath = envOrDefault("DOCXCOMPAT_BROWSER_PATH", c.BrowserPath)
	c.BrowserArgs = envOrDefault("DOCXCOMPAT_BROWSER_ARGS", c.BrowserArgs)
	c.LogFormat = envOrDefault("DOCXCOMPAT_LOG_FORMAT", c.LogFormat)
	c.LogLevel = envOrDefault("DOCXCOMPAT_LOG_LEVEL", c.LogLevel)
	c.Headless = envOrDefaultBool("DOCXCOMPAT_HEADLESS", c.Headless)
	c.MetricsEnabled = envOrDefaultBool("DOCXCOMPAT_METRICS", c.MetricsEnabled)

	c.ObjectStore.Bucket = envOrDefault("DOCXCOMPAT_S3_BUCKET", c.ObjectStore.Bucket)
	c.ObjectStore.Prefix = envOrDefault("DOCXCOMPAT_S3_PREFIX", c.ObjectStore.Prefix)
	c.ObjectStore.Region = envOrDefault("DOCXCOMPAT_S3_REGION", c.ObjectStore.Region)
	c.ObjectStore.Endpoint = envOrDefault("DOCXCOMPAT_S3_ENDPOINT", c.ObjectStore.Endpoint)
	c.ObjectStore.AccessKey = envOrDefault("DOCXCOMPAT_S3_ACCESS_KEY", c.ObjectStore.AccessKey)
	c.ObjectStore.SecretKey = envOrDefault("DOCXCOMPAT_S3_SECRET_KEY", c.ObjectStore.SecretKey)
	c.ObjectStore.SessionToken = envOrDefault("DOCXCOMPAT_S3_SESSION_TOKEN", c.ObjectStore.SessionToken)
	c.ObjectStore.PathStyle = envOrDefaultBool("DOCXCOMPAT_S3_PATH_STYLE", c.ObjectStore.PathStyle)

	var err error
	if c.FileServerPort, err = envInt("FILE_SERVER_PORT", c.FileServerPort); err != nil {
		return err
	}
	if c.PixelDiffThreshold, err = envFloat("PIXEL_DIFF_THRESHOLD", c.PixelDiffThreshold); err != nil {
		return err
	}
	ms, err := envInt("DOCUMENT_READY_TIMEOUT", int(c.DocumentReadyTimeout/time.Millisecond))
	if err != nil {
		return err
	}
	c.DocumentReadyTimeout = time.Duration(ms) * time.Millisecond
	if c.SettleDelay, err = envDuration("DOCXCOMPAT_SETTLE_DELAY", c.SettleDelay); err != nil {
		return err
	}
	return nil
}

// Validate checks ranges once all layers have been applied.
func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid server url %q", c.ServerURL)
	}
	if c.FileServerPort < 1 || c.FileServerPort > 65535 {
		return fmt.Errorf("file server port %d out of range", c.FileServerPort)
	}
	if c.PixelDiffThreshold < 0 || c.PixelDiffThreshold > 1 {
		return fmt.Errorf("pixel diff threshold %v must be within [0,1]", c.PixelDiffThreshold)
	}
	if c.DocumentReadyTimeout <= 0 {
		return fmt.Errorf("document ready timeout must be positive, got %s", c.DocumentReadyTimeout)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay must not be negative, got %s", c.SettleDelay)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("viewport %dx%d must be positive", c.ViewportWidth, c.ViewportHeight)
	}
	if _, err := c.ExtraBrowserArgs(); err != nil {
		return err
	}
	return nil
}

// ExtraBrowserArgs splits BrowserArgs with shell quoting rules.
func (c *Config) ExtraBrowserArgs() ([]string, error) {
	args, err := shellwords.Parse(c.BrowserArgs)
	if err != nil {
		return nil, fmt.Errorf("parse browser args: %w", err)
	}
	return args, nil
}

// ServerBaseURL returns ServerURL without a trailing slash.
func (c *Config) ServerBaseURL() string {
	return strings.TrimRight(c.ServerURL, "/")
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		return fallback
	}
}

func envInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/release-updater/internal/logger"
)

// Config holds the settings of one installed application.
type Config struct {
	// Owner is the registry account that publishes releases.
	Owner string `yaml:"owner"`
	// Repository is the project name in the registry.
	Repository string `yaml:"repository"`
	// Token authenticates registry and artifact requests.
	Token string `yaml:"token,omitempty"`
	// CurrentVersion is the installed version; releases must be strictly newer.
	CurrentVersion string `yaml:"current_version"`
	// InstallDir is the tree being updated. Defaults to the working directory.
	InstallDir string `yaml:"install_dir,omitempty"`
	// Exclude lists paths and file names left out of each tree.
	Exclude Exclusions `yaml:"exclude"`
	// Clear removes the release contents after the run. When false, they are kept as a zip.
	Clear *bool `yaml:"clear,omitempty"`
	// MaxLogs is how many run logs are kept. Zero takes DefaultMaxLogs.
	MaxLogs int `yaml:"max_logs"`
	// Info is free-form text added to failure reports.
	Info string `yaml:"info,omitempty"`
	// Lock tunes marker acquisition.
	Lock LockConfig `yaml:"lock"`
	// Download tunes artifact downloads.
	Download DownloadConfig `yaml:"download"`
	// ApplyDelay is waited after extraction, before the install tree is touched.
	ApplyDelay time.Duration `yaml:"apply_delay,omitempty"`
	// CleanupFailure decides what a failed cleanup does to the run status.
	CleanupFailure string `yaml:"cleanup_failure"`
	// RegistryURL is the releases API root.
	RegistryURL string `yaml:"registry_url"`
	// Mirror, when set, replaces the registry artifact URL.
	Mirror MirrorConfig `yaml:"mirror,omitempty"`
	// Notify configures failure mail.
	Notify NotifyConfig `yaml:"notify,omitempty"`
	// StopProcesses lists executable names killed before the apply.
	StopProcesses []string `yaml:"stop_processes,omitempty"`
	// PostUpgrade is run inside the install dir after a successful apply.
	PostUpgrade PostUpgradeConfig `yaml:"post_upgrade,omitempty"`
	// LogFile adds a rolling log file next to the console output.
	LogFile LogFileConfig `yaml:"log_file,omitempty"`
	// LogLevel is the console level: debug, info, warn or error.
	LogLevel string `yaml:"log_level,omitempty"`
}

// Exclusions hold the rules for both trees.
type Exclusions struct {
	Source  ExclusionRule `yaml:"source"`
	Release ExclusionRule `yaml:"release"`
}

// ExclusionRule lists paths relative to the tree root and bare file names.
type ExclusionRule struct {
	Paths     []string `yaml:"paths,omitempty"`
	Filenames []string `yaml:"filenames,omitempty"`
}

// LockConfig tunes marker acquisition.
type LockConfig struct {
	// Attempts is how many times the marker is tried. Zero takes DefaultLockAttempts.
	Attempts int `yaml:"attempts"`
	// Delay is the pause between attempts. Nil means DefaultLockDelay; zero retries at once.
	Delay *time.Duration `yaml:"delay"`
}

// RetryDelay returns the pause between marker attempts.
func (l LockConfig) RetryDelay() time.Duration {
	return lo.FromPtrOr(l.Delay, DefaultLockDelay)
}

// DownloadConfig tunes artifact downloads. Retries are extra attempts after the first one.
// Nil Retries and Delay take the defaults, so an explicit zero disables them.
type DownloadConfig struct {
	Retries *int           `yaml:"retries"`
	Delay   *time.Duration `yaml:"delay"`
	// Timeout bounds one attempt. Zero takes DefaultDownloadTimeout.
	Timeout time.Duration `yaml:"timeout"`
}

// RetryCount returns how many times a failed download is retried.
func (d DownloadConfig) RetryCount() int {
	return lo.FromPtrOr(d.Retries, DefaultDownloadRetries)
}

// RetryDelay returns the pause between download attempts.
func (d DownloadConfig) RetryDelay() time.Duration {
	return lo.FromPtrOr(d.Delay, DefaultDownloadDelay)
}

// MirrorConfig points at a copy of the release artifacts.
// URL is either http(s)://host/path or s3://bucket/prefix; S3 needs an endpoint.
type MirrorConfig struct {
	URL       string `yaml:"url,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
	Region    string `yaml:"region,omitempty"`
}

// NotifyConfig configures failure mail. Mail is sent only when Admin, Mailer and SMTPAddr are set.
type NotifyConfig struct {
	Admin    string `yaml:"admin,omitempty"`
	Mailer   string `yaml:"mailer,omitempty"`
	SMTPAddr string `yaml:"smtp_addr,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Enabled reports whether failure mail is configured.
func (n NotifyConfig) Enabled() bool {
	return n.Admin != "" && n.Mailer != "" && n.SMTPAddr != ""
}

// PostUpgradeConfig is a command with an argument vector, run without a shell.
type PostUpgradeConfig struct {
	Command string        `yaml:"command,omitempty"`
	Args    []string      `yaml:"args,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// LogFileConfig configures the rolling log file.
type LogFileConfig struct {
	Path       string `yaml:"path,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

const (
	// DefaultConfigFilename is the default settings file.
	DefaultConfigFilename = "release-updater.yaml"

	// TokenEnv is read when the settings carry no token.
	TokenEnv = "RELEASE_UPDATER_TOKEN"

	// CleanupWarn keeps the run status when cleanup fails and only flags it.
	CleanupWarn = "warn"
	// CleanupError turns a failed cleanup into an ERROR run.
	CleanupError = "error"

	// DefaultMaxLogs is how many run logs are kept.
	DefaultMaxLogs = 30
	// DefaultLockAttempts is how many times the marker is tried.
	DefaultLockAttempts = 3
	// DefaultLockDelay is the pause between marker attempts.
	DefaultLockDelay = 10 * time.Second
	// DefaultDownloadRetries is how many times a failed download is retried.
	DefaultDownloadRetries = 3
	// DefaultDownloadDelay is the pause between download attempts.
	DefaultDownloadDelay = 5 * time.Second
	// DefaultDownloadTimeout bounds one download attempt.
	DefaultDownloadTimeout = 5 * time.Minute
	// DefaultRegistryURL is the GitHub REST API root.
	DefaultRegistryURL = "https://api.github.com"

	// DefaultFilePermissions is the mode of saved settings; they may hold secrets.
	DefaultFilePermissions = 0o600

	envFilename = ".env"
)

var (
	errConfigIsNotSet        = errors.New("configuration is not set")
	errOwnerRequired         = errors.New("owner must be provided")
	errRepositoryRequired    = errors.New("repository must be provided")
	errVersionRequired       = errors.New("current_version must be provided")
	errBadVersion            = errors.New("current_version is not a semantic version")
	errBadCleanupPolicy      = errors.New("cleanup_failure must be warn or error")
	errBadLogLevel           = errors.New("unknown log_level")
	errBadMirrorURL          = errors.New("mirror url must be http(s)://... or s3://bucket[/prefix]")
	errMirrorEndpointMissing = errors.New("s3 mirror needs an endpoint")
	errNegativeValue         = errors.New("value must not be negative")
)

// Load reads configuration from the provided path, resolves the token and paths,
// then validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand settings path: %w", err)
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if cfg.Token == "" {
		cfg.Token, err = tokenFromEnv(filepath.Join(filepath.Dir(path), envFilename))
		if err != nil {
			return nil, err
		}
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields, fills defaults and normalizes paths.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	cfg.Owner = strings.TrimSpace(cfg.Owner)
	cfg.Repository = strings.TrimSpace(cfg.Repository)
	cfg.CurrentVersion = strings.TrimSpace(cfg.CurrentVersion)

	switch {
	case cfg.Owner == "":
		return errOwnerRequired
	case cfg.Repository == "":
		return errRepositoryRequired
	case cfg.CurrentVersion == "":
		return errVersionRequired
	}

	if _, err := goversion.NewVersion(cfg.CurrentVersion); err != nil {
		return fmt.Errorf("%w: %w", errBadVersion, err)
	}

	if err := checkNotNegative(cfg); err != nil {
		return err
	}

	applyDefaults(cfg)

	if cfg.CleanupFailure != CleanupWarn && cfg.CleanupFailure != CleanupError {
		return fmt.Errorf("%w: %q", errBadCleanupPolicy, cfg.CleanupFailure)
	}

	if cfg.LogLevel != "" {
		if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
			return fmt.Errorf("%w: %q", errBadLogLevel, cfg.LogLevel)
		}
	}

	if _, err := url.ParseRequestURI(cfg.RegistryURL); err != nil {
		return fmt.Errorf("invalid registry url: %w", err)
	}

	if err := validateMirror(cfg.Mirror); err != nil {
		return err
	}

	installDir, err := resolveDir(cfg.InstallDir)
	if err != nil {
		return err
	}

	cfg.InstallDir = installDir

	if cfg.LogFile.Path != "" {
		if cfg.LogFile.Path, err = homedir.Expand(cfg.LogFile.Path); err != nil {
			return fmt.Errorf("expand log file path: %w", err)
		}
	}

	cfg.Exclude.Source = normalizeRule(cfg.Exclude.Source)
	cfg.Exclude.Release = normalizeRule(cfg.Exclude.Release)

	return nil
}

// ClearStaging reports whether release contents are removed after a run.
func (c *Config) ClearStaging() bool {
	return c.Clear == nil || *c.Clear
}

func applyDefaults(cfg *Config) {
	if cfg.MaxLogs == 0 {
		cfg.MaxLogs = DefaultMaxLogs
	}

	if cfg.Lock.Attempts == 0 {
		cfg.Lock.Attempts = DefaultLockAttempts
	}

	if cfg.Lock.Delay == nil {
		cfg.Lock.Delay = lo.ToPtr(DefaultLockDelay)
	}

	if cfg.Download.Retries == nil {
		cfg.Download.Retries = lo.ToPtr(DefaultDownloadRetries)
	}

	if cfg.Download.Delay == nil {
		cfg.Download.Delay = lo.ToPtr(DefaultDownloadDelay)
	}

	if cfg.Download.Timeout == 0 {
		cfg.Download.Timeout = DefaultDownloadTimeout
	}

	if cfg.CleanupFailure == "" {
		cfg.CleanupFailure = CleanupWarn
	}

	cfg.CleanupFailure = strings.ToLower(strings.TrimSpace(cfg.CleanupFailure))

	if cfg.RegistryURL == "" {
		cfg.RegistryURL = DefaultRegistryURL
	}
}

func checkNotNegative(cfg *Config) error {
	values := map[string]int64{
		"max_logs":         int64(cfg.MaxLogs),
		"lock.attempts":    int64(cfg.Lock.Attempts),
		"lock.delay":       int64(cfg.Lock.RetryDelay()),
		"download.retries": int64(cfg.Download.RetryCount()),
		"download.delay":   int64(cfg.Download.RetryDelay()),
		"download.timeout": int64(cfg.Download.Timeout),
		"apply_delay":      int64(cfg.ApplyDelay),
	}

	for _, key := range lo.Keys(values) {
		if values[key] < 0 {
			return fmt.Errorf("%s: %w", key, errNegativeValue)
		}
	}

	return nil
}

func validateMirror(m MirrorConfig) error {
	if m.URL == "" {
		return nil
	}

	parsed, err := url.Parse(m.URL)
	if err != nil {
		return fmt.Errorf("%w: %w", errBadMirrorURL, err)
	}

	switch parsed.Scheme {
	case "http", "https":
		if parsed.Host == "" {
			return fmt.Errorf("%w: %q", errBadMirrorURL, m.URL)
		}
	case "s3":
		if parsed.Host == "" {
			return fmt.Errorf("%w: %q", errBadMirrorURL, m.URL)
		}

		if m.Endpoint == "" {
			return errMirrorEndpointMissing
		}
	default:
		return fmt.Errorf("%w: %q", errBadMirrorURL, m.URL)
	}

	return nil
}

// resolveDir expands "~" and makes dir absolute; empty means the working directory.
func resolveDir(dir string) (string, error) {
	expanded, err := homedir.Expand(strings.TrimSpace(dir))
	if err != nil {
		return "", fmt.Errorf("expand install dir: %w", err)
	}

	if expanded == "" {
		expanded = "."
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve install dir: %w", err)
	}

	return abs, nil
}

func normalizeRule(rule ExclusionRule) ExclusionRule {
	clean := func(items []string) []string {
		out := lo.Uniq(lo.FilterMap(items, func(item string, _ int) (string, bool) {
			item = strings.TrimSpace(item)

			return item, item != ""
		}))
		if len(out) == 0 {
			return nil
		}

		return out
	}

	return ExclusionRule{
		Paths:     clean(rule.Paths),
		Filenames: clean(rule.Filenames),
	}
}

// tokenFromEnv prefers the process environment, then a .env file at envPath.
func tokenFromEnv(envPath string) (string, error) {
	if token := os.Getenv(TokenEnv); token != "" {
		return token, nil
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}

		return "", fmt.Errorf("read %s: %w", envPath, err)
	}

	return values[TokenEnv], nil
}

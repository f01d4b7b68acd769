package updater

import (
	"context"
	"fmt"

	"github.com/oshokin/release-updater/internal/config"
	"github.com/oshokin/release-updater/internal/logger"
)

// Options are inputs accepted by the updater entry points.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// InstallDir overrides the install directory of the settings.
	InstallDir string
	// LogLevel overrides the log level of the settings.
	LogLevel string
}

// CheckResult describes the latest release without touching the install tree.
type CheckResult struct {
	Current     string
	Latest      string
	ArtifactURL string
	Newer       bool
}

// Run loads settings and executes one update run. The returned error covers
// setup failures only; the outcome of the run itself is in the result.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "release-updater")

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	if cfg.LogFile.Path != "" {
		l, closeLog := logger.NewWithFile(logger.AtomicLevel(), logger.RollingFile{
			Path:       cfg.LogFile.Path,
			MaxSizeMB:  cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
		})

		defer func() {
			_ = closeLog()
		}()

		ctx = logger.ToContext(ctx, l.Named("release-updater"))
	}

	u, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize updater: %w", err)
	}

	return u.Update(ctx), nil
}

// Check loads settings and reports whether a newer release exists.
func Check(ctx context.Context, opts *Options) (*CheckResult, error) {
	ctx = logger.WithName(ctx, "release-updater")

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	u, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize updater: %w", err)
	}

	return u.Check(ctx)
}

// Check asks the registry for the latest release. No lock is taken and nothing is written.
func (u *Updater) Check(ctx context.Context) (*CheckResult, error) {
	rel, err := u.registry.FetchLatest(ctx, u.cfg.Owner, u.cfg.Repository, u.cfg.Token)
	if err != nil {
		return nil, err
	}

	newer, err := isNewer(rel.Tag, u.cfg.CurrentVersion)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Latest release", "release", rel.Tag, "current", u.cfg.CurrentVersion, "newer", newer)

	return &CheckResult{
		Current:     u.cfg.CurrentVersion,
		Latest:      rel.Tag,
		ArtifactURL: rel.ArtifactURL,
		Newer:       newer,
	}, nil
}

func loadConfig(opts *Options) (*config.Config, error) {
	if opts == nil {
		opts = &Options{}
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.InstallDir != "" {
		cfg.InstallDir = opts.InstallDir
		if err = config.Validate(cfg); err != nil {
			return nil, err
		}
	}

	levelName := cfg.LogLevel
	if opts.LogLevel != "" {
		levelName = opts.LogLevel
	}

	if levelName != "" {
		if level, ok := logger.ParseLogLevel(levelName); ok {
			logger.SetLevel(level)
		}
	}

	return cfg, nil
}

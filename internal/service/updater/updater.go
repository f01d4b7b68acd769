package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/oshokin/release-updater/internal/archive"
	"github.com/oshokin/release-updater/internal/config"
	"github.com/oshokin/release-updater/internal/hook"
	"github.com/oshokin/release-updater/internal/lock"
	"github.com/oshokin/release-updater/internal/notify"
	"github.com/oshokin/release-updater/internal/release"
)

// Stopper stops processes that keep install files busy.
type Stopper interface {
	Stop(ctx context.Context) (int, error)
}

// Updater runs update runs for one configured application.
type Updater struct {
	cfg *config.Config
	fs  afero.Fs

	registry  release.Registry
	fetcher   release.Fetcher
	extractor *archive.Extractor
	archiver  *archive.Archiver
	notifier  notify.Notifier
	hook      hook.Hook
	stopper   Stopper

	// executable is replaced atomically when the release carries it.
	executable string

	sleep lock.SleepFunc
	now   func() time.Time
	newID func() string
}

// Option replaces a collaborator of the Updater.
type Option func(*Updater)

// WithFs sets the filesystem holding the install tree.
func WithFs(fsys afero.Fs) Option {
	return func(u *Updater) { u.fs = fsys }
}

// WithRegistry sets the release registry.
func WithRegistry(r release.Registry) Option {
	return func(u *Updater) { u.registry = r }
}

// WithFetcher sets the artifact fetcher.
func WithFetcher(f release.Fetcher) Option {
	return func(u *Updater) { u.fetcher = f }
}

// WithNotifier sets the failure notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(u *Updater) { u.notifier = n }
}

// WithHook sets the post-upgrade hook.
func WithHook(h hook.Hook) Option {
	return func(u *Updater) { u.hook = h }
}

// WithStopper sets the pre-apply process stopper.
func WithStopper(s Stopper) Option {
	return func(u *Updater) { u.stopper = s }
}

// WithExecutable sets the running executable path. Empty disables the atomic swap.
func WithExecutable(path string) Option {
	return func(u *Updater) { u.executable = path }
}

// WithSleep replaces every wait of a run.
func WithSleep(sleep lock.SleepFunc) Option {
	return func(u *Updater) { u.sleep = sleep }
}

// WithClock replaces the time source used for log names.
func WithClock(now func() time.Time) Option {
	return func(u *Updater) { u.now = now }
}

// New wires an Updater from validated settings. Options replace the
// collaborators that would otherwise be built from the settings.
func New(cfg *config.Config, opts ...Option) (*Updater, error) {
	u := &Updater{
		cfg:   cfg,
		sleep: lock.Sleep,
		now:   time.Now,
		newID: uuid.NewString,
	}

	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			u.executable = resolved
		}
	}

	for _, opt := range opts {
		opt(u)
	}

	if u.fs == nil {
		u.fs = afero.NewOsFs()
	}

	if u.registry == nil {
		u.registry = release.NewClient(cfg.RegistryURL)
	}

	if err := u.wireFromConfig(); err != nil {
		return nil, err
	}

	if u.notifier == nil {
		u.notifier = notify.Nop{}
	}

	u.extractor = archive.NewExtractor(u.fs)
	u.archiver = archive.NewArchiver(u.fs)

	return u, nil
}

// wireFromConfig builds the collaborators described by the settings that no option provided.
func (u *Updater) wireFromConfig() error {
	if u.fetcher == nil {
		httpFetcher := release.NewHTTPFetcher(u.cfg.Token, u.cfg.Download.Timeout)
		router := release.Router{"http": httpFetcher, "https": httpFetcher}

		if u.cfg.Mirror.Endpoint != "" {
			s3, err := release.NewS3Fetcher(release.S3Options{
				Endpoint:  u.cfg.Mirror.Endpoint,
				AccessKey: u.cfg.Mirror.AccessKey,
				SecretKey: u.cfg.Mirror.SecretKey,
				UseSSL:    u.cfg.Mirror.UseSSL,
				Region:    u.cfg.Mirror.Region,
			})
			if err != nil {
				return fmt.Errorf("configure mirror: %w", err)
			}

			router[release.SchemeS3] = s3
		}

		u.fetcher = router
	}

	if u.notifier == nil && u.cfg.Notify.Enabled() {
		mailer, err := notify.NewMailNotifier(notify.MailOptions{
			Admin:    u.cfg.Notify.Admin,
			Mailer:   u.cfg.Notify.Mailer,
			Addr:     u.cfg.Notify.SMTPAddr,
			Username: u.cfg.Notify.Username,
			Password: u.cfg.Notify.Password,
		})
		if err != nil {
			return fmt.Errorf("configure mail: %w", err)
		}

		u.notifier = mailer
	}

	if u.hook == nil && u.cfg.PostUpgrade.Command != "" {
		cmd, err := hook.NewCommand(u.cfg.PostUpgrade.Command, u.cfg.PostUpgrade.Args, u.cfg.PostUpgrade.Timeout)
		if err != nil {
			return fmt.Errorf("configure post-upgrade command: %w", err)
		}

		u.hook = cmd
	}

	if u.stopper == nil && len(u.cfg.StopProcesses) > 0 {
		u.stopper = hook.NewProcessStopper(u.cfg.StopProcesses)
	}

	return nil
}

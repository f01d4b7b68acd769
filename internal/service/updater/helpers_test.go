package updater

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/release-updater/internal/config"
	"github.com/oshokin/release-updater/internal/domain/update"
)

const (
	testRoot     = "/srv/shop"
	testArtifact = "https://codeload.example.test/acme/shop/zip/v1.3.0"
)

//nolint:gochecknoglobals // Fixed clock for deterministic log names.
var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type fakeRegistry struct {
	release *update.Release
	err     error
	calls   int
}

func (f *fakeRegistry) FetchLatest(context.Context, string, string, string) (*update.Release, error) {
	f.calls++

	return f.release, f.err
}

// fakeFetcher fails the first failures calls, or every call when failures is negative.
type fakeFetcher struct {
	payload  []byte
	failures int
	urls     []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, w io.Writer) error {
	f.urls = append(f.urls, rawURL)

	if f.failures < 0 || len(f.urls) <= f.failures {
		return fmt.Errorf("%w: get %s: 502 Bad Gateway", update.ErrRemoteFetch, rawURL)
	}

	_, err := w.Write(f.payload)

	return err
}

type captureNotifier struct {
	reports []update.Report
}

func (c *captureNotifier) Notify(_ context.Context, r update.Report) error {
	c.reports = append(c.reports, r)

	return nil
}

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)

	return nil
}

// failRemoveFs refuses to remove one path.
type failRemoveFs struct {
	afero.Fs

	path string
}

func (f *failRemoveFs) Remove(name string) error {
	if filepath.Clean(name) == f.path {
		return fmt.Errorf("remove %s: device or resource busy", name)
	}

	return f.Fs.Remove(name)
}

// fixture bundles the fakes of one test run.
type fixture struct {
	fs       afero.Fs
	cfg      *config.Config
	registry *fakeRegistry
	fetcher  *fakeFetcher
	notifier *captureNotifier
	sleeps   *sleepRecorder
}

func newFixture(t *testing.T, tag string, release map[string]string) *fixture {
	t.Helper()

	cfg := &config.Config{
		Owner:          "acme",
		Repository:     "shop",
		CurrentVersion: "1.2.0",
		InstallDir:     testRoot,
		Info:           "eu-1",
	}
	require.NoError(t, config.Validate(cfg))

	return &fixture{
		fs:       afero.NewMemMapFs(),
		cfg:      cfg,
		registry: &fakeRegistry{release: &update.Release{Tag: tag, ArtifactURL: testArtifact}},
		fetcher:  &fakeFetcher{payload: zipball(t, release)},
		notifier: &captureNotifier{},
		sleeps:   &sleepRecorder{},
	}
}

func (f *fixture) updater(t *testing.T, opts ...Option) *Updater {
	t.Helper()

	base := []Option{
		WithFs(f.fs),
		WithRegistry(f.registry),
		WithFetcher(f.fetcher),
		WithNotifier(f.notifier),
		WithSleep(f.sleeps.sleep),
		WithClock(func() time.Time { return testNow }),
		WithExecutable(""),
	}

	u, err := New(f.cfg, append(base, opts...)...)
	require.NoError(t, err)

	return u
}

// zipball builds an archive whose entries live under one top-level directory
// named like a code host snapshot. Keys ending with "/" are directories.
func zipball(t *testing.T, entries map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	_, err := zw.Create("acme-shop-1a2b3c4/")
	require.NoError(t, err)

	for rel, content := range entries {
		name := "acme-shop-1a2b3c4/" + rel

		w, err := zw.Create(name)
		require.NoError(t, err)

		if !strings.HasSuffix(name, "/") {
			_, err = w.Write([]byte(content))
			require.NoError(t, err)
		}
	}

	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func writeTree(t *testing.T, fsys afero.Fs, root string, entries map[string]string) {
	t.Helper()

	for rel, content := range entries {
		path := filepath.Join(root, filepath.FromSlash(rel))

		if strings.HasSuffix(rel, "/") {
			require.NoError(t, fsys.MkdirAll(path, 0o755))

			continue
		}

		require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644))
	}
}

func readFile(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()

	content, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)

	return string(content)
}

func exists(t *testing.T, fsys afero.Fs, path string) bool {
	t.Helper()

	ok, err := afero.Exists(fsys, path)
	require.NoError(t, err)

	return ok
}

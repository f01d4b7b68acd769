package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oshokin/release-updater/internal/domain/update"
)

// DefaultDownloadTimeout bounds one artifact download.
const DefaultDownloadTimeout = 5 * time.Minute

var errUnsupportedScheme = errors.New("unsupported artifact url scheme")

// Fetcher copies the artifact behind rawURL into w.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, w io.Writer) error
}

// HTTPFetcher downloads artifacts over HTTP(S).
type HTTPFetcher struct {
	http  *http.Client
	token string
}

// NewHTTPFetcher creates a fetcher. The token, when set, is sent as a bearer
// credential, which private repositories require for their archives.
func NewHTTPFetcher(token string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}

	return &HTTPFetcher{
		http:  &http.Client{Timeout: timeout},
		token: token,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: create request: %w", update.ErrRemoteFetch, err)
	}

	setHeaders(req, f.token)

	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: get %s: %w", update.ErrRemoteFetch, rawURL, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: get %s: %s", update.ErrRemoteFetch, rawURL, resp.Status)
	}

	if _, err = io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: read %s: %w", update.ErrRemoteFetch, rawURL, err)
	}

	return nil
}

// Router dispatches to a fetcher by URL scheme.
type Router map[string]Fetcher

// Fetch implements Fetcher.
func (r Router) Fetch(ctx context.Context, rawURL string, w io.Writer) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: parse %q: %w", update.ErrRemoteFetch, rawURL, err)
	}

	fetcher, ok := r[strings.ToLower(parsed.Scheme)]
	if !ok {
		return fmt.Errorf("%w: %w %q", update.ErrRemoteFetch, errUnsupportedScheme, parsed.Scheme)
	}

	return fetcher.Fetch(ctx, rawURL, w)
}

// MirrorURL composes the mirror location of a release artifact:
// <base>/<repository>-<tag>.zip.
func MirrorURL(base, repository, tag string) string {
	return strings.TrimRight(base, "/") + "/" + repository + "-" + tag + ".zip"
}

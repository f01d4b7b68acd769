package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oshokin/release-updater/internal/domain/update"
	"github.com/oshokin/release-updater/internal/version"
)

const (
	// DefaultRegistryURL is the GitHub REST API root.
	DefaultRegistryURL = "https://api.github.com"
	// DefaultTimeout bounds one metadata request.
	DefaultTimeout = 30 * time.Second

	apiVersion      = "2022-11-28"
	acceptMediaType = "application/vnd.github+json"
	// maxErrorBody caps how much of an error response ends up in the message.
	maxErrorBody = 512
)

// Registry answers which release is the latest one for a repository.
type Registry interface {
	FetchLatest(ctx context.Context, owner, repository, token string) (*update.Release, error)
}

// Client is a Registry backed by the GitHub releases API.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		if c != nil {
			client.http = c
		}
	}
}

// NewClient creates a registry client. An empty baseURL selects DefaultRegistryURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultRegistryURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type latestResponse struct {
	TagName    string `json:"tag_name"`
	ZipballURL string `json:"zipball_url"`
}

// FetchLatest requests the latest release. Every failure, including a
// response without tag or archive URL, wraps update.ErrRemoteFetch.
func (c *Client) FetchLatest(ctx context.Context, owner, repository, token string) (*update.Release, error) {
	endpoint := c.baseURL + "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repository) + "/releases/latest"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", update.ErrRemoteFetch, err)
	}

	setHeaders(req, token)
	req.Header.Set("Accept", acceptMediaType)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", update.ErrRemoteFetch, endpoint, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return nil, fmt.Errorf("%w: get %s: %s: %s", update.ErrRemoteFetch, endpoint, resp.Status, strings.TrimSpace(string(body)))
	}

	var latest latestResponse
	if err = json.NewDecoder(resp.Body).Decode(&latest); err != nil {
		return nil, fmt.Errorf("%w: decode latest release: %w", update.ErrRemoteFetch, err)
	}

	if latest.TagName == "" || latest.ZipballURL == "" {
		return nil, fmt.Errorf("%w: latest release of %s/%s has no tag or archive url", update.ErrRemoteFetch, owner, repository)
	}

	return &update.Release{
		Tag:         latest.TagName,
		ArtifactURL: latest.ZipballURL,
	}, nil
}

func setHeaders(req *http.Request, token string) {
	req.Header.Set("User-Agent", version.UserAgent())

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

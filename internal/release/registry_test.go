package release

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/release-updater/internal/domain/update"
)

func TestClient_FetchLatest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/shop/releases/latest", r.URL.Path)
		require.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		require.Equal(t, "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "release-updater/"))

		_, _ = w.Write([]byte(`{"tag_name":"v1.3.0","zipball_url":"https://example.test/zip","name":"ignored"}`))
	}))
	defer srv.Close()

	rel, err := NewClient(srv.URL+"/").FetchLatest(context.Background(), "acme", "shop", "secret")
	require.NoError(t, err)
	require.Equal(t, &update.Release{Tag: "v1.3.0", ArtifactURL: "https://example.test/zip"}, rel)
}

func TestClient_FetchLatestWithoutToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{"tag_name":"1.0.0","zipball_url":"https://example.test/zip"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).FetchLatest(context.Background(), "acme", "shop", "")
	require.NoError(t, err)
}

func TestClient_FetchLatestFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "not found", status: http.StatusNotFound, body: `{"message":"Not Found"}`},
		{name: "malformed json", status: http.StatusOK, body: `{"tag_name":`},
		{name: "missing tag", status: http.StatusOK, body: `{"zipball_url":"https://example.test/zip"}`},
		{name: "missing archive", status: http.StatusOK, body: `{"tag_name":"1.0.0"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).FetchLatest(context.Background(), "acme", "shop", "")
			require.ErrorIs(t, err, update.ErrRemoteFetch)
		})
	}
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/archive.zip" {
			http.NotFound(w, r)

			return
		}

		require.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("PK-content"))
	}))
	defer srv.Close()

	fetcher := NewHTTPFetcher("tkn", 0)

	var buf bytes.Buffer
	require.NoError(t, fetcher.Fetch(context.Background(), srv.URL+"/archive.zip", &buf))
	require.Equal(t, "PK-content", buf.String())

	err := fetcher.Fetch(context.Background(), srv.URL+"/missing.zip", &buf)
	require.ErrorIs(t, err, update.ErrRemoteFetch)
}

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newManifestServer(t *testing.T, handler http.HandlerFunc) *Client {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(ts.URL)
}

func TestGetManifest(t *testing.T) {
	c := newManifestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/packages.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"hoop/secretsmanager":{"versions":[{"name":"secretsmanager","version":"1.0.0"}]}}`))
	})
	m, err := c.GetManifest(context.Background())
	require.NoError(t, err)
	require.Len(t, m, 1)
	require.Equal(t, "1.0.0", m["hoop/secretsmanager"].Versions[0].Version)
}

func TestGetManifestMalformedJSON(t *testing.T) {
	c := newManifestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"hoop/secretsmanager":`))
	})
	_, err := c.GetManifest(context.Background())
	require.ErrorContains(t, err, "failed to decode manifest")
}

func TestGetManifestUnexpectedStatusCode(t *testing.T) {
	c := newManifestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := c.GetManifest(context.Background())
	require.ErrorContains(t, err, "unexpected status code: 403")
}

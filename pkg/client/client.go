// Package client reads the plugin registry manifest over HTTP.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hoophq/plugin-secretsmanager/pkg/registry"
)

const manifestFileName = "packages.json"

type Client struct {
	registryURL string
	httpClient  *retryablehttp.Client
}

func New(registryURL string) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.Logger = nil
	httpClient.HTTPClient.Timeout = time.Minute
	return &Client{
		registryURL: registryURL,
		httpClient:  httpClient,
	}
}

// GetManifest fetches and decodes the current packages.json document from
// the registry's public read endpoint. The read is unauthenticated.
func (c *Client) GetManifest(ctx context.Context) (registry.Manifest, error) {
	manifestURL, err := url.JoinPath(c.registryURL, manifestFileName)
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json; charset=utf-8")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	var m registry.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return m, nil
}

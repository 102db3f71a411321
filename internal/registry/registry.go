// Package registry probes the tool registry and its download storage.
// Downloading and extracting tools belongs to the desktop shell; the
// core only verifies the endpoints answer before the shell commits to
// a download.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"dvbox/internal/config"
	"dvbox/internal/dverrors"
	"dvbox/pkg/logging"
)

const (
	probeTimeout = 30 * time.Second
	maxRedirects = 5
	apiKeyHeader = "x-api-key"
)

// Client checks reachability of the registry endpoints.
type Client struct {
	httpClient *http.Client
	env        config.Env
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the probe transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a probe client for the endpoints in env.
func New(env config.Env, opts ...Option) *Client {
	c := &Client{httpClient: newProbeClient(), env: env}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newProbeClient builds the transport with the download-path limits: a
// 30-second overall deadline and at most 5 redirects.
func newProbeClient() *http.Client {
	hc := cleanhttp.DefaultClient()
	hc.Timeout = probeTimeout
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	return hc
}

// CheckRegistry verifies the registry API answers with the configured
// key.
func (c *Client) CheckRegistry(ctx context.Context) error {
	if c.env.RegistryURL == "" {
		return dverrors.New(dverrors.KindConfiguration,
			"no registry URL configured; set DVBOX_REGISTRY_URL")
	}
	var header http.Header
	if c.env.RegistryKey != "" {
		header = http.Header{}
		header.Set(apiKeyHeader, c.env.RegistryKey)
	}
	return c.probe(ctx, c.env.RegistryURL, header)
}

// CheckDownloads verifies the storage endpoint tools download from.
func (c *Client) CheckDownloads(ctx context.Context) error {
	if c.env.BlobBaseURL == "" {
		return dverrors.New(dverrors.KindConfiguration,
			"no download URL configured; set DVBOX_BLOB_BASE_URL")
	}
	return c.probe(ctx, c.env.BlobBaseURL, nil)
}

// probe HEADs the endpoint. Any answer below 500 other than an auth
// rejection counts as reachable; the probe asks "is the endpoint
// there", not "does this exact path exist".
func (c *Client) probe(ctx context.Context, rawURL string, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return dverrors.Wrap(dverrors.KindConfiguration,
			fmt.Sprintf("invalid endpoint %s", rawURL), err)
	}
	for name, values := range header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	logging.Debug("Registry", "HEAD %s", rawURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dverrors.Wrap(dverrors.KindNetwork,
			fmt.Sprintf("endpoint %s did not answer", rawURL), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return dverrors.Newf(dverrors.KindPermissionDenied,
			"endpoint %s rejected the configured key (HTTP %d)", rawURL, resp.StatusCode)
	case resp.StatusCode >= 500:
		return dverrors.Newf(dverrors.KindService,
			"endpoint %s answered HTTP %d", rawURL, resp.StatusCode)
	}
	return nil
}

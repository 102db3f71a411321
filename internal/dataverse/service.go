package dataverse

import (
	"context"
	"fmt"
	"net/http"

	"dvbox/internal/connection"
	"dvbox/internal/httpclient"
)

// TokenSource yields a connection snapshot and an access token ready to
// present. The token gateway implements it.
type TokenSource interface {
	GetUsableToken(ctx context.Context, connectionID string) (*connection.Connection, string, error)
}

// Service is the Dataverse Web API façade. Every operation resolves a
// token through the gateway first, then issues the per-operation
// request against the connection's environment URL.
type Service struct {
	tokens TokenSource
	api    *httpclient.Client
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient substitutes the transport for all Web API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) {
		if hc != nil {
			s.api = httpclient.New(httpclient.WithHTTPClient(hc))
		}
	}
}

// NewService creates a façade over the given token source.
func NewService(tokens TokenSource, opts ...Option) *Service {
	s := &Service{
		tokens: tokens,
		api:    httpclient.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// includeAnnotations asks the service to return lookup and formatted
// value annotations alongside raw values.
const includeAnnotations = `odata.include-annotations="*"`

// call resolves the connection's token and performs one request. The
// build callback receives the environment base URL and returns the
// request to send; the access token is filled in here.
func (s *Service) call(ctx context.Context, connectionID string, build func(baseURL string) httpclient.Request) (*httpclient.Response, error) {
	conn, token, err := s.tokens.GetUsableToken(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	req := build(conn.URL)
	req.AccessToken = token
	return s.api.Do(ctx, req)
}

// WhoAmI reports the calling user's identity in the connection's
// environment.
func (s *Service) WhoAmI(ctx context.Context, connectionID string) (map[string]interface{}, error) {
	resp, err := s.call(ctx, connectionID, func(baseURL string) httpclient.Request {
		return httpclient.Request{
			Method: http.MethodGet,
			URL:    httpclient.APIURL(baseURL, "WhoAmI"),
		}
	})
	if err != nil {
		return nil, fmt.Errorf("whoami failed: %w", err)
	}
	return resp.Data, nil
}

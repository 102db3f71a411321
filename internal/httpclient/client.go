package httpclient

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-cleanhttp"

	"dvbox/internal/dverrors"
	"dvbox/pkg/logging"
)

// APIVersion is the Dataverse Web API version all operation paths
// target. It is the only version knob in the system.
const APIVersion = "v9.2"

// Client is the single request primitive for the Dataverse Web API.
// It owns header assembly and error envelope parsing; callers build
// URLs and bodies.
type Client struct {
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client, mainly for
// tests and for the desktop shell's proxied transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a Client backed by a pooled transport.
func New(opts ...Option) *Client {
	c := &Client{httpClient: cleanhttp.DefaultPooledClient()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes one Web API call.
type Request struct {
	Method      string
	URL         string
	AccessToken string

	// Body is JSON-encoded when non-nil.
	Body interface{}

	// PreferOptions are appended to the always-present
	// return=representation preference.
	PreferOptions []string

	// Headers are pre-validated caller headers. Fixed headers win on
	// conflict.
	Headers map[string]string
}

// Response is the parsed result of a 2xx Web API call. Headers are
// lowercased; metadata creates surface their new id only through
// odata-entityid, so header access must be case-insensitive.
type Response struct {
	Data    map[string]interface{}
	Headers map[string]string
}

// Do executes one request against the Web API.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	// Caller headers first so the fixed set below always wins.
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("OData-MaxVersion", "4.0")
	httpReq.Header.Set("OData-Version", "4.0")
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("Prefer", preferHeader(req.PreferOptions))

	logging.Debug("HTTP", "%s %s", req.Method, req.URL)
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, dverrors.Wrap(dverrors.KindNetwork, "request to Dataverse failed", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, dverrors.Wrap(dverrors.KindNetwork, "read Dataverse response", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, serviceError(httpResp.StatusCode, raw)
	}

	data := map[string]interface{}{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, dverrors.Wrap(dverrors.KindService,
				fmt.Sprintf("Dataverse returned unparseable JSON (status %d)", httpResp.StatusCode), err)
		}
	}

	return &Response{Data: data, Headers: lowercaseHeaders(httpResp.Header)}, nil
}

// GetXML fetches an XML document (the CSDL metadata document) with
// compression negotiated explicitly. Setting Accept-Encoding disables
// Go's transparent decompression, so gzip and deflate bodies are
// decoded here, error responses included.
func (c *Client) GetXML(ctx context.Context, rawURL, accessToken string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Accept", "application/xml")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate")

	logging.Debug("HTTP", "GET %s (xml)", rawURL)
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", dverrors.Wrap(dverrors.KindNetwork, "request to Dataverse failed", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", dverrors.Wrap(dverrors.KindNetwork, "read Dataverse response", err)
	}

	decoded, err := decompress(httpResp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		return "", dverrors.Wrap(dverrors.KindNetwork, "decompress Dataverse response", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return "", serviceError(httpResp.StatusCode, decoded)
	}
	return string(decoded), nil
}

func preferHeader(options []string) string {
	parts := append([]string{"return=representation"}, options...)
	return strings.Join(parts, ",")
}

// serviceError parses the OData error envelope when present and falls
// back to the raw body.
func serviceError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	code := ""
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
		code = envelope.Error.Code
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &dverrors.ServiceError{Status: status, Code: code, Message: message}
}

func lowercaseHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		out[strings.ToLower(name)] = values[0]
	}
	return out
}

// decompress reverses the named Content-Encoding. Deflate is tried as
// zlib first because Dataverse sends RFC 1950 streams, with a raw
// flate fallback for servers that do not.
func decompress(encoding string, body []byte) ([]byte, error) {
	switch {
	case encoding == "" || len(body) == 0:
		return body, nil
	case strings.Contains(encoding, "gzip"):
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case strings.Contains(encoding, "deflate"):
		if r, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer r.Close()
			if out, err := io.ReadAll(r); err == nil {
				return out, nil
			}
		}
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return io.ReadAll(r)
	default:
		return body, nil
	}
}

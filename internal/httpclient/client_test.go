package httpclient

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvbox/internal/dverrors"
)

func TestDoSetsFixedHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"value":[]}`))
	}))
	defer server.Close()

	client := New()
	_, err := client.Do(context.Background(), Request{
		Method:      http.MethodGet,
		URL:         server.URL + "/api/data/v9.2/accounts",
		AccessToken: "tok",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "4.0", got.Get("OData-MaxVersion"))
	assert.Equal(t, "4.0", got.Get("OData-Version"))
	assert.Equal(t, "application/json; charset=utf-8", got.Get("Content-Type"))
	assert.Equal(t, "return=representation", got.Get("Prefer"))
}

func TestDoPreferOptionsJoined(t *testing.T) {
	var prefer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefer = r.Header.Get("Prefer")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New()
	_, err := client.Do(context.Background(), Request{
		Method:        http.MethodGet,
		URL:           server.URL,
		AccessToken:   "tok",
		PreferOptions: []string{`odata.include-annotations="*"`, "odata.maxpagesize=100"},
	})
	require.NoError(t, err)

	assert.Equal(t, `return=representation,odata.include-annotations="*",odata.maxpagesize=100`, prefer)
}

func TestDoCallerHeadersCannotOverrideFixed(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New()
	_, err := client.Do(context.Background(), Request{
		Method:      http.MethodGet,
		URL:         server.URL,
		AccessToken: "tok",
		Headers: map[string]string{
			"Authorization":            "Bearer forged",
			"MSCRM.SolutionUniqueName": "mysolution",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "mysolution", got.Get("MSCRM.SolutionUniqueName"))
}

func TestDoSendsJSONBodyWithLength(t *testing.T) {
	var body []byte
	var contentLength int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentLength = r.ContentLength
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		body = buf.Bytes()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := New()
	resp, err := client.Do(context.Background(), Request{
		Method:      http.MethodPost,
		URL:         server.URL,
		AccessToken: "tok",
		Body:        map[string]interface{}{"name": "Contoso"},
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{"name":"Contoso"}`, string(body))
	assert.Equal(t, int64(len(body)), contentLength)
	assert.Empty(t, resp.Data, "204 bodies parse to an empty object")
}

func TestDoLowercasesHeadersAndKeepsEntityID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("OData-EntityId", "https://org.crm.dynamics.com/api/data/v9.2/accounts(11111111-2222-3333-4444-555555555555)")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := New()
	resp, err := client.Do(context.Background(), Request{Method: http.MethodPost, URL: server.URL, AccessToken: "tok"})
	require.NoError(t, err)

	assert.Contains(t, resp.Headers, "odata-entityid")
	assert.NotContains(t, resp.Headers, "OData-EntityId")
}

func TestDoParsesODataErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"0x80040203","message":"Invalid attribute."}}`))
	}))
	defer server.Close()

	client := New()
	_, err := client.Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL, AccessToken: "tok"})
	require.Error(t, err)

	var se *dverrors.ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Equal(t, "0x80040203", se.Code)
	assert.Equal(t, "Invalid attribute.", se.Message)
}

func TestDoRawBodyFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := New()
	_, err := client.Do(context.Background(), Request{Method: http.MethodGet, URL: server.URL, AccessToken: "tok"})

	var se *dverrors.ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.Equal(t, "upstream exploded", se.Message)
}

func TestDoNetworkErrorKind(t *testing.T) {
	client := New()
	// Closed server → transport-level failure.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := client.Do(context.Background(), Request{Method: http.MethodGet, URL: url, AccessToken: "tok"})
	assert.True(t, dverrors.IsKind(err, dverrors.KindNetwork))
}

func TestGetXMLGzip(t *testing.T) {
	const doc = `<?xml version="1.0"?><edmx:Edmx/>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/xml", r.Header.Get("Accept"))
		assert.Equal(t, "gzip, deflate", r.Header.Get("Accept-Encoding"))

		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		zw.Write([]byte(doc))
		zw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	client := New()
	got, err := client.GetXML(context.Background(), server.URL+"/api/data/v9.2/$metadata", "tok")
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestGetXMLDeflate(t *testing.T) {
	const doc = `<edmx:Edmx/>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		zw.Write([]byte(doc))
		zw.Close()
		w.Header().Set("Content-Encoding", "deflate")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	client := New()
	got, err := client.GetXML(context.Background(), server.URL, "tok")
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestGetXMLDecompressesErrorBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		zw.Write([]byte(`{"error":{"code":"","message":"metadata unavailable"}}`))
		zw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	client := New()
	_, err := client.GetXML(context.Background(), server.URL, "tok")

	var se *dverrors.ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "metadata unavailable", se.Message)
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"https://org.crm.dynamics.com", "api/data/v9.2/accounts", "https://org.crm.dynamics.com/api/data/v9.2/accounts"},
		{"https://org.crm.dynamics.com/", "api/data/v9.2/accounts", "https://org.crm.dynamics.com/api/data/v9.2/accounts"},
		{"https://org.crm.dynamics.com/", "/api/data/v9.2/accounts", "https://org.crm.dynamics.com/api/data/v9.2/accounts"},
		{"https://org.crm.dynamics.com", "/api", "https://org.crm.dynamics.com/api"},
	}
	for _, test := range tests {
		if got := JoinURL(test.base, test.path); got != test.want {
			t.Errorf("JoinURL(%q, %q) = %q, expected %q", test.base, test.path, got, test.want)
		}
	}
}

func TestAPIURL(t *testing.T) {
	got := APIURL("https://org.crm.dynamics.com/", "contacts(a1b2)")
	assert.Equal(t, "https://org.crm.dynamics.com/api/data/v9.2/contacts(a1b2)", got)
}

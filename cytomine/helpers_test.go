package cytomine

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Financial-Times/go-logger/v2"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPublicKey  = "3b7a3f7e-public"
	testPrivateKey = "a1c4e2d9-private"
)

func testConfig(host string) Config {
	return Config{
		Host:         host,
		PublicKey:    testPublicKey,
		PrivateKey:   testPrivateKey,
		RetryMax:     1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Registry:     metrics.NewRegistry(),
	}
}

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	return newTestClientWithConfig(t, h, func(*Config) {})
}

func newTestClientWithConfig(t *testing.T, h http.Handler, configure func(*Config)) (*Client, *httptest.Server) {
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	configure(&cfg)

	c, err := NewClient(cfg, server.Client(), logger.NewUPPLogger("test", "debug"))
	require.NoError(t, err)
	return c, server
}

// assertSigned checks the Cytomine headers the way the core verifies them.
func assertSigned(t *testing.T, r *http.Request) {
	token := r.Method + "\n\n" + r.Header.Get("Content-Type") + "\n" + r.Header.Get("Date") + "\n" + r.RequestURI
	assert.Equal(t, "CYTOMINE "+testPublicKey+":"+signature(testPrivateKey, token), r.Header.Get("Authorization"))
	assert.Equal(t, "XMLHTTPRequest", r.Header.Get("X-Requested-With"))
	assert.Equal(t, acceptHeader, r.Header.Get("Accept"))
	assert.NotEmpty(t, r.Header.Get(requestIDHeader))
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func boolPtr(b bool) *bool {
	return &b
}

package cytomine

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Financial-Times/go-logger/v2"
	tid "github.com/Financial-Times/transactionid-utils-go"
	"github.com/husobee/vestigo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientInvalidConfig(t *testing.T) {
	log := logger.NewUPPLogger("test", "debug")

	testCases := []struct {
		name        string
		cfg         Config
		expectedErr string
	}{
		{"missing host", Config{PublicKey: "a", PrivateKey: "b"}, "invalid config: host required"},
		{"missing public key", Config{Host: "h", PrivateKey: "b"}, "invalid config: public key required"},
		{"missing private key", Config{Host: "h", PublicKey: "a"}, "invalid config: private key required"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewClient(tc.cfg, nil, log)
			assert.Nil(t, c)
			assert.EqualError(t, err, tc.expectedErr)
		})
	}
}

func TestEndpoint(t *testing.T) {
	c, err := NewClient(Config{Host: "https://demo.cytomine.coop/", PublicKey: "a", PrivateKey: "b"}, nil, logger.NewUPPLogger("test", "debug"))
	require.NoError(t, err)

	assert.Equal(t, "demo.cytomine.coop", c.Host())
	assert.Equal(t, "https://demo.cytomine.coop/api/", c.Endpoint())
}

func TestGet(t *testing.T) {
	r := vestigo.NewRouter()
	r.Get("/api/project.json", func(w http.ResponseWriter, r *http.Request) {
		assertSigned(t, r)
		assert.Empty(t, r.Header.Get("Content-Type"))
		assert.Equal(t, "tid_test", r.Header.Get(requestIDHeader))
		assert.Equal(t, "5", r.URL.Query().Get("max"))
		writeJSON(w, http.StatusOK, `{"name":"demo"}`)
	})
	c, _ := newTestClient(t, r)

	ctx := tid.TransactionAwareContext(context.Background(), "tid_test")
	var out map[string]string
	err := c.Get(ctx, "project.json", url.Values{"max": {"5"}}, &out)

	require.NoError(t, err)
	assert.Equal(t, "demo", out["name"])
}

func TestPostSendsJSON(t *testing.T) {
	r := vestigo.NewRouter()
	r.Post("/api/term.json", func(w http.ResponseWriter, r *http.Request) {
		assertSigned(t, r)
		assert.Equal(t, contentTypeJSON, r.Header.Get("Content-Type"))
		writeJSON(w, http.StatusCreated, `{"ok":true}`)
	})
	c, _ := newTestClient(t, r)

	var out map[string]bool
	err := c.Post(context.Background(), "term.json", nil, map[string]string{"name": "tumor"}, &out)

	require.NoError(t, err)
	assert.True(t, out["ok"])
}

func TestErrorResponses(t *testing.T) {
	r := vestigo.NewRouter()
	r.Get("/api/project/404.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"errors":"Project not found with id 404"}`)
	})
	r.Get("/api/project/401.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"bad keys"}`)
	})
	r.Get("/api/project/400.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("plain failure"))
	})
	r.Get("/api/project/302.json", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	c, server := newTestClient(t, r)

	testCases := []struct {
		uri         string
		expectedIs  error
		expectedErr string
	}{
		{
			uri:         "project/404.json",
			expectedIs:  ErrNotFound,
			expectedErr: "GET " + server.URL + "/api/project/404.json returned a 404 status code: Project not found with id 404",
		},
		{
			uri:         "project/401.json",
			expectedIs:  ErrUnauthorized,
			expectedErr: "GET " + server.URL + "/api/project/401.json returned a 401 status code: bad keys",
		},
		{
			uri:         "project/400.json",
			expectedErr: "GET " + server.URL + "/api/project/400.json returned a 400 status code: plain failure",
		},
		{
			uri:         "project/302.json",
			expectedErr: "HTTP return code : 302. URL was redirected to /login.",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.uri, func(t *testing.T) {
			err := c.Get(context.Background(), tc.uri, nil, nil)
			assert.EqualError(t, err, tc.expectedErr)
			if tc.expectedIs != nil {
				assert.True(t, errors.Is(err, tc.expectedIs))
			}
		})
	}

	var redirect *RedirectError
	err := c.Get(context.Background(), "project/302.json", nil, nil)
	require.True(t, errors.As(err, &redirect))
	assert.Equal(t, http.StatusFound, redirect.StatusCode)
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls int32
	r := vestigo.NewRouter()
	r.Get("/api/ontology.json", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assertSigned(t, r)
		writeJSON(w, http.StatusOK, `{"collection":[]}`)
	})
	c, _ := newTestClient(t, r)

	err := c.Get(context.Background(), "ontology.json", nil, nil)

	assert.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRetriesExhausted(t *testing.T) {
	var calls int32
	r := vestigo.NewRouter()
	r.Get("/api/ontology.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusInternalServerError, `{"errors":"boom"}`)
	})
	c, _ := newTestClient(t, r)

	err := c.Get(context.Background(), "ontology.json", nil, nil)

	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusInternalServerError, respErr.StatusCode)
	assert.Equal(t, "boom", respErr.Message)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRetryPolicy(t *testing.T) {
	testCases := []struct {
		name          string
		status        int
		expectedCalls int32
	}{
		{"too many requests", http.StatusTooManyRequests, 2},
		{"service unavailable", http.StatusServiceUnavailable, 2},
		{"bad gateway", http.StatusBadGateway, 2},
		{"not implemented", http.StatusNotImplemented, 1},
		{"not found", http.StatusNotFound, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int32
			r := vestigo.NewRouter()
			r.Get("/api/ontology.json", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				writeJSON(w, tc.status, `{"errors":"nope"}`)
			})
			c, _ := newTestClient(t, r)

			err := c.Get(context.Background(), "ontology.json", nil, nil)

			var respErr *ResponseError
			require.True(t, errors.As(err, &respErr))
			assert.Equal(t, tc.status, respErr.StatusCode)
			assert.Equal(t, tc.expectedCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestTimeout(t *testing.T) {
	r := vestigo.NewRouter()
	r.Get("/api/project.json", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	c, _ := newTestClient(t, r)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Get(ctx, "project.json", nil, nil)
	assert.True(t, errors.Is(err, ErrServiceTimeout))
}

func TestResponseCache(t *testing.T) {
	var calls, revalidated int32
	r := vestigo.NewRouter()
	r.Get("/api/project/1.json", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			atomic.AddInt32(&revalidated, 1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		writeJSON(w, http.StatusOK, `{"id":1,"name":"cached"}`)
	})
	c, _ := newTestClientWithConfig(t, r, func(cfg *Config) {
		cfg.UseCache = true
		cfg.CacheSize = 8
	})

	for i := 0; i < 2; i++ {
		p := &Project{}
		p.ID = 1
		require.NoError(t, c.FetchModel(context.Background(), p, nil))
		assert.Equal(t, "cached", p.Name)
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&revalidated))
	assert.Equal(t, 1, c.cache.len())
}

func TestMetricsAreRecorded(t *testing.T) {
	r := vestigo.NewRouter()
	r.Get("/api/project.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})
	c, _ := newTestClient(t, r)

	require.NoError(t, c.Get(context.Background(), "project.json", nil, nil))

	timer, ok := c.registry.Get("cytomine.client.get").(interface{ Count() int64 })
	require.True(t, ok)
	assert.Equal(t, int64(1), timer.Count())
}

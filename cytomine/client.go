package cytomine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Financial-Times/go-logger/v2"
	tid "github.com/Financial-Times/transactionid-utils-go"
	"github.com/rcrowley/go-metrics"
)

const (
	basePath        = "/api/"
	acceptHeader    = "application/json, */*"
	contentTypeJSON = "application/json"
	requestIDHeader = "X-Request-Id"
)

// Config holds the connection settings of a Client.
type Config struct {
	Host       string // Cytomine host, with or without scheme
	PublicKey  string
	PrivateKey string
	Protocol   string // scheme used when Host has none

	UseCache  bool
	CacheSize int

	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	Registry metrics.Registry
}

// Validate checks that the credentials triple is present.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.New("host required")
	}
	if c.PublicKey == "" {
		return errors.New("public key required")
	}
	if c.PrivateKey == "" {
		return errors.New("private key required")
	}
	return nil
}

type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// A Client is an authenticated connection to a Cytomine server. It is safe for
// concurrent use.
type Client struct {
	host   string
	scheme string

	mu          sync.RWMutex
	keys        signer
	currentUser *CurrentUser

	client    httpClient
	transfers httpClient
	cache     *responseCache
	registry  metrics.Registry
	logger    *logger.UPPLogger
	now       func() time.Time
}

// response is a fully read HTTP answer.
type response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// NewClient returns a Client for cfg. No request is made until Connect or
// another operation is called. A nil httpClient gets a default HTTP/2 capable
// client.
func NewClient(cfg Config, hc *http.Client, log *logger.UPPLogger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if hc == nil {
		hc = &http.Client{Transport: NewTransport(nil)}
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = defaultRetryMax
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = defaultRetryWaitMin
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = defaultRetryWaitMax
	}
	if cfg.Registry == nil {
		cfg.Registry = metrics.DefaultRegistry
	}

	base := *hc
	base.CheckRedirect = noRedirect

	host, scheme := ParseHost(cfg.Host, cfg.Protocol)
	c := &Client{
		host:      host,
		scheme:    scheme,
		keys:      signer{publicKey: cfg.PublicKey, privateKey: cfg.PrivateKey},
		client:    newRetryingClient(&base, cfg, log),
		transfers: &base,
		registry:  cfg.Registry,
		logger:    log,
		now:       time.Now,
	}

	if cfg.UseCache {
		cache, err := newResponseCache(cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create response cache: %w", err)
		}
		c.cache = cache
	}

	log.WithField("endpoint", c.Endpoint()).Info("cytomine endpoint")
	return c, nil
}

// Host returns the normalised host, without scheme.
func (c *Client) Host() string {
	return c.host
}

// Endpoint returns the API base URL.
func (c *Client) Endpoint() string {
	return c.baseURL(true)
}

// Logger returns the logger used by the client.
func (c *Client) Logger() *logger.UPPLogger {
	return c.logger
}

func (c *Client) baseURL(withBasePath bool) string {
	u := c.scheme + "://" + c.host
	if withBasePath {
		u += basePath
	}
	return u
}

// Get performs a GET on uri (relative to the API base) and decodes the JSON
// answer into dst when dst is not nil.
func (c *Client) Get(ctx context.Context, uri string, params url.Values, dst interface{}) error {
	return c.request(ctx, http.MethodGet, uri, true, params, nil, dst)
}

// Post sends body as JSON to uri.
func (c *Client) Post(ctx context.Context, uri string, params url.Values, body interface{}, dst interface{}) error {
	return c.request(ctx, http.MethodPost, uri, true, params, body, dst)
}

// Put sends body as JSON to uri.
func (c *Client) Put(ctx context.Context, uri string, params url.Values, body interface{}, dst interface{}) error {
	return c.request(ctx, http.MethodPut, uri, true, params, body, dst)
}

// Delete performs a DELETE on uri.
func (c *Client) Delete(ctx context.Context, uri string, params url.Values) error {
	return c.request(ctx, http.MethodDelete, uri, true, params, nil, nil)
}

func (c *Client) request(ctx context.Context, method string, uri string, withBasePath bool, params url.Values, body interface{}, dst interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	contentType := ""
	if method != http.MethodGet {
		contentType = contentTypeJSON
	}

	req, err := c.newRequest(ctx, method, c.baseURL(withBasePath)+uri, params, reader, contentType)
	if err != nil {
		return err
	}

	resp, err := c.exchange(c.client, req, uri)
	if err != nil {
		return err
	}
	return decodeResponse(req, resp, dst)
}

// newRequest builds a signed request carrying the Cytomine headers and the
// transaction id of ctx.
func (c *Client) newRequest(ctx context.Context, method string, rawURL string, params url.Values, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequest(method, rawURL, body)
	if err != nil {
		return nil, err
	}

	if len(params) > 0 {
		q := req.URL.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}

	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-Requested-With", "XMLHTTPRequest")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	txid, err := tid.GetTransactionIDFromContext(ctx)
	if err != nil || txid == "" {
		txid = tid.NewTransactionID()
	}
	req.Header.Set(requestIDHeader, txid)

	c.mu.RLock()
	keys := c.keys
	c.mu.RUnlock()
	keys.sign(req, c.now())

	return req.WithContext(ctx), nil
}

// exchange performs req with hc and reads the whole answer.
func (c *Client) exchange(hc httpClient, req *http.Request, label string) (*response, error) {
	useCache := c.cache != nil && req.Method == http.MethodGet
	if useCache {
		c.cache.prepare(req)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, c.transportError(req, start, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(req, start, err)
	}
	c.observe(req.Method, start, nil)

	r := &response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
	}
	if useCache {
		r = c.cache.resolve(req, r)
	}

	c.logResponse(req, r, label)
	return r, nil
}

func (c *Client) transportError(req *http.Request, start time.Time, err error) error {
	c.observe(req.Method, start, err)
	if isTimeoutErr(err) || errors.Is(err, context.DeadlineExceeded) {
		c.logger.WithTransactionID(req.Header.Get(requestIDHeader)).
			WithError(err).
			WithField("url", req.URL.String()).
			Error("request to cytomine timed out")
		return ErrServiceTimeout
	}
	return err
}

func (c *Client) observe(method string, start time.Time, err error) {
	name := "cytomine.client." + strings.ToLower(method)
	metrics.GetOrRegisterTimer(name, c.registry).UpdateSince(start)
	if err != nil {
		metrics.GetOrRegisterCounter(name+".errors", c.registry).Inc(1)
	}
}

func (c *Client) logResponse(req *http.Request, resp *response, label string) {
	entry := c.logger.WithTransactionID(req.Header.Get(requestIDHeader))
	msg := fmt.Sprintf("[%s] %s | %s", req.Method, label, resp.Status)

	switch {
	case resp.StatusCode < http.StatusMultipleChoices || resp.StatusCode >= http.StatusInternalServerError:
		entry.Info(msg)
	case isRedirect(resp.StatusCode):
		entry.WithField("location", resp.Header.Get("Location")).Warn(msg)
	default:
		entry.Error(fmt.Sprintf("%s (%s)", msg, readResponseMessage(resp.Body, "errors")))
	}
	entry.WithField("headers", resp.Header).Debug("response dump")
}

func decodeResponse(req *http.Request, resp *response, dst interface{}) error {
	switch {
	case isRedirect(resp.StatusCode):
		return &RedirectError{StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return newResponseError(req, resp)
	case dst == nil || len(bytes.TrimSpace(resp.Body)) == 0:
		return nil
	}
	return json.Unmarshal(resp.Body, dst)
}

func isRedirect(code int) bool {
	return code == http.StatusMovedPermanently || code == http.StatusFound
}

package cytomine

import (
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

const defaultCacheSize = 512

type cachedResponse struct {
	etag         string
	lastModified string
	header       http.Header
	body         []byte
}

// responseCache keeps validated GET responses and revalidates them with
// conditional requests.
type responseCache struct {
	entries *lru.TwoQueueCache
}

func newResponseCache(size int) (*responseCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	entries, err := lru.New2Q(size)
	if err != nil {
		return nil, err
	}
	return &responseCache{entries: entries}, nil
}

// prepare adds validators of a cached entry to req.
func (rc *responseCache) prepare(req *http.Request) {
	entry, ok := rc.lookup(req)
	if !ok {
		return
	}
	if entry.etag != "" {
		req.Header.Set("If-None-Match", entry.etag)
	}
	if entry.lastModified != "" {
		req.Header.Set("If-Modified-Since", entry.lastModified)
	}
}

// resolve turns a 304 into the cached answer and stores fresh cacheable answers.
func (rc *responseCache) resolve(req *http.Request, resp *response) *response {
	if resp.StatusCode == http.StatusNotModified {
		if entry, ok := rc.lookup(req); ok {
			return &response{
				StatusCode: http.StatusOK,
				Status:     "200 OK",
				Header:     entry.header,
				Body:       entry.body,
			}
		}
		return resp
	}

	if resp.StatusCode != http.StatusOK || !cacheable(resp.Header) {
		return resp
	}

	rc.entries.Add(req.URL.String(), &cachedResponse{
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
		header:       resp.Header,
		body:         resp.Body,
	})
	return resp
}

func (rc *responseCache) lookup(req *http.Request) (*cachedResponse, bool) {
	v, ok := rc.entries.Get(req.URL.String())
	if !ok {
		return nil, false
	}
	entry, ok := v.(*cachedResponse)
	return entry, ok
}

func (rc *responseCache) len() int {
	return rc.entries.Len()
}

func cacheable(h http.Header) bool {
	if h.Get("ETag") == "" && h.Get("Last-Modified") == "" {
		return false
	}
	cc := strings.ToLower(h.Get("Cache-Control"))
	return !strings.Contains(cc, "no-store")
}

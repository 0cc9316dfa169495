package cytomine

import (
	"context"
	"fmt"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

const defaultChunkSize = 15

// Filter narrows a collection to the resources attached to another one, for
// example project/42.
type Filter struct {
	Key   string
	Value string
}

// Collection is a paginated list of server resources.
type Collection[T any] struct {
	Max    int
	Offset int
	Params url.Values

	Items      []T
	Size       int
	TotalPages int

	resource       string
	allowedFilters []string
	filters        []Filter

	pages       int
	startOffset int

	prepare      func() error
	rewrite      func(uri string, withoutFilters bool) string
	saveDisabled bool
}

// NewCollection returns an empty collection of resource. An empty allowed
// filter means the collection can be fetched without any filter; no allowed
// filters at all has the same meaning.
func NewCollection[T any](resource string, allowedFilters ...string) *Collection[T] {
	if len(allowedFilters) == 0 {
		allowedFilters = []string{""}
	}
	return &Collection[T]{
		Params:         url.Values{},
		resource:       resource,
		allowedFilters: allowedFilters,
	}
}

func (col *Collection[T]) Resource() string {
	return col.resource
}

func (col *Collection[T]) Len() int {
	return len(col.Items)
}

// Filters returns the filters set on the collection, in insertion order.
func (col *Collection[T]) Filters() []Filter {
	return append([]Filter(nil), col.filters...)
}

// AddFilter sets a filter. Keys outside the allowed list are rejected.
func (col *Collection[T]) AddFilter(key string, value interface{}) error {
	if key == "" || !col.allows(key) {
		return fmt.Errorf("%w: %q on %s", ErrFilterNotAllowed, key, col.resource)
	}
	col.setFilter(key, value)
	return nil
}

// SetParam sets an extra query parameter. Slices are comma-joined.
func (col *Collection[T]) SetParam(key string, value interface{}) {
	if col.Params == nil {
		col.Params = url.Values{}
	}
	if s, ok := formatParam(value); ok {
		col.Params.Set(key, s)
		return
	}
	col.Params.Del(key)
}

func (col *Collection[T]) allows(key string) bool {
	for _, f := range col.allowedFilters {
		if f == key {
			return true
		}
	}
	return false
}

func (col *Collection[T]) setFilter(key string, value interface{}) {
	v := fmt.Sprint(value)
	for i := range col.filters {
		if col.filters[i].Key == key {
			col.filters[i].Value = v
			return
		}
	}
	col.filters = append(col.filters, Filter{Key: key, Value: v})
}

func (col *Collection[T]) removeFilter(key string) {
	for i := range col.filters {
		if col.filters[i].Key == key {
			col.filters = append(col.filters[:i], col.filters[i+1:]...)
			return
		}
	}
}

// URI returns the collection path, prefixed by its filter unless
// withoutFilters is set.
func (col *Collection[T]) URI(withoutFilters bool) (string, error) {
	var b strings.Builder
	if !withoutFilters {
		if len(col.filters) > 1 {
			return "", ErrTooManyFilters
		}
		for _, f := range col.filters {
			b.WriteString(f.Key + "/" + f.Value + "/")
		}
	}
	b.WriteString(col.resource + ".json")

	uri := b.String()
	if col.rewrite != nil {
		uri = col.rewrite(uri, withoutFilters)
	}
	return uri, nil
}

func (col *Collection[T]) parameters() url.Values {
	v := url.Values{}
	for k, vs := range col.Params {
		v[k] = append([]string(nil), vs...)
	}
	v.Set("max", strconv.Itoa(col.Max))
	v.Set("offset", strconv.Itoa(col.Offset))
	return v
}

type page[T any] struct {
	Collection []T `json:"collection"`
	Size       int `json:"size"`
	TotalPages int `json:"totalPages"`
	Offset     int `json:"offset"`
	PerPage    int `json:"perPage"`
}

// Fetch reads the page at Offset (Max 0 means everything).
func (col *Collection[T]) Fetch(ctx context.Context, c *Client) error {
	if col.prepare != nil {
		if err := col.prepare(); err != nil {
			return err
		}
	}
	if len(col.filters) == 0 && !col.allows("") {
		return fmt.Errorf("%w: %s accepts %s", ErrFilterRequired, col.resource, strings.Join(col.allowedFilters, ", "))
	}

	uri, err := col.URI(false)
	if err != nil {
		return err
	}

	var p page[T]
	if err := c.Get(ctx, uri, col.parameters(), &p); err != nil {
		return err
	}

	col.Items = p.Collection
	col.Size = p.Size
	col.TotalPages = p.TotalPages
	return nil
}

// FetchWithFilter adds a filter then fetches.
func (col *Collection[T]) FetchWithFilter(ctx context.Context, c *Client, key string, value interface{}) error {
	if err := col.AddFilter(key, value); err != nil {
		return err
	}
	return col.Fetch(ctx, c)
}

// FetchNextPage reads the following page into Items. The first call reads the
// page at the initial Offset. It reports false once no page is left.
func (col *Collection[T]) FetchNextPage(ctx context.Context, c *Client) (bool, error) {
	if col.Max <= 0 {
		return false, ErrPageSize
	}
	if col.pages == 0 {
		col.startOffset = col.Offset
	}

	offset := col.startOffset + col.pages*col.Max
	if col.pages > 0 && offset >= col.Size {
		col.Items = nil
		return false, nil
	}

	col.Offset = offset
	if err := col.Fetch(ctx, c); err != nil {
		return false, err
	}
	col.pages++
	return len(col.Items) > 0, nil
}

// Save creates the items on the server, chunk items per request, with at most
// workers requests in flight.
func (col *Collection[T]) Save(ctx context.Context, c *Client, chunk int, workers int) error {
	if col.saveDisabled {
		return fmt.Errorf("%w: cannot save a %s collection", ErrNotSupported, col.resource)
	}
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	uri, err := col.URI(true)
	if err != nil {
		return err
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		created  int
		failed   int
		firstErr error
	)
	g.SetLimit(workers)

	for start := 0; start < len(col.Items); start += chunk {
		batch := col.Items[start:min(start+chunk, len(col.Items))]
		g.Go(func() error {
			err := c.Post(ctx, uri, nil, batch, nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed += len(batch)
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			created += len(batch)
			return nil
		})
	}
	_ = g.Wait()

	c.logger.WithField("created", created).WithField("failed", failed).Infof("saved %s collection", col.resource)
	if failed > 0 {
		return &PartialUploadError{Created: created, Failed: failed, Err: firstErr}
	}
	return nil
}

// formatParam renders a query value. It reports false for unset values.
func formatParam(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case *bool:
		if v == nil {
			return "", false
		}
		return strconv.FormatBool(*v), true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), v != 0
	case int64:
		return strconv.FormatInt(v, 10), v != 0
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case []int64:
		if len(v) == 0 {
			return "", false
		}
		parts := make([]string, len(v))
		for i, id := range v {
			parts[i] = strconv.FormatInt(id, 10)
		}
		return strings.Join(parts, ","), true
	case []string:
		return strings.Join(v, ","), len(v) > 0
	}
	return fmt.Sprint(value), true
}

package cytomine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Model is a single server resource.
type Model interface {
	// CallbackIdentifier is the resource name used in URIs and in the save
	// response envelope.
	CallbackIdentifier() string
	URI() string
	IsNew() bool
}

// CompositeKey is implemented by association models identified by the ids
// they link rather than by their own id. KeyURI reports false while a part of
// the key is missing.
type CompositeKey interface {
	KeyURI() (string, bool)
}

// NonUpdatable models can be created and deleted but not updated.
type NonUpdatable interface {
	NonUpdatable()
}

// ReadOnly models are managed by the server.
type ReadOnly interface {
	ReadOnly()
}

// ResponseKeyer provides the envelope key of a save response when it differs
// from the callback identifier.
type ResponseKeyer interface {
	ResponseKey() string
}

// Resource holds the attributes shared by every server resource.
type Resource struct {
	ID      int64      `json:"id,omitempty"`
	Class   string     `json:"class,omitempty"`
	Created *Timestamp `json:"created,omitempty"`
	Updated *Timestamp `json:"updated,omitempty"`
	Deleted *Timestamp `json:"deleted,omitempty"`
}

func (r *Resource) IsNew() bool {
	return r.ID == 0
}

func (r *Resource) GetID() int64 {
	return r.ID
}

func (r *Resource) SetID(id int64) {
	r.ID = id
}

// DomainClass is the fully qualified server class, used to attach properties.
func (r *Resource) DomainClass() string {
	return r.Class
}

func resourceURI(callback string, id int64) string {
	if id == 0 {
		return callback + ".json"
	}
	return fmt.Sprintf("%s/%d.json", callback, id)
}

// Timestamp is an epoch-milliseconds date. The server sends it either as a
// string or as a number.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(strconv.FormatInt(t.UnixMilli(), 10))), nil
}

type identifiable[M any] interface {
	*M
	Model
	SetID(int64)
}

// Fetch gets the model of type M with the given id.
//
//	p, err := cytomine.Fetch[cytomine.Project](ctx, c, 42)
func Fetch[M any, PM identifiable[M]](ctx context.Context, c *Client, id int64) (*M, error) {
	m := new(M)
	PM(m).SetID(id)
	if err := c.FetchModel(ctx, PM(m), nil); err != nil {
		return nil, err
	}
	return m, nil
}

// FetchModel populates m from the server.
func (c *Client) FetchModel(ctx context.Context, m Model, params url.Values) error {
	uri, err := keyedURI(m, "fetch")
	if err != nil {
		return err
	}
	return c.Get(ctx, uri, params, m)
}

// SaveModel creates m when it is new and updates it otherwise.
func (c *Client) SaveModel(ctx context.Context, m Model) error {
	if _, ok := m.(ReadOnly); ok {
		return notSupported("save", m)
	}
	if !m.IsNew() {
		return c.UpdateModel(ctx, m)
	}
	return c.push(ctx, http.MethodPost, m)
}

// UpdateModel pushes the attributes of an existing model.
func (c *Client) UpdateModel(ctx context.Context, m Model) error {
	if _, ok := m.(ReadOnly); ok {
		return notSupported("update", m)
	}
	if _, ok := m.(NonUpdatable); ok {
		return notSupported("update", m)
	}
	if m.IsNew() {
		return fmt.Errorf("%w: cannot update a %s that was never saved", ErrNoID, m.CallbackIdentifier())
	}
	return c.push(ctx, http.MethodPut, m)
}

// DeleteModel removes m on the server.
func (c *Client) DeleteModel(ctx context.Context, m Model) error {
	if _, ok := m.(ReadOnly); ok {
		return notSupported("delete", m)
	}
	uri, err := keyedURI(m, "delete")
	if err != nil {
		return err
	}
	return c.Delete(ctx, uri, nil)
}

func (c *Client) push(ctx context.Context, method string, m Model) error {
	var envelope map[string]json.RawMessage
	if err := c.request(ctx, method, m.URI(), true, nil, m, &envelope); err != nil {
		return err
	}

	for _, key := range responseKeys(m) {
		raw, ok := envelope[key]
		if !ok || string(raw) == "null" {
			continue
		}
		return json.Unmarshal(raw, m)
	}

	c.logger.WithField("callback", m.CallbackIdentifier()).Warn("save response does not contain the model")
	return nil
}

func responseKeys(m Model) []string {
	keys := []string{strings.ToLower(m.CallbackIdentifier())}
	if k, ok := m.(ResponseKeyer); ok {
		keys = append(keys, k.ResponseKey())
	}
	return keys
}

func keyedURI(m Model, op string) (string, error) {
	if k, ok := m.(CompositeKey); ok {
		uri, ok := k.KeyURI()
		if !ok {
			return "", fmt.Errorf("%w: cannot %s a %s with an incomplete key", ErrNoID, op, m.CallbackIdentifier())
		}
		return uri, nil
	}
	if m.IsNew() {
		return "", fmt.Errorf("%w: cannot %s a %s with no id", ErrNoID, op, m.CallbackIdentifier())
	}
	return m.URI(), nil
}

func notSupported(op string, m Model) error {
	return fmt.Errorf("%w: cannot %s a %s", ErrNotSupported, op, m.CallbackIdentifier())
}

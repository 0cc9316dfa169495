package cytomine

import (
	"errors"
	"fmt"
	"strings"
)

// DomainObject is a saved model that properties can be attached to.
type DomainObject interface {
	Model
	GetID() int64
	DomainClass() string
}

// Property is a key/value pair attached to any domain object.
type Property struct {
	Resource
	DomainClassName string `json:"domainClassName,omitempty"`
	DomainIdent     int64  `json:"domainIdent,omitempty"`
	Key             string `json:"key,omitempty"`
	Value           string `json:"value,omitempty"`
}

// NewProperty returns a property of obj, which must have been fetched or
// saved already.
func NewProperty(obj DomainObject, key string, value string) (*Property, error) {
	class, ident, err := domainOf(obj)
	if err != nil {
		return nil, err
	}
	return &Property{DomainClassName: class, DomainIdent: ident, Key: key, Value: value}, nil
}

func (p *Property) CallbackIdentifier() string { return "property" }

func (p *Property) URI() string {
	base := domainURI(p.DomainClassName, p.DomainIdent) + "/property"
	if p.IsNew() {
		return base + ".json"
	}
	return fmt.Sprintf("%s/%d.json", base, p.ID)
}

// NewPropertyCollection lists the properties of obj.
func NewPropertyCollection(obj DomainObject) (*Collection[Property], error) {
	class, ident, err := domainOf(obj)
	if err != nil {
		return nil, err
	}
	col := NewCollection[Property]("property")
	col.rewrite = func(uri string, _ bool) string {
		return domainURI(class, ident) + "/" + uri
	}
	return col, nil
}

func domainOf(obj DomainObject) (string, int64, error) {
	if obj.IsNew() {
		return "", 0, fmt.Errorf("%w: the %s must be fetched or saved first", ErrNoID, obj.CallbackIdentifier())
	}
	if obj.DomainClass() == "" {
		return "", 0, errors.New("domain object has no class")
	}
	return obj.DomainClass(), obj.GetID(), nil
}

func domainURI(class string, ident int64) string {
	return fmt.Sprintf("domain/%s/%d", strings.TrimSpace(class), ident)
}

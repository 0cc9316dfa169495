package cytomine

import (
	"encoding/json"
	"fmt"
)

// Ontology is a tree of terms.
type Ontology struct {
	Resource
	Name     string          `json:"name,omitempty"`
	User     int64           `json:"user,omitempty"`
	Title    string          `json:"title,omitempty"`
	IsFolder *bool           `json:"isFolder,omitempty"`
	Children json.RawMessage `json:"children,omitempty"`
	Projects json.RawMessage `json:"projects,omitempty"`
}

func (o *Ontology) CallbackIdentifier() string { return "ontology" }

func (o *Ontology) URI() string { return resourceURI("ontology", o.ID) }

func NewOntologyCollection() *Collection[Ontology] {
	return NewCollection[Ontology]("ontology")
}

type Term struct {
	Resource
	Name     string `json:"name,omitempty"`
	Ontology int64  `json:"ontology,omitempty"`
	Parent   int64  `json:"parent,omitempty"`
	Color    string `json:"color,omitempty"`
}

func (t *Term) CallbackIdentifier() string { return "term" }

func (t *Term) URI() string { return resourceURI("term", t.ID) }

func NewTermCollection() *Collection[Term] {
	return NewCollection[Term]("term", "", "project", "ontology", "annotation")
}

// RelationTerm makes Term2 a child of Term1.
type RelationTerm struct {
	Resource
	Term1 int64 `json:"term1,omitempty"`
	Term2 int64 `json:"term2,omitempty"`
}

func (r *RelationTerm) CallbackIdentifier() string { return "relationterm" }

func (r *RelationTerm) URI() string {
	if r.IsNew() {
		return "relation/parent/term.json"
	}
	return r.keyURI()
}

func (r *RelationTerm) keyURI() string {
	return fmt.Sprintf("relation/parent/term1/%d/term2/%d.json", r.Term1, r.Term2)
}

func (r *RelationTerm) KeyURI() (string, bool) {
	return r.keyURI(), r.Term1 != 0 && r.Term2 != 0
}

func (r *RelationTerm) NonUpdatable() {}

package cytomine

// Project groups images, annotations and users around an ontology.
type Project struct {
	Resource
	Name                        string `json:"name,omitempty"`
	Ontology                    int64  `json:"ontology,omitempty"`
	OntologyName                string `json:"ontologyName,omitempty"`
	Discipline                  int64  `json:"discipline,omitempty"`
	BlindMode                   *bool  `json:"blindMode,omitempty"`
	AreImagesDownloadable       *bool  `json:"areImagesDownloadable,omitempty"`
	IsClosed                    *bool  `json:"isClosed,omitempty"`
	IsReadOnly                  *bool  `json:"isReadOnly,omitempty"`
	IsRestricted                *bool  `json:"isRestricted,omitempty"`
	HideUsersLayers             *bool  `json:"hideUsersLayers,omitempty"`
	HideAdminsLayers            *bool  `json:"hideAdminsLayers,omitempty"`
	NumberOfImages              int64  `json:"numberOfImages,omitempty"`
	NumberOfAnnotations         int64  `json:"numberOfAnnotations,omitempty"`
	NumberOfJobAnnotations      int64  `json:"numberOfJobAnnotations,omitempty"`
	NumberOfReviewedAnnotations int64  `json:"numberOfReviewedAnnotations,omitempty"`
}

func (p *Project) CallbackIdentifier() string { return "project" }

func (p *Project) URI() string { return resourceURI("project", p.ID) }

// NewProjectCollection lists projects, optionally those of a user or an
// ontology.
func NewProjectCollection() *Collection[Project] {
	return NewCollection[Project]("project", "", "user", "ontology")
}

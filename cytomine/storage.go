package cytomine

// Storage is a user space where uploaded files are kept.
type Storage struct {
	Resource
	Name string `json:"name,omitempty"`
	User int64  `json:"user,omitempty"`
}

func (s *Storage) CallbackIdentifier() string { return "storage" }

func (s *Storage) URI() string { return resourceURI("storage", s.ID) }

func NewStorageCollection() *Collection[Storage] {
	return NewCollection[Storage]("storage")
}

// UploadedFile tracks a file sent to a storage and its conversion.
type UploadedFile struct {
	Resource
	Filename         string  `json:"filename,omitempty"`
	OriginalFilename string  `json:"originalFilename,omitempty"`
	Ext              string  `json:"ext,omitempty"`
	ContentType      string  `json:"contentType,omitempty"`
	Storage          int64   `json:"storage,omitempty"`
	User             int64   `json:"user,omitempty"`
	Projects         []int64 `json:"projects,omitempty"`
	Parent           int64   `json:"parent,omitempty"`
	Size             int64   `json:"size,omitempty"`
	Status           int     `json:"status,omitempty"`
	Path             string  `json:"path,omitempty"`
}

func (f *UploadedFile) CallbackIdentifier() string { return "uploadedfile" }

func (f *UploadedFile) URI() string { return resourceURI("uploadedfile", f.ID) }

func NewUploadedFileCollection() *Collection[UploadedFile] {
	return NewCollection[UploadedFile]("uploadedfile")
}

package cytomine

import (
	"context"
	"fmt"
)

// AbstractImage is an image file known to the server, independently of the
// projects it is used in.
type AbstractImage struct {
	Resource
	Filename         string   `json:"filename,omitempty"`
	OriginalFilename string   `json:"originalFilename,omitempty"`
	UploadedFile     int64    `json:"uploadedFile,omitempty"`
	Width            int      `json:"width,omitempty"`
	Height           int      `json:"height,omitempty"`
	Depth            int      `json:"depth,omitempty"`
	Duration         int      `json:"duration,omitempty"`
	Channels         int      `json:"channels,omitempty"`
	PhysicalSizeX    *float64 `json:"physicalSizeX,omitempty"`
	PhysicalSizeY    *float64 `json:"physicalSizeY,omitempty"`
	PhysicalSizeZ    *float64 `json:"physicalSizeZ,omitempty"`
	FPS              *float64 `json:"fps,omitempty"`
	Magnification    *int     `json:"magnification,omitempty"`
	BitPerSample     *int     `json:"bitPerSample,omitempty"`
	SamplePerPixel   *int     `json:"samplePerPixel,omitempty"`
	ContentType      string   `json:"contentType,omitempty"`
}

func (i *AbstractImage) CallbackIdentifier() string { return "abstractimage" }

func (i *AbstractImage) URI() string { return resourceURI("abstractimage", i.ID) }

func NewAbstractImageCollection() *Collection[AbstractImage] {
	return NewCollection[AbstractImage]("abstractimage", "", "project")
}

// ImageInstance is an abstract image added to a project.
type ImageInstance struct {
	Resource
	BaseImage                   int64      `json:"baseImage,omitempty"`
	Project                     int64      `json:"project,omitempty"`
	User                        int64      `json:"user,omitempty"`
	InstanceFilename            string     `json:"instanceFilename,omitempty"`
	Filename                    string     `json:"filename,omitempty"`
	OriginalFilename            string     `json:"originalFilename,omitempty"`
	Path                        string     `json:"path,omitempty"`
	Extension                   string     `json:"extension,omitempty"`
	Width                       int        `json:"width,omitempty"`
	Height                      int        `json:"height,omitempty"`
	Depth                       int        `json:"depth,omitempty"`
	Duration                    int        `json:"duration,omitempty"`
	Channels                    int        `json:"channels,omitempty"`
	PhysicalSizeX               *float64   `json:"physicalSizeX,omitempty"`
	PhysicalSizeY               *float64   `json:"physicalSizeY,omitempty"`
	Magnification               *int       `json:"magnification,omitempty"`
	NumberOfAnnotations         int64      `json:"numberOfAnnotations,omitempty"`
	NumberOfJobAnnotations      int64      `json:"numberOfJobAnnotations,omitempty"`
	NumberOfReviewedAnnotations int64      `json:"numberOfReviewedAnnotations,omitempty"`
	Reviewed                    *bool      `json:"reviewed,omitempty"`
	ReviewStart                 *Timestamp `json:"reviewStart,omitempty"`
	ReviewStop                  *Timestamp `json:"reviewStop,omitempty"`
	ReviewUser                  int64      `json:"reviewUser,omitempty"`

	// Filename of the last download or dump.
	LocalPath string `json:"-"`
}

func (i *ImageInstance) CallbackIdentifier() string { return "imageinstance" }

func (i *ImageInstance) URI() string { return resourceURI("imageinstance", i.ID) }

// Download fetches the original file to the expansion of destPattern. An
// existing file is kept unless override is set.
func (i *ImageInstance) Download(ctx context.Context, c *Client, destPattern string, override bool) (string, error) {
	if i.IsNew() {
		return "", fmt.Errorf("%w: cannot download an image instance with no id", ErrNoID)
	}
	dest, err := ExpandPattern(destPattern, i)
	if err != nil {
		return "", err
	}
	if err := c.DownloadFile(ctx, fmt.Sprintf("imageinstance/%d/download", i.ID), dest, override, nil); err != nil {
		return "", err
	}
	i.LocalPath = dest
	return dest, nil
}

// Dump writes a thumbnail of the image. The file extension of the destination
// selects the format.
func (i *ImageInstance) Dump(ctx context.Context, c *Client, opts DumpOptions) (string, error) {
	if i.IsNew() {
		return "", fmt.Errorf("%w: cannot dump an image instance with no id", ErrNoID)
	}
	dest, ext, err := opts.destination(i)
	if err != nil {
		return "", err
	}

	uri := fmt.Sprintf("imageinstance/%d/thumb.%s", i.ID, ext)
	if err := c.DownloadFile(ctx, uri, dest, opts.Override, opts.values()); err != nil {
		return "", err
	}
	i.LocalPath = dest
	return dest, nil
}

// NewImageInstanceCollection lists the images of a project or of a user.
func NewImageInstanceCollection() *Collection[ImageInstance] {
	return NewCollection[ImageInstance]("imageinstance", "project", "user")
}

package cytomine

import "fmt"

// ImageGroup gathers image instances of a project, for example the slices of
// a multidimensional acquisition.
type ImageGroup struct {
	Resource
	Name    string `json:"name,omitempty"`
	Project int64  `json:"project,omitempty"`
}

func (g *ImageGroup) CallbackIdentifier() string { return "imagegroup" }

func (g *ImageGroup) URI() string { return resourceURI("imagegroup", g.ID) }

func NewImageGroupCollection() *Collection[ImageGroup] {
	return NewCollection[ImageGroup]("imagegroup", "project")
}

type ImageGroupImageInstance struct {
	Resource
	Group int64 `json:"group,omitempty"`
	Image int64 `json:"image,omitempty"`
}

func (gi *ImageGroupImageInstance) CallbackIdentifier() string { return "imagegroupimageinstance" }

func (gi *ImageGroupImageInstance) URI() string {
	return fmt.Sprintf("imagegroup/%d/imageinstance/%d.json", gi.Group, gi.Image)
}

func (gi *ImageGroupImageInstance) KeyURI() (string, bool) {
	return gi.URI(), gi.Group != 0 && gi.Image != 0
}

func (gi *ImageGroupImageInstance) NonUpdatable() {}

func NewImageGroupImageInstanceCollection() *Collection[ImageGroupImageInstance] {
	return NewCollection[ImageGroupImageInstance]("imagegroupimageinstance", "imagegroup", "imageinstance")
}

package cytomine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Annotation is a geometry drawn on an image, in WKT.
type Annotation struct {
	Resource
	Location            string   `json:"location,omitempty"`
	Image               int64    `json:"image,omitempty"`
	Slice               int64    `json:"slice,omitempty"`
	Project             int64    `json:"project,omitempty"`
	User                int64    `json:"user,omitempty"`
	Term                []int64  `json:"term,omitempty"`
	Track               []int64  `json:"track,omitempty"`
	GeometryCompression *float64 `json:"geometryCompression,omitempty"`
	Area                *float64 `json:"area,omitempty"`
	AreaUnit            string   `json:"areaUnit,omitempty"`
	Perimeter           *float64 `json:"perimeter,omitempty"`
	PerimeterUnit       string   `json:"perimeterUnit,omitempty"`
	CropURL             string   `json:"cropURL,omitempty"`

	// Filename of the last dump.
	LocalPath string `json:"-"`
}

func (a *Annotation) CallbackIdentifier() string { return "annotation" }

func (a *Annotation) URI() string { return resourceURI("annotation", a.ID) }

// Review validates the annotation with the given terms and returns the server
// answer.
func (a *Annotation) Review(ctx context.Context, c *Client, termIDs []int64) (json.RawMessage, error) {
	if a.IsNew() {
		return nil, fmt.Errorf("%w: cannot review an annotation with no id", ErrNoID)
	}
	if termIDs == nil {
		termIDs = []int64{}
	}

	body := map[string]interface{}{"id": a.ID, "terms": termIDs}
	var out json.RawMessage
	if err := c.Post(ctx, fmt.Sprintf("annotation/%d/review.json", a.ID), nil, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Dump downloads the crop of the annotation. With opts.Mask the binary mask is
// downloaded instead, and with opts.Alpha as well the crop with the mask as
// alpha channel, always as png.
func (a *Annotation) Dump(ctx context.Context, c *Client, opts DumpOptions) (string, error) {
	if a.IsNew() {
		return "", fmt.Errorf("%w: cannot dump an annotation with no id", ErrNoID)
	}
	if a.CropURL == "" {
		return "", errors.New("annotation has no crop URL, fetch it with the basic fields first")
	}

	dest, ext, err := opts.destination(a)
	if err != nil {
		return "", err
	}

	kind := "crop"
	switch {
	case opts.Mask && opts.Alpha:
		kind = "alphamask"
		if ext == "jpg" {
			dest = strings.TrimSuffix(dest, filepath.Ext(dest)) + ".png"
			ext = "png"
		}
	case opts.Mask:
		kind = "mask"
	}

	uri := cropURI(a.CropURL, kind, ext)
	if err := c.DownloadFile(ctx, uri, dest, opts.Override, opts.values()); err != nil {
		return "", err
	}
	a.LocalPath = dest
	return dest, nil
}

// cropURI turns .../crop.<any> into .../<kind>.<ext>.
func cropURI(cropURL string, kind string, ext string) string {
	i := strings.LastIndex(cropURL, "/crop.")
	if i < 0 {
		return cropURL
	}
	return cropURL[:i] + "/" + kind + "." + ext
}

// AnnotationQuery holds the listing options of an AnnotationCollection. Unset
// fields are not sent.
type AnnotationQuery struct {
	ShowBasic      *bool
	ShowMeta       *bool
	ShowWKT        *bool
	ShowGIS        *bool
	ShowTerm       *bool
	ShowTrack      *bool
	ShowAlgo       *bool
	ShowUser       *bool
	ShowImage      *bool
	ShowSlice      *bool
	ShowImageGroup *bool
	ShowLink       *bool
	Reviewed       *bool
	NoTerm         *bool
	NoAlgoTerm     *bool
	MultipleTerm   *bool

	Project          int64
	User             int64
	Users            []int64
	Image            int64
	Images           []int64
	Slice            int64
	Slices           []int64
	Term             int64
	Terms            []int64
	SuggestedTerm    int64
	UserForTermAlgo  int64
	Track            int64
	Tracks           []int64
	Group            int64
	Groups           []int64
	Annotation       int64
	BaseAnnotation   int64
	BBoxAnnotation   int64
	BBox             string
	MaxDistanceBase  *float64
	AfterThan        int64
	BeforeThan       int64

	// Included lists the annotations included in the geometry given by
	// BBox, BBoxAnnotation or BaseAnnotation on Image.
	Included bool
}

func (q AnnotationQuery) values() url.Values {
	v := url.Values{}
	set := func(key string, value interface{}) {
		if s, ok := formatParam(value); ok {
			v.Set(key, s)
		}
	}

	set("showBasic", q.ShowBasic)
	set("showMeta", q.ShowMeta)
	set("showWKT", q.ShowWKT)
	set("showGIS", q.ShowGIS)
	set("showTerm", q.ShowTerm)
	set("showTrack", q.ShowTrack)
	set("showAlgo", q.ShowAlgo)
	set("showUser", q.ShowUser)
	set("showImage", q.ShowImage)
	set("showSlice", q.ShowSlice)
	set("showImageGroup", q.ShowImageGroup)
	set("showLink", q.ShowLink)
	set("reviewed", q.Reviewed)
	set("noTerm", q.NoTerm)
	set("noAlgoTerm", q.NoAlgoTerm)
	set("multipleTerm", q.MultipleTerm)

	set("project", q.Project)
	set("user", q.User)
	set("users", q.Users)
	set("slice", q.Slice)
	set("slices", q.Slices)
	set("term", q.Term)
	set("terms", q.Terms)
	set("suggestedTerm", q.SuggestedTerm)
	set("userForTermAlgo", q.UserForTermAlgo)
	set("track", q.Track)
	set("tracks", q.Tracks)
	set("group", q.Group)
	set("groups", q.Groups)
	set("annotation", q.Annotation)
	set("baseAnnotation", q.BaseAnnotation)
	set("bboxAnnotation", q.BBoxAnnotation)
	set("bbox", q.BBox)
	set("afterThan", q.AfterThan)
	set("beforeThan", q.BeforeThan)
	if q.MaxDistanceBase != nil {
		set("maxDistanceBaseAnnotation", *q.MaxDistanceBase)
	}
	if !q.Included {
		set("image", q.Image)
		set("images", q.Images)
	}
	return v
}

// AnnotationCollection lists annotations with the options of Query.
type AnnotationCollection struct {
	*Collection[Annotation]
	Query AnnotationQuery

	queryKeys []string
}

// NewAnnotationCollection returns a collection showing the basic and meta
// fields of annotations.
func NewAnnotationCollection() *AnnotationCollection {
	show := true
	ac := &AnnotationCollection{
		Collection: NewCollection[Annotation]("annotation"),
		Query:      AnnotationQuery{ShowBasic: &show, ShowMeta: &show},
	}
	ac.prepare = ac.applyQuery
	ac.rewrite = ac.includedURI
	return ac
}

func (ac *AnnotationCollection) applyQuery() error {
	if ac.Query.Included {
		if ac.Query.Image == 0 {
			return fmt.Errorf("%w: included annotations need an image", ErrFilterRequired)
		}
		ac.filters = nil
		ac.setFilter("imageinstance", ac.Query.Image)
	} else {
		ac.removeFilter("imageinstance")
	}

	// parameters from the previous fetch must not outlive their query field
	for _, k := range ac.queryKeys {
		ac.Params.Del(k)
	}
	ac.queryKeys = ac.queryKeys[:0]
	for k, vs := range ac.Query.values() {
		ac.Params[k] = vs
		ac.queryKeys = append(ac.queryKeys, k)
	}
	return nil
}

func (ac *AnnotationCollection) includedURI(uri string, withoutFilters bool) string {
	if !ac.Query.Included || withoutFilters {
		return uri
	}
	return strings.TrimSuffix(uri, ".json") + "/included.json"
}

// DumpCrops dumps every annotation of the collection with at most workers
// downloads in flight. It returns the annotations dumped successfully.
func (ac *AnnotationCollection) DumpCrops(ctx context.Context, c *Client, opts DumpOptions, workers int) ([]Annotation, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	errs := make([]error, len(ac.Items))
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range ac.Items {
		i := i
		g.Go(func() error {
			_, errs[i] = ac.Items[i].Dump(ctx, c, opts)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dumped := make([]Annotation, 0, len(ac.Items))
	var failed []string
	for i, err := range errs {
		if err != nil {
			failed = append(failed, strconv.FormatInt(ac.Items[i].ID, 10))
			continue
		}
		dumped = append(dumped, ac.Items[i])
	}

	if len(failed) > 0 {
		c.logger.Infof("Failed to download crops for %d/%d annotations (%3.2f %%).",
			len(failed), len(ac.Items), 100*float64(len(failed))/float64(len(ac.Items)))
		c.logger.WithField("annotations", strings.Join(failed, ",")).Debug("failed crops")
	}
	return dumped, nil
}

// AnnotationTerm associates a user annotation with a term.
type AnnotationTerm struct {
	Resource
	UserAnnotation int64 `json:"userannotation,omitempty"`
	Term           int64 `json:"term,omitempty"`
	User           int64 `json:"user,omitempty"`
}

func (at *AnnotationTerm) CallbackIdentifier() string { return "annotationterm" }

func (at *AnnotationTerm) URI() string {
	return fmt.Sprintf("annotation/%d/term/%d.json", at.UserAnnotation, at.Term)
}

func (at *AnnotationTerm) KeyURI() (string, bool) {
	return at.URI(), at.UserAnnotation != 0 && at.Term != 0
}

func (at *AnnotationTerm) NonUpdatable() {}

// AlgoAnnotationTerm is a term suggested by a job for an annotation.
type AlgoAnnotationTerm struct {
	Resource
	Annotation      int64   `json:"annotation,omitempty"`
	AnnotationIdent int64   `json:"annotationIdent,omitempty"`
	Term            int64   `json:"term,omitempty"`
	ExpectedTerm    int64   `json:"expectedTerm,omitempty"`
	User            int64   `json:"user,omitempty"`
	Rate            float64 `json:"rate"`
}

// NewAlgoAnnotationTerm returns a suggestion with full confidence.
func NewAlgoAnnotationTerm(annotation int64, term int64) *AlgoAnnotationTerm {
	return &AlgoAnnotationTerm{Annotation: annotation, AnnotationIdent: annotation, Term: term, Rate: 1}
}

func (at *AlgoAnnotationTerm) CallbackIdentifier() string { return "algoannotationterm" }

func (at *AlgoAnnotationTerm) URI() string {
	return fmt.Sprintf("annotation/%d/term/%d.json", at.Annotation, at.Term)
}

func (at *AlgoAnnotationTerm) KeyURI() (string, bool) {
	return at.URI(), at.Annotation != 0 && at.Term != 0
}

func (at *AlgoAnnotationTerm) NonUpdatable() {}

// AnnotationFilter is a saved set of users and terms used to filter the
// annotations of a project.
type AnnotationFilter struct {
	Resource
	Name    string  `json:"name,omitempty"`
	Project int64   `json:"project,omitempty"`
	User    int64   `json:"user,omitempty"`
	Users   []int64 `json:"users,omitempty"`
	Terms   []int64 `json:"terms,omitempty"`
}

func (f *AnnotationFilter) CallbackIdentifier() string { return "annotationfilter" }

func (f *AnnotationFilter) URI() string { return resourceURI("annotationfilter", f.ID) }

// NewAnnotationFilterCollection lists the filters of a project. It cannot be
// saved as a whole.
func NewAnnotationFilterCollection(project int64) *Collection[AnnotationFilter] {
	col := NewCollection[AnnotationFilter]("annotationfilter")
	col.Params.Set("project", strconv.FormatInt(project, 10))
	col.saveDisabled = true
	return col
}

// AnnotationGroup groups annotations of an image group that represent the
// same object.
type AnnotationGroup struct {
	Resource
	Project    int64  `json:"project,omitempty"`
	ImageGroup int64  `json:"imageGroup,omitempty"`
	Type       string `json:"type,omitempty"`
}

// NewAnnotationGroup returns a SAME_OBJECT group.
func NewAnnotationGroup(project int64, imageGroup int64) *AnnotationGroup {
	return &AnnotationGroup{Project: project, ImageGroup: imageGroup, Type: "SAME_OBJECT"}
}

func (g *AnnotationGroup) CallbackIdentifier() string { return "annotationgroup" }

func (g *AnnotationGroup) URI() string { return resourceURI("annotationgroup", g.ID) }

// Merge moves the annotations of the group other into g.
func (g *AnnotationGroup) Merge(ctx context.Context, c *Client, other int64) (json.RawMessage, error) {
	if g.IsNew() || other == 0 {
		return nil, fmt.Errorf("%w: cannot merge annotation groups without ids", ErrNoID)
	}
	var out json.RawMessage
	uri := fmt.Sprintf("annotationgroup/%d/annotationgroup/%d/merge.json", g.ID, other)
	if err := c.Post(ctx, uri, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func NewAnnotationGroupCollection() *Collection[AnnotationGroup] {
	return NewCollection[AnnotationGroup]("annotationgroup", "project", "imagegroup")
}

// AnnotationLink puts an annotation in an annotation group.
type AnnotationLink struct {
	Resource
	AnnotationClassName string `json:"annotationClassName,omitempty"`
	AnnotationIdent     int64  `json:"annotationIdent,omitempty"`
	Group               int64  `json:"group,omitempty"`
	Image               int64  `json:"image,omitempty"`
}

func (l *AnnotationLink) CallbackIdentifier() string { return "annotationlink" }

func (l *AnnotationLink) URI() string {
	if l.IsNew() {
		return "annotationlink.json"
	}
	return l.keyURI()
}

func (l *AnnotationLink) keyURI() string {
	return fmt.Sprintf("annotationgroup/%d/annotation/%d.json", l.Group, l.AnnotationIdent)
}

func (l *AnnotationLink) KeyURI() (string, bool) {
	return l.keyURI(), l.Group != 0 && l.AnnotationIdent != 0
}

func (l *AnnotationLink) NonUpdatable() {}

func NewAnnotationLinkCollection() *Collection[AnnotationLink] {
	return NewCollection[AnnotationLink]("annotationlink", "annotationgroup", "annotation")
}

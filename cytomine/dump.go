package cytomine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const defaultDumpPattern = "{id}.jpg"

var patternField = regexp.MustCompile(`\{([^{}]*)\}`)

// ExpandPattern replaces every {attr} of pattern with the JSON attribute attr
// of m. Missing attributes become "_".
//
//	ExpandPattern("/data/{project}/{id}.png", annotation) // "/data/12/345.png"
func ExpandPattern(pattern string, m interface{}) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}

	var attrs map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&attrs); err != nil {
		return "", fmt.Errorf("cannot expand pattern with %T: %w", m, err)
	}

	return patternField.ReplaceAllStringFunc(pattern, func(field string) string {
		v, ok := attrs[field[1:len(field)-1]]
		if !ok || v == nil {
			return "_"
		}
		return fmt.Sprint(v)
	}), nil
}

// DumpOptions control image and crop dumps.
type DumpOptions struct {
	// DestPattern is expanded with the model attributes. Its extension
	// selects the format: jpg, png or tif.
	DestPattern string
	Override    bool

	MaxSize      int
	Zoom         int
	IncreaseArea float64
	Contrast     float64
	Gamma        float64
	Colormap     int64
	Bits         int
	Inverse      *bool
	Complete     *bool

	Mask  bool
	Alpha bool
}

func (o DumpOptions) values() url.Values {
	v := url.Values{}
	if o.MaxSize > 0 {
		v.Set("maxSize", strconv.Itoa(o.MaxSize))
	}
	if o.Zoom > 0 {
		v.Set("zoom", strconv.Itoa(o.Zoom))
	}
	if o.IncreaseArea > 0 {
		v.Set("increaseArea", strconv.FormatFloat(o.IncreaseArea, 'f', -1, 64))
	}
	if o.Contrast > 0 {
		v.Set("contrast", strconv.FormatFloat(o.Contrast, 'f', -1, 64))
	}
	if o.Gamma > 0 {
		v.Set("gamma", strconv.FormatFloat(o.Gamma, 'f', -1, 64))
	}
	if o.Colormap != 0 {
		v.Set("colormap", strconv.FormatInt(o.Colormap, 10))
	}
	if o.Bits > 0 {
		v.Set("bits", strconv.Itoa(o.Bits))
	}
	if o.Inverse != nil {
		v.Set("inverse", strconv.FormatBool(*o.Inverse))
	}
	if o.Complete != nil {
		v.Set("complete", strconv.FormatBool(*o.Complete))
	}
	return v
}

// destination expands the pattern for m and returns the path and its format.
func (o DumpOptions) destination(m interface{}) (string, string, error) {
	pattern := o.DestPattern
	if pattern == "" {
		pattern = defaultDumpPattern
	}
	dest, err := ExpandPattern(pattern, m)
	if err != nil {
		return "", "", err
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(dest), "."))
	switch ext {
	case "":
		return dest + ".jpg", "jpg", nil
	case "jpg", "png", "tif":
		return dest, ext, nil
	case "jpeg":
		return dest, "jpg", nil
	}
	return "", "", fmt.Errorf("unsupported dump format %q", ext)
}

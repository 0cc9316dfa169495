package cytomine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pborman/uuid"
)

const (
	uploadPath = "/upload"
	importPath = "/import"
	fileField  = "files[]"
)

// UploadFile sends filename as a multipart form to uri (m.URI() when empty)
// and populates m from the answer.
func (c *Client) UploadFile(ctx context.Context, m Model, filename string, params url.Values, uri string) error {
	if uri == "" {
		uri = m.URI()
	}
	if err := c.upload(ctx, c.baseURL(true)+uri, uri, params, filename, m); err != nil {
		return err
	}
	c.logger.WithField("file", filename).Infof("File uploaded successfully to %s", uri)
	return nil
}

// UploadImageOptions are the optional settings of UploadImage.
type UploadImageOptions struct {
	// ProjectID adds the converted image to a project.
	ProjectID int64
	// Properties are attached to the created abstract image.
	Properties map[string]string
	// Sync waits for the conversion before answering.
	Sync bool
}

// UploadedImage is an abstract image created by an upload, with its instances.
type UploadedImage struct {
	AbstractImage  *AbstractImage
	ImageInstances []ImageInstance
}

// UploadResult is the outcome of UploadImage.
type UploadResult struct {
	UploadedFile UploadedFile
	Images       []UploadedImage
}

type uploadAnswer struct {
	UploadedFile UploadedFile `json:"uploadedFile"`
	Images       []struct {
		Image          *AbstractImage  `json:"image"`
		ImageInstances []ImageInstance `json:"imageInstances"`
	} `json:"images"`
}

// UploadImage sends an image file to a storage.
func (c *Client) UploadImage(ctx context.Context, filename string, storageID int64, opts UploadImageOptions) (*UploadResult, error) {
	storage := strconv.FormatInt(storageID, 10)
	params := url.Values{}
	params.Set("idStorage", storage)
	params.Set("storage", storage)
	params.Set("sync", strconv.FormatBool(opts.Sync))

	if opts.ProjectID != 0 {
		project := strconv.FormatInt(opts.ProjectID, 10)
		params.Set("idProject", project)
		params.Set("projects", project)
	}

	if len(opts.Properties) > 0 {
		keys := make([]string, 0, len(opts.Properties))
		for k := range opts.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		values := make([]string, len(keys))
		for i, k := range keys {
			values[i] = opts.Properties[k]
		}
		params.Set("keys", strings.Join(keys, ","))
		params.Set("values", strings.Join(values, ","))
	}

	var answer []uploadAnswer
	if err := c.upload(ctx, c.baseURL(false)+uploadPath, uploadPath, params, filename, &answer); err != nil {
		return nil, err
	}
	if len(answer) == 0 {
		return nil, errors.New("upload answer is empty")
	}

	result := &UploadResult{UploadedFile: answer[0].UploadedFile}
	for _, img := range answer[0].Images {
		result.Images = append(result.Images, UploadedImage{AbstractImage: img.Image, ImageInstances: img.ImageInstances})
	}

	c.logger.WithField("file", filename).
		WithField("uploadedFile", result.UploadedFile.ID).
		Info("Image uploaded successfully")
	return result, nil
}

// ImportDatasets asks the server to import the datasets found under path into
// a storage and returns its answer.
func (c *Client) ImportDatasets(ctx context.Context, path string, storageID int64) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("host", c.baseURL(false))
	params.Set("path", path)
	params.Set("storage_id", strconv.FormatInt(storageID, 10))

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL(false)+importPath, params, nil, "text/plain")
	if err != nil {
		return nil, err
	}

	resp, err := c.exchange(c.transfers, req, importPath)
	if err != nil {
		return nil, err
	}

	var out json.RawMessage
	if err := decodeResponse(req, resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// upload streams filename as a multipart form.
func (c *Client) upload(ctx context.Context, rawURL string, label string, params url.Values, filename string, dst interface{}) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile(fileField, filepath.Base(filename))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, rawURL, params, pr, mw.FormDataContentType())
	if err != nil {
		pr.Close()
		return err
	}

	resp, err := c.exchange(c.transfers, req, label)
	if err != nil {
		pr.Close()
		return err
	}
	return decodeResponse(req, resp, dst)
}

// DownloadFile writes the resource at rawURL to dest. Relative URLs are
// resolved against the API base. An existing dest is kept unless override is
// set.
func (c *Client) DownloadFile(ctx context.Context, rawURL string, dest string, override bool, params url.Values) error {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = c.baseURL(true) + rawURL
	}
	if !override {
		if _, err := os.Stat(dest); err == nil {
			c.logger.WithField("file", dest).Debug("file exists, skipping download")
			return nil
		}
	}

	req, err := c.newRequest(ctx, http.MethodGet, rawURL, params, nil, contentTypeJSON)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.transfers.Do(req)
	if err != nil {
		return c.transportError(req, start, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		r := &response{StatusCode: resp.StatusCode, Status: resp.Status, Header: resp.Header, Body: body}
		c.observe(req.Method, start, nil)
		c.logResponse(req, r, rawURL)
		return decodeResponse(req, r, nil)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	tmp := dest + ".part-" + uuid.New()
	n, err := writeFile(tmp, resp.Body)
	if err != nil {
		os.Remove(tmp)
		return c.transportError(req, start, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	c.observe(req.Method, start, nil)

	c.logger.WithTransactionID(req.Header.Get(requestIDHeader)).
		WithField("file", dest).
		Infof("File downloaded successfully from %s (%s)", req.URL.String(), humanize.Bytes(uint64(n)))
	return nil
}

func writeFile(name string, r io.Reader) (int64, error) {
	f, err := os.Create(name)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to write %s: %w", name, err)
	}
	return n, nil
}

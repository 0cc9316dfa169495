package cytomine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/husobee/vestigo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadFile(t *testing.T) {
	var calls int32
	r := vestigo.NewRouter()
	r.Get("/api/imageinstance/3/download", func(w http.ResponseWriter, r *http.Request) {
		assertSigned(t, r)
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte("slide-bytes"))
	})
	c, _ := newTestClient(t, r)

	dest := filepath.Join(t.TempDir(), "nested", "3.svs")
	require.NoError(t, c.DownloadFile(context.Background(), "imageinstance/3/download", dest, false, nil))

	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "slide-bytes", string(b))

	require.NoError(t, c.DownloadFile(context.Background(), "imageinstance/3/download", dest, false, nil))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.NoError(t, c.DownloadFile(context.Background(), "imageinstance/3/download", dest, true, nil))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownloadFileFailure(t *testing.T) {
	r := vestigo.NewRouter()
	r.Get("/api/imageinstance/4/download", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"errors":"not downloadable"}`)
	})
	c, _ := newTestClient(t, r)

	dest := filepath.Join(t.TempDir(), "4.svs")
	err := c.DownloadFile(context.Background(), "imageinstance/4/download", dest, false, nil)

	assert.True(t, errors.Is(err, ErrUnauthorized))
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestImageInstanceDownloadAndDump(t *testing.T) {
	r := vestigo.NewRouter()
	r.Get("/api/imageinstance/3/download", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("original"))
	})
	r.Get("/api/imageinstance/3/thumb.png", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "256", r.URL.Query().Get("maxSize"))
		_, _ = w.Write([]byte("thumb"))
	})
	c, _ := newTestClient(t, r)
	dir := t.TempDir()

	img := &ImageInstance{Resource: Resource{ID: 3}, OriginalFilename: "lung.svs"}

	path, err := img.Download(context.Background(), c, filepath.Join(dir, "{originalFilename}"), false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lung.svs"), path)

	path, err = img.Dump(context.Background(), c, DumpOptions{DestPattern: filepath.Join(dir, "{id}.png"), MaxSize: 256})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "3.png"), path)
	assert.Equal(t, path, img.LocalPath)

	_, err = (&ImageInstance{}).Download(context.Background(), c, "x", false)
	assert.True(t, errors.Is(err, ErrNoID))
}

func TestDumpCrops(t *testing.T) {
	r := vestigo.NewRouter()
	r.Get("/api/userannotation/1/crop.jpg", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "128", r.URL.Query().Get("maxSize"))
		_, _ = w.Write([]byte("crop"))
	})
	r.Get("/api/userannotation/2/alphamask.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("alpha"))
	})
	c, server := newTestClient(t, r)
	dir := t.TempDir()

	col := NewAnnotationCollection()
	col.Items = []Annotation{
		{Resource: Resource{ID: 1}, Image: 5, CropURL: server.URL + "/api/userannotation/1/crop.png"},
		{Resource: Resource{ID: 2}, Image: 5, CropURL: server.URL + "/api/userannotation/2/crop.png"},
		{Resource: Resource{ID: 3}, Image: 5},
	}

	dumped, err := col.DumpCrops(context.Background(), c, DumpOptions{DestPattern: filepath.Join(dir, "{image}", "{id}.jpg"), MaxSize: 128}, 2)
	require.NoError(t, err)
	require.Len(t, dumped, 1)
	assert.Equal(t, filepath.Join(dir, "5", "1.jpg"), dumped[0].LocalPath)

	col.Items = col.Items[1:2]
	dumped, err = col.DumpCrops(context.Background(), c, DumpOptions{DestPattern: filepath.Join(dir, "{id}.jpg"), Mask: true, Alpha: true}, 2)
	require.NoError(t, err)
	require.Len(t, dumped, 1)
	assert.Equal(t, filepath.Join(dir, "2.png"), dumped[0].LocalPath)
}

func TestAnnotationDumpWithoutID(t *testing.T) {
	c, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Fail(t, "unexpected request", r.URL.Path)
	}))

	a := &Annotation{CropURL: server.URL + "/api/userannotation/1/crop.png"}
	_, err := a.Dump(context.Background(), c, DumpOptions{DestPattern: filepath.Join(t.TempDir(), "{id}.jpg")})
	assert.True(t, errors.Is(err, ErrNoID))
}

func TestUploadImage(t *testing.T) {
	r := vestigo.NewRouter()
	r.Post(uploadPath, func(w http.ResponseWriter, r *http.Request) {
		assertSigned(t, r)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary="))

		q := r.URL.Query()
		assert.Equal(t, "11", q.Get("idStorage"))
		assert.Equal(t, "11", q.Get("storage"))
		assert.Equal(t, "true", q.Get("sync"))
		assert.Equal(t, "22", q.Get("idProject"))
		assert.Equal(t, "organ,stain", q.Get("keys"))
		assert.Equal(t, "lung,HE", q.Get("values"))

		f, header, err := r.FormFile(fileField)
		if assert.NoError(t, err) {
			defer f.Close()
			assert.Equal(t, "slide.tif", header.Filename)
			b, _ := io.ReadAll(f)
			assert.Equal(t, "tiff-bytes", string(b))
		}

		writeJSON(w, http.StatusOK, `[{"uploadedFile":{"id":100,"originalFilename":"slide.tif","storage":11},
			"images":[{"image":{"id":200,"originalFilename":"slide.tif"},"imageInstances":[{"id":300,"project":22}]}]}]`)
	})
	c, _ := newTestClient(t, r)

	file := filepath.Join(t.TempDir(), "slide.tif")
	require.NoError(t, os.WriteFile(file, []byte("tiff-bytes"), 0o600))

	result, err := c.UploadImage(context.Background(), file, 11, UploadImageOptions{
		ProjectID:  22,
		Properties: map[string]string{"stain": "HE", "organ": "lung"},
		Sync:       true,
	})

	require.NoError(t, err)
	assert.Equal(t, int64(100), result.UploadedFile.ID)
	require.Len(t, result.Images, 1)
	assert.Equal(t, int64(200), result.Images[0].AbstractImage.ID)
	require.Len(t, result.Images[0].ImageInstances, 1)
	assert.Equal(t, int64(300), result.Images[0].ImageInstances[0].ID)
}

func TestUploadImageMissingFile(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())

	_, err := c.UploadImage(context.Background(), filepath.Join(t.TempDir(), "missing.tif"), 1, UploadImageOptions{})
	assert.True(t, os.IsNotExist(err))
}

func TestUploadFilePopulatesModel(t *testing.T) {
	r := vestigo.NewRouter()
	r.Post("/api/attachedfile.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("domainIdent"))
		writeJSON(w, http.StatusOK, `{"id":55,"filename":"notes.txt"}`)
	})
	c, _ := newTestClient(t, r)

	file := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("notes"), 0o600))

	uf := &UploadedFile{}
	err := c.UploadFile(context.Background(), uf, file, map[string][]string{"domainIdent": {"7"}}, "attachedfile.json")

	require.NoError(t, err)
	assert.Equal(t, int64(55), uf.ID)
	assert.Equal(t, "notes.txt", uf.Filename)
}

func TestImportDatasets(t *testing.T) {
	r := vestigo.NewRouter()
	r.Post(importPath, func(w http.ResponseWriter, r *http.Request) {
		assertSigned(t, r)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		assert.Equal(t, "/data/batch", r.URL.Query().Get("path"))
		assert.Equal(t, "4", r.URL.Query().Get("storage_id"))
		assert.True(t, strings.HasPrefix(r.URL.Query().Get("host"), "http://127.0.0.1"))
		writeJSON(w, http.StatusOK, `{"imported":2}`)
	})
	c, _ := newTestClient(t, r)

	out, err := c.ImportDatasets(context.Background(), "/data/batch", 4)

	require.NoError(t, err)
	assert.JSONEq(t, `{"imported":2}`, string(out))
}

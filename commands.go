package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/Financial-Times/go-logger/v2"
	"github.com/cytomine/cytomine-go-client/config"
	"github.com/cytomine/cytomine-go-client/cytomine"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	cli "github.com/jawher/mow.cli"
	"golang.org/x/sync/errgroup"
)

const (
	listPageSize  = 100
	thumbnailSize = 512
)

var errNoStorage = errors.New("current user has no storage")

// session carries what every command needs to reach the server.
type session struct {
	cfg          cytomine.Config
	httpClient   *http.Client
	connectWait  time.Duration
	timeout      time.Duration
	downloadPath string
	logger       *logger.UPPLogger
	out          io.Writer

	client *cytomine.Client
}

func (s *session) newClient() (*cytomine.Client, error) {
	return cytomine.NewClient(s.cfg, s.httpClient, s.logger)
}

// run connects, then runs fn until it returns or the process is interrupted.
func (s *session) run(fn func(ctx context.Context, s *session) error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := s.newClient()
	if err != nil {
		s.logger.WithError(err).Error("Failed to create the cytomine client.")
		cli.Exit(1)
	}
	if err := c.Connect(ctx, s.connectWait); err != nil {
		s.logger.WithError(err).Error("Failed to connect to cytomine.")
		cli.Exit(1)
	}
	s.client = c

	if err := fn(ctx, s); err != nil {
		s.logger.WithError(err).Error("Command failed.")
		cli.Exit(1)
	}
}

func (s *session) downloadDir(flag string) string {
	if flag != "" {
		return flag
	}
	return s.downloadPath
}

// saveProfile writes the connection settings of the session to the config
// file at path, under name.
func (s *session) saveProfile(path string, name string, downloadPath string) error {
	p := config.Profile{
		Host:         s.cfg.Host,
		PublicKey:    s.cfg.PublicKey,
		PrivateKey:   s.cfg.PrivateKey,
		Protocol:     s.cfg.Protocol,
		DownloadPath: s.downloadDir(downloadPath),
	}
	if err := config.Save(path, name, p); err != nil {
		return err
	}

	username := ""
	if user := s.client.CurrentUser(); user != nil {
		username = user.Username
	}
	s.logger.WithField("profile", name).WithField("path", path).Info("Saved profile")
	_, err := fmt.Fprintf(s.out, "Profile %q of %s saved to %s\n", name, username, path)
	return err
}

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleDouble)
	t.Style().Options.SeparateRows = false

	colored := make(table.Row, len(header))
	for i, h := range header {
		colored[i] = text.FgGreen.Sprintf("%v", h)
	}
	t.AppendHeader(colored)
	return t
}

func (s *session) listProjects(ctx context.Context, pageSize int) error {
	col := cytomine.NewProjectCollection()
	col.Max = pageSize

	for {
		more, err := col.FetchNextPage(ctx, s.client)
		if err != nil {
			return err
		}
		if !more {
			break
		}

		t := newTable(s.out, table.Row{"ID", "Name", "Ontology", "Images", "Annotations"})
		for _, p := range col.Items {
			t.AppendRow(table.Row{p.ID, p.Name, p.OntologyName, p.NumberOfImages, p.NumberOfAnnotations})
		}
		t.AppendFooter(table.Row{"", "", "", "Total", col.Size})
		t.Render()
	}
	return nil
}

func (s *session) fetchImages(ctx context.Context, project int64) ([]cytomine.ImageInstance, error) {
	col := cytomine.NewImageInstanceCollection()
	col.Max = listPageSize
	if err := col.AddFilter("project", project); err != nil {
		return nil, err
	}

	var images []cytomine.ImageInstance
	for {
		more, err := col.FetchNextPage(ctx, s.client)
		if err != nil {
			return nil, err
		}
		if !more {
			return images, nil
		}
		images = append(images, col.Items...)
	}
}

// listImages prints the images of project. With dir set it also writes
// images-<project>.csv there, with a thumbnail and the original of each image.
func (s *session) listImages(ctx context.Context, project int64, dir string, workers int) error {
	images, err := s.fetchImages(ctx, project)
	if err != nil {
		return err
	}

	t := newTable(s.out, table.Row{"ID", "Filename", "Width", "Height", "Annotations"})
	for _, img := range images {
		t.AppendRow(table.Row{img.ID, img.InstanceFilename, img.Width, img.Height, img.NumberOfAnnotations})
	}
	t.Render()

	if dir == "" {
		return nil
	}
	if err := writeImagesCSV(filepath.Join(dir, fmt.Sprintf("images-%d.csv", project)), images); err != nil {
		return err
	}
	return s.downloadImages(ctx, images, dir, workers)
}

func (s *session) downloadImages(ctx context.Context, images []cytomine.ImageInstance, dir string, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i := range images {
		img := &images[i]
		g.Go(func() error {
			thumb := cytomine.DumpOptions{
				DestPattern: filepath.Join(dir, "thumbnails", "{id}.png"),
				MaxSize:     thumbnailSize,
			}
			if _, err := img.Dump(ctx, s.client, thumb); err != nil {
				return fmt.Errorf("thumbnail of image %d: %w", img.ID, err)
			}
			if _, err := img.Download(ctx, s.client, filepath.Join(dir, "originals", "{id}-{originalFilename}"), false); err != nil {
				return fmt.Errorf("original of image %d: %w", img.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.WithField("dir", dir).Infof("Downloaded %d images", len(images))
	return nil
}

func writeImagesCSV(path string, images []cytomine.ImageInstance) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"id", "filename", "originalFilename", "width", "height", "magnification", "physicalSizeX"})
	for _, img := range images {
		magnification, resolution := "", ""
		if img.Magnification != nil {
			magnification = strconv.Itoa(*img.Magnification)
		}
		if img.PhysicalSizeX != nil {
			resolution = strconv.FormatFloat(*img.PhysicalSizeX, 'f', -1, 64)
		}
		_ = w.Write([]string{
			strconv.FormatInt(img.ID, 10),
			img.InstanceFilename,
			img.OriginalFilename,
			strconv.Itoa(img.Width),
			strconv.Itoa(img.Height),
			magnification,
			resolution,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func (s *session) dumpCrops(ctx context.Context, project int64, image int64, opts cytomine.DumpOptions, workers int) error {
	col := cytomine.NewAnnotationCollection()
	col.Query.Project = project
	col.Query.Image = image
	col.Max = listPageSize

	total, dumped := 0, 0
	for {
		more, err := col.FetchNextPage(ctx, s.client)
		if err != nil {
			return err
		}
		if !more {
			break
		}
		ok, err := col.DumpCrops(ctx, s.client, opts, workers)
		if err != nil {
			return err
		}
		total += col.Len()
		dumped += len(ok)
	}

	fmt.Fprintf(s.out, "Dumped %d/%d crops\n", dumped, total)
	return nil
}

// firstStorage returns the first storage of the current user.
func (s *session) firstStorage(ctx context.Context) (int64, error) {
	user := s.client.CurrentUser()
	if user == nil {
		return 0, cytomine.ErrNotConnected
	}

	col := cytomine.NewStorageCollection()
	if err := col.Fetch(ctx, s.client); err != nil {
		return 0, err
	}
	for _, st := range col.Items {
		if st.User == user.ID {
			return st.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", errNoStorage, user.Username)
}

func (s *session) uploadImage(ctx context.Context, file string, storage int64, opts cytomine.UploadImageOptions) error {
	info, err := os.Stat(file)
	if err != nil {
		return err
	}
	if storage == 0 {
		if storage, err = s.firstStorage(ctx); err != nil {
			return err
		}
	}

	s.logger.WithField("file", file).WithField("storage", storage).Infof("Uploading %s", humanize.Bytes(uint64(info.Size())))
	result, err := s.client.UploadImage(ctx, file, storage, opts)
	if err != nil {
		return err
	}

	t := newTable(s.out, table.Row{"Uploaded file", "Abstract image", "Image instances"})
	if len(result.Images) == 0 {
		t.AppendRow(table.Row{result.UploadedFile.ID, "-", "-"})
	}
	for _, img := range result.Images {
		ids := make([]int64, 0, len(img.ImageInstances))
		for _, ii := range img.ImageInstances {
			ids = append(ids, ii.ID)
		}
		abstract := int64(0)
		if img.AbstractImage != nil {
			abstract = img.AbstractImage.ID
		}
		t.AppendRow(table.Row{result.UploadedFile.ID, abstract, ids})
	}
	t.Render()
	return nil
}

func (s *session) importDatasets(ctx context.Context, path string) error {
	storage, err := s.firstStorage(ctx)
	if err != nil {
		return err
	}
	out, err := s.client.ImportDatasets(ctx, path, storage)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(s.out, string(out))
	return err
}

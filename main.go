package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"time"

	"github.com/Financial-Times/go-ft-http/fthttp"
	"github.com/Financial-Times/go-logger/v2"
	"github.com/cytomine/cytomine-go-client/config"
	"github.com/cytomine/cytomine-go-client/cytomine"
	"github.com/cytomine/cytomine-go-client/handler"
	"github.com/cytomine/cytomine-go-client/health"
	"github.com/cytomine/cytomine-go-client/server"
	cli "github.com/jawher/mow.cli"
)

const (
	appDescription = "Cytomine command-line client and read-only gateway"
)

func main() {
	app := cli.App("cytomine", appDescription)

	appSystemCode := app.String(cli.StringOpt{
		Name:   "app-system-code",
		Value:  "cytomine-go-client",
		Desc:   "System Code of the application",
		EnvVar: "APP_SYSTEM_CODE",
	})

	appName := app.String(cli.StringOpt{
		Name:   "app-name",
		Value:  "cytomine",
		Desc:   "Application name",
		EnvVar: "APP_NAME",
	})

	host := app.String(cli.StringOpt{
		Name:   "host cytomine_host",
		Desc:   "Cytomine host, with or without scheme",
		EnvVar: "CYTOMINE_HOST",
	})

	publicKey := app.String(cli.StringOpt{
		Name:   "public_key publicKey cytomine_public_key",
		Desc:   "Cytomine public key",
		EnvVar: "CYTOMINE_PUBLIC_KEY",
	})

	privateKey := app.String(cli.StringOpt{
		Name:      "private_key privateKey cytomine_private_key",
		Desc:      "Cytomine private key",
		EnvVar:    "CYTOMINE_PRIVATE_KEY",
		HideValue: true,
	})

	protocol := app.String(cli.StringOpt{
		Name:   "protocol",
		Desc:   "Scheme used when the host has none (http or https)",
		EnvVar: "CYTOMINE_PROTOCOL",
	})

	profile := app.String(cli.StringOpt{
		Name:   "profile",
		Value:  config.DefaultProfile,
		Desc:   "Profile of the config file filling the host and keys left empty",
		EnvVar: "CYTOMINE_PROFILE",
	})

	httpTimeout := app.String(cli.StringOpt{
		Name:   "http-timeout",
		Value:  "60s",
		Desc:   "http client timeout",
		EnvVar: "HTTP_CLIENT_TIMEOUT",
	})

	connectTimeout := app.String(cli.StringOpt{
		Name:   "connect-timeout",
		Value:  "30s",
		Desc:   "How long to wait for the server to accept connections",
		EnvVar: "CYTOMINE_CONNECT_TIMEOUT",
	})

	insecure := app.Bool(cli.BoolOpt{
		Name:   "insecure",
		Value:  false,
		Desc:   "Skip TLS certificate verification",
		EnvVar: "CYTOMINE_INSECURE",
	})

	useCache := app.Bool(cli.BoolOpt{
		Name:   "cache",
		Value:  false,
		Desc:   "Revalidate GET answers with ETags",
		EnvVar: "CYTOMINE_CACHE",
	})

	logLevel := app.String(cli.StringOpt{
		Name:   "log-level logLevel",
		Value:  "INFO",
		Desc:   "Logging level (DEBUG, INFO, WARN, ERROR)",
		EnvVar: "LOG_LEVEL",
	})

	var (
		log      *logger.UPPLogger
		settings session
	)

	app.Before = func() {
		log = logger.NewUPPLogger(*appName, *logLevel)
		log.Infof("[Startup] %v is starting", *appSystemCode)

		timeout, err := time.ParseDuration(*httpTimeout)
		if err != nil {
			log.WithError(err).Fatal("Provided http timeout is not in the standard duration format.")
		}
		wait, err := time.ParseDuration(*connectTimeout)
		if err != nil {
			log.WithError(err).Fatal("Provided connect timeout is not in the standard duration format.")
		}

		cfg := cytomine.Config{
			Host:       *host,
			PublicKey:  *publicKey,
			PrivateKey: *privateKey,
			Protocol:   *protocol,
			UseCache:   *useCache,
		}
		p, err := loadProfile(*profile)
		if err != nil {
			log.WithError(err).Fatal("Failed to read the config file.")
		}
		p.Fill(&cfg)

		settings = session{
			cfg:          cfg,
			httpClient:   newHTTPClient(timeout, *insecure, *appSystemCode),
			connectWait:  wait,
			timeout:      timeout,
			downloadPath: p.DownloadPath,
			logger:       log,
			out:          os.Stdout,
		}
	}

	app.Command("projects", "List the projects of the current user", func(cmd *cli.Cmd) {
		pageSize := cmd.IntOpt("max", 25, "Projects per page")
		cmd.Action = func() {
			settings.run(func(ctx context.Context, s *session) error { return s.listProjects(ctx, *pageSize) })
		}
	})

	app.Command("images", "List the images of a project, optionally downloading them", func(cmd *cli.Cmd) {
		project := cmd.Int(cli.IntOpt{Name: "project", Desc: "Project id"})
		downloadPath := cmd.StringOpt("download-path", "", "Directory receiving the CSV, thumbnails and originals")
		workers := cmd.IntOpt("workers", 4, "Parallel downloads")
		cmd.Spec = "--project [--download-path] [--workers]"
		cmd.Action = func() {
			settings.run(func(ctx context.Context, s *session) error {
				return s.listImages(ctx, int64(*project), s.downloadDir(*downloadPath), *workers)
			})
		}
	})

	app.Command("crops", "Dump the crops of the annotations of a project", func(cmd *cli.Cmd) {
		project := cmd.Int(cli.IntOpt{Name: "project", Desc: "Project id"})
		image := cmd.IntOpt("image", 0, "Only the annotations of this image")
		dest := cmd.StringOpt("dest", "{project}/{image}/{id}.png", "Destination pattern, expanded with the annotation attributes")
		workers := cmd.IntOpt("workers", 0, "Parallel downloads, one per CPU by default")
		maxSize := cmd.IntOpt("max-size", 0, "Maximum size of a crop side")
		mask := cmd.BoolOpt("mask", false, "Dump the binary masks")
		alpha := cmd.BoolOpt("alpha", false, "With --mask, dump the crops with the mask as alpha channel")
		cmd.Spec = "--project [--image] [--dest] [--workers] [--max-size] [--mask [--alpha]]"
		cmd.Action = func() {
			settings.run(func(ctx context.Context, s *session) error {
				opts := cytomine.DumpOptions{DestPattern: *dest, MaxSize: *maxSize, Mask: *mask, Alpha: *alpha}
				return s.dumpCrops(ctx, int64(*project), int64(*image), opts, *workers)
			})
		}
	})

	app.Command("upload-image", "Upload an image file to a storage", func(cmd *cli.Cmd) {
		storage := cmd.IntOpt("storage", 0, "Storage id, the first storage of the current user by default")
		file := cmd.String(cli.StringOpt{Name: "file", Desc: "Image file"})
		project := cmd.IntOpt("project", 0, "Project receiving the image")
		sync := cmd.BoolOpt("sync", false, "Wait for the conversion")
		cmd.Spec = "--file [--storage] [--project] [--sync]"
		cmd.Action = func() {
			settings.run(func(ctx context.Context, s *session) error {
				return s.uploadImage(ctx, *file, int64(*storage), cytomine.UploadImageOptions{ProjectID: int64(*project), Sync: *sync})
			})
		}
	})

	app.Command("import-datasets", "Import the datasets found under a server path", func(cmd *cli.Cmd) {
		path := cmd.String(cli.StringOpt{Name: "path", Desc: "Dataset directory, as seen by the server"})
		cmd.Spec = "--path"
		cmd.Action = func() {
			settings.run(func(ctx context.Context, s *session) error { return s.importDatasets(ctx, *path) })
		}
	})

	app.Command("configure", "Check the connection settings and save them to a profile of the config file", func(cmd *cli.Cmd) {
		name := cmd.StringOpt("name", config.DefaultProfile, "Profile to write")
		downloadPath := cmd.StringOpt("download-path", "", "Default download directory of the profile")
		cmd.Action = func() {
			settings.run(func(ctx context.Context, s *session) error {
				path, err := config.Path()
				if err != nil {
					return err
				}
				return s.saveProfile(path, *name, *downloadPath)
			})
		}
	})

	app.Command("serve", "Serve the read-only HTTP gateway", func(cmd *cli.Cmd) {
		port := cmd.Int(cli.IntOpt{
			Name:   "port",
			Value:  8080,
			Desc:   "Port to listen on",
			EnvVar: "APP_PORT",
		})
		apiYml := cmd.String(cli.StringOpt{
			Name:   "api-yml",
			Value:  "./api.yml",
			Desc:   "Location of the API Swagger YML file.",
			EnvVar: "API_YML",
		})
		cmd.Action = func() {
			c, err := settings.newClient()
			if err != nil {
				log.WithError(err).Fatal("Failed to create the cytomine client.")
			}
			log.Infof("System code: %s, App Name: %s, Port: %d", *appSystemCode, *appName, *port)

			healthService := health.NewHealthService(*appSystemCode, *appName, appDescription, c, c)
			h := handler.NewHandler(log, c, settings.timeout)
			server.New(port, apiYml, h, healthService, log).Start()
		}
	})

	err := app.Run(os.Args)
	if err != nil {
		if log != nil {
			log.Errorf("App could not start, error=[%s]\n", err)
		}
		cli.Exit(1)
	}
}

func loadProfile(name string) (config.Profile, error) {
	path, err := config.Path()
	if err != nil {
		return config.Profile{}, err
	}
	f, err := config.Load(path)
	if err != nil {
		return config.Profile{}, err
	}
	return f.Profile(name)
}

func newHTTPClient(timeout time.Duration, insecure bool, systemCode string) *http.Client {
	if !insecure {
		return fthttp.NewClient(timeout, "PAC", systemCode)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: cytomine.NewTransport(&tls.Config{InsecureSkipVerify: true}), //nolint:gosec
	}
}

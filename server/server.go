package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Financial-Times/api-endpoint"
	l "github.com/Financial-Times/go-logger/v2"
	"github.com/Financial-Times/http-handlers-go/httphandlers"
	"github.com/Financial-Times/service-status-go/gtg"
	status "github.com/Financial-Times/service-status-go/httphandlers"
	"github.com/gorilla/mux"
	"github.com/rcrowley/go-metrics"
)

const shutdownTimeout = 10 * time.Second

type startCloser interface {
	Start() error
	Close() error
}

type healthChecker interface {
	GTG() gtg.Status
	HealthCheckHandleFunc() func(w http.ResponseWriter, r *http.Request)
}

type handler interface {
	ListProjects(w http.ResponseWriter, r *http.Request)
	GetProject(w http.ResponseWriter, r *http.Request)
	ListProjectImages(w http.ResponseWriter, r *http.Request)
	ListImageAnnotations(w http.ResponseWriter, r *http.Request)
	ReviewAnnotation(w http.ResponseWriter, r *http.Request)
	CurrentUser(w http.ResponseWriter, r *http.Request)
}

type Server struct {
	port          *int
	apiYml        *string
	h             handler
	healthService healthChecker
	logger        *l.UPPLogger
}

func New(port *int, apiYml *string, h handler, hs healthChecker, logger *l.UPPLogger) *Server {
	return &Server{
		port:          port,
		apiYml:        apiYml,
		h:             h,
		healthService: hs,
		logger:        logger,
	}
}

func (s *Server) Start() {
	shutdown := s.listenForShutdownSignal()
	router := s.setupRoutes()
	srv := s.startServer(router)
	s.waitForShutdownSignal(srv, shutdown)
}

func (s *Server) setupRoutes() func(r *mux.Router) {
	r := func(r *mux.Router) {
		r.HandleFunc("/projects", s.h.ListProjects).Methods(http.MethodGet)
		r.HandleFunc("/projects/{id}", s.h.GetProject).Methods(http.MethodGet)
		r.HandleFunc("/projects/{id}/images", s.h.ListProjectImages).Methods(http.MethodGet)
		r.HandleFunc("/images/{id}/annotations", s.h.ListImageAnnotations).Methods(http.MethodGet)
		r.HandleFunc("/annotations/{id}/review", s.h.ReviewAnnotation).Methods(http.MethodPost)
		r.HandleFunc("/me", s.h.CurrentUser).Methods(http.MethodGet)

		r.HandleFunc(status.BuildInfoPath, status.BuildInfoHandler)
		r.HandleFunc(status.GTGPath, status.NewGoodToGoHandler(s.healthService.GTG))

		if s.apiYml != nil {
			apiEndpoint, err := api.NewAPIEndpointForFile(*s.apiYml)
			if err != nil {
				s.logger.WithError(err).WithField("file", *s.apiYml).Warn("Failed to serve the API Endpoint for this service. Please validate the Swagger YML and the file location")
			} else {
				r.Handle(api.DefaultPath, apiEndpoint)
			}
		}
	}
	return r
}

// router wires the routes behind the request logging and metrics middlewares.
// The health endpoint stays outside of them.
func (s *Server) router(routes func(r *mux.Router)) http.Handler {
	r := mux.NewRouter()
	routes(r)

	var monitoringRouter http.Handler = r
	monitoringRouter = httphandlers.TransactionAwareRequestLoggingHandler(s.logger.Logger, monitoringRouter)
	monitoringRouter = httphandlers.HTTPMetricsHandler(metrics.DefaultRegistry, monitoringRouter)

	root := http.NewServeMux()
	root.HandleFunc("/__health", s.healthService.HealthCheckHandleFunc())
	root.Handle("/", monitoringRouter)
	return root
}

func (s *Server) startServer(routes func(r *mux.Router)) *httpServer {
	srv := &httpServer{
		srv: &http.Server{
			Addr:              ":" + strconv.Itoa(*s.port),
			Handler:           s.router(routes),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	go func() {
		if err := srv.Start(); err != nil {
			s.logger.Infof("HTTP server closing with message: %v", err)
		}
	}()
	return srv
}

func (s *Server) listenForShutdownSignal() chan bool {
	ch := make(chan os.Signal, 1)
	shutdown := make(chan bool, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		shutdown <- true
	}()
	return shutdown
}

func (s *Server) waitForShutdownSignal(srv startCloser, shutdown chan bool) {
	<-shutdown
	s.logger.Info("HTTP server shutting down")
	if err := srv.Close(); err != nil {
		s.logger.WithError(err).Error("failed to close the server")
	}
}

type httpServer struct {
	srv *http.Server
}

func (h *httpServer) Start() error {
	if err := h.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close drains in-flight requests for at most shutdownTimeout.
func (h *httpServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.srv.Shutdown(ctx)
}

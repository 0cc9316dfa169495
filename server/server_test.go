package server

import (
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	l "github.com/Financial-Times/go-logger/v2"
	"github.com/Financial-Times/service-status-go/gtg"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	m.Called(w, r)
}

func (m *mockHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	m.Called(w, r)
}

func (m *mockHandler) ListProjectImages(w http.ResponseWriter, r *http.Request) {
	m.Called(w, r)
}

func (m *mockHandler) ListImageAnnotations(w http.ResponseWriter, r *http.Request) {
	m.Called(w, r)
}

func (m *mockHandler) ReviewAnnotation(w http.ResponseWriter, r *http.Request) {
	m.Called(w, r)
}

func (m *mockHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	m.Called(w, r)
}

type mockHealthChecker struct {
	mock.Mock
}

func (m *mockHealthChecker) GTG() gtg.Status {
	args := m.Called()
	return args.Get(0).(gtg.Status)
}

func (m *mockHealthChecker) HealthCheckHandleFunc() func(w http.ResponseWriter, r *http.Request) {
	args := m.Called()
	return args.Get(0).(func(w http.ResponseWriter, r *http.Request))
}

func TestSetupRoutes(t *testing.T) {
	testCases := []struct {
		name           string
		route          string
		expectedStatus int
		method         string
	}{
		{
			name:           "ListProjects",
			route:          "/projects",
			expectedStatus: http.StatusOK,
			method:         http.MethodGet,
		},
		{
			name:           "GetProject",
			route:          "/projects/42",
			expectedStatus: http.StatusOK,
			method:         http.MethodGet,
		},
		{
			name:           "ListProjectImages",
			route:          "/projects/42/images",
			expectedStatus: http.StatusOK,
			method:         http.MethodGet,
		},
		{
			name:           "ListImageAnnotations",
			route:          "/images/7/annotations",
			expectedStatus: http.StatusOK,
			method:         http.MethodGet,
		},
		{
			name:           "ReviewAnnotation",
			route:          "/annotations/11/review",
			expectedStatus: http.StatusOK,
			method:         http.MethodPost,
		},
		{
			name:           "CurrentUser",
			route:          "/me",
			expectedStatus: http.StatusOK,
			method:         http.MethodGet,
		},
	}

	h := new(mockHandler)
	healthService := new(mockHealthChecker)
	logger := l.NewUPPLogger("test", "info")
	s := New(nil, nil, h, healthService, logger)
	routerFunc := s.setupRoutes()
	router := mux.NewRouter()
	routerFunc(router)

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, tc.route, nil)
			if err != nil {
				t.Fatal(err)
			}

			h.On(tc.name, mock.Anything, mock.Anything).Return()

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			h.AssertCalled(t, tc.name, mock.Anything, mock.Anything)
		})
	}
}

func TestReviewRouteRejectsGet(t *testing.T) {
	h := new(mockHandler)
	s := New(nil, nil, h, new(mockHealthChecker), l.NewUPPLogger("test", "info"))
	router := mux.NewRouter()
	s.setupRoutes()(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/annotations/11/review", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	h.AssertNotCalled(t, "ReviewAnnotation", mock.Anything, mock.Anything)
}

func TestRouterServesHealthAndGTG(t *testing.T) {
	h := new(mockHandler)
	h.On("CurrentUser", mock.Anything, mock.Anything).Return()

	healthService := new(mockHealthChecker)
	healthService.On("GTG").Return(gtg.Status{GoodToGo: true})
	healthService.On("HealthCheckHandleFunc").Return(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s := New(nil, nil, h, healthService, l.NewUPPLogger("test", "info"))
	router := s.router(s.setupRoutes())

	for _, path := range []string{"/__health", "/__gtg", "/me"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
	healthService.AssertCalled(t, "GTG")
	h.AssertCalled(t, "CurrentUser", mock.Anything, mock.Anything)
}

func TestStartServer(t *testing.T) {
	h := new(mockHandler)
	h.On("ListProjects", mock.Anything, mock.Anything).Return()

	healthService := new(mockHealthChecker)
	healthService.On("GTG").Return(gtg.Status{GoodToGo: true})
	healthService.On("HealthCheckHandleFunc").Return(func(_ http.ResponseWriter, _ *http.Request) {})

	logger := l.NewUPPLogger("test", "info")
	port := 8181
	apiYml := "../api.yml"
	s := New(&port, &apiYml, h, healthService, logger)
	srv := s.startServer(s.setupRoutes())
	defer func() {
		assert.NoError(t, srv.Close())
	}()

	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = http.Get("http://localhost:8181/projects")
		return err == nil
	}, 3*time.Second, 50*time.Millisecond)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	h.AssertCalled(t, "ListProjects", mock.Anything, mock.Anything)
}

func TestListenForShutdownSignal(t *testing.T) {
	h := new(mockHandler)
	healthService := new(mockHealthChecker)

	logger := l.NewUPPLogger("test", "info")
	port := 8080
	apiYml := "../api.yml"
	s := New(&port, &apiYml, h, healthService, logger)

	shutdown := s.listenForShutdownSignal()

	go func() {
		time.Sleep(time.Millisecond * 100)
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGINT)
	}()

	select {
	case <-shutdown:
	case <-time.After(time.Second):
		t.Fatal("did not receive shutdown signal")
	}
}

type mockServer struct {
	mock.Mock
}

func (m *mockServer) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockServer) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestWaitForShutdownSignal(t *testing.T) {
	h := new(mockHandler)
	healthService := new(mockHealthChecker)
	logger := l.NewUPPLogger("test", "info")
	port := 8080
	apiYml := "../api.yml"

	s := New(&port, &apiYml, h, healthService, logger)

	srv := new(mockServer)
	srv.On("Close").Return(nil)

	shutdown := make(chan bool, 1)
	shutdown <- true

	s.waitForShutdownSignal(srv, shutdown)

	srv.AssertCalled(t, "Close")
}

package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antonio-alexander/go-blog-pages/internal"
	"github.com/antonio-alexander/go-blog-pages/internal/cache"
	"github.com/antonio-alexander/go-blog-pages/internal/data"
	"github.com/antonio-alexander/go-blog-pages/internal/logic"
	"github.com/antonio-alexander/go-blog-pages/internal/pages"
	"github.com/antonio-alexander/go-blog-pages/internal/utilities"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
)

const (
	defaultAddress         string        = "localhost"
	defaultPort            string        = "5000"
	defaultShutdownTimeout time.Duration = 10 * time.Second
	defaultFormMaxBytes    int64         = 10 << 20
)

// routeUnmatched labels metrics for requests that didn't match any
// route so arbitrary paths don't become labels
const routeUnmatched string = "unmatched"

var (
	Version   string
	GitCommit string
	GitBranch string
)

func init() {
	if Version = data.Version; Version == "" {
		Version = "<no_version_provided>"
	}
	if GitCommit = data.GitCommit; GitCommit == "" {
		GitCommit = "<no_git_commit>"
	}
	if GitBranch = data.GitBranch; GitBranch == "" {
		GitBranch = "<no_git_branch>"
	}
}

type Service interface {
	// Handler returns the router (wrapped with cors and the
	// request middleware)
	Handler() http.Handler

	// Address returns the address the service is listening on
	// once opened
	Address() string
}

type service struct {
	sync.RWMutex
	sync.WaitGroup
	config struct {
		address          string
		port             string
		shutdownTimeout  time.Duration
		formMaxBytes     int64
		allowedOrigins   []string
		allowedMethods   []string
		allowedHeaders   []string
		allowCredentials bool
		corsDisabled     bool
		corsDebug        bool
		timersEnabled    bool
		sslCrtFile       string
		sslKeyFile       string
		sslCaFile        string
	}
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	handler http.Handler
	address string
	*mux.Router
	*http.Server
	cache    internal.Clearer
	reloader pages.Reloader
	metrics  utilities.Metrics
	utilities.Logger
	utilities.Counter
	utilities.Timers
	logic.Logic
}

func NewService(parameters ...any) interface {
	internal.Configurer
	internal.Opener
	Service
} {
	//KIM: the employee id is opaque, cleaning the path would redirect
	// ids such as .. or a//b instead of rendering them
	router := mux.NewRouter().SkipClean(true)
	s := &service{
		Router: router,
		Server: &http.Server{
			Handler: router,
		},
		Logger:  utilities.NewLogger(),
		Counter: utilities.NewCounter(),
		Timers:  utilities.NewTimers(),
	}
	s.config.address = defaultAddress
	s.config.port = defaultPort
	s.config.shutdownTimeout = defaultShutdownTimeout
	s.config.formMaxBytes = defaultFormMaxBytes
	for _, parameter := range parameters {
		//KIM: order matters, most of these embed a logger
		switch p := parameter.(type) {
		case logic.Logic:
			s.Logic = p
		case pages.Reloader:
			s.reloader = p
		case interface {
			cache.Cache
			internal.Clearer
		}:
			s.cache = p
		case utilities.Metrics:
			s.metrics = p
		case utilities.Counter:
			s.Counter = p
		case utilities.Timers:
			s.Timers = p
		case utilities.Logger:
			s.Logger = p
		}
	}
	return s
}

func (s *service) launchServer(listener net.Listener) {
	started := make(chan struct{})
	s.Add(1)
	go func() {
		defer s.WaitGroup.Done()

		var err error

		close(started)
		switch {
		default:
			err = s.Server.Serve(listener)
		case s.Server.TLSConfig != nil:
			err = s.Server.ServeTLS(listener, "", "")
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Error(s.ctx, "server stopped unexpectedly: %s", err)
		}
	}()
	<-started
	s.Info(s.ctx, "started server: %s", s.address)
}

// timer starts a timer for the group and returns the function that stops
// it; it's a no-op unless timers are enabled
func (s *service) timer(ctx context.Context, group string) func() {
	if !s.config.timersEnabled {
		return func() {}
	}
	index := s.Timers.Start(group)
	return func() {
		elapsedTime := s.Timers.Stop(group, index)
		s.Trace(ctx, "%s took %v", group, time.Duration(elapsedTime))
	}
}

func (s *service) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		correlationId := getCorrelationId(request)
		ctx := internal.CtxWithCorrelationId(request.Context(), correlationId)
		writer.Header().Set(data.HeaderCorrelationId, correlationId)
		recorder := &statusRecorder{ResponseWriter: writer}
		tStart := time.Now()
		next.ServeHTTP(recorder, request.WithContext(ctx))
		elapsed := time.Since(tStart)
		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		route := routeUnmatched
		if match := (&mux.RouteMatch{}); s.Router.Match(request, match) && match.Route != nil {
			if pathTemplate, err := match.Route.GetPathTemplate(); err == nil {
				route = pathTemplate
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveRequest(route, request.Method, status, elapsed)
		}
		s.Debug(ctx, "%s %s %d (%v)", request.Method, request.URL.Path, status, elapsed)
	})
}

func (s *service) endpointVersion() func(http.ResponseWriter, *http.Request) {
	return func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(writer,
			"go-blog-pages\n"+
				"Version: \"%s\"\n"+
				"Git Commit: \"%s\"\n"+
				"Git Branch: \"%s\"\n",
			Version, GitCommit, GitBranch)
	}
}

func (s *service) endpointIndex(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	defer s.timer(ctx, "index")()
	page, err := s.Page(ctx, data.TemplateIndex, data.PageKeyIndex,
		data.NewIndexPage())
	if err != nil {
		s.Error(ctx, "error while rendering index: %s", err)
	}
	handlePage(writer, err, page)
	s.Trace(ctx, "executed index")
}

func (s *service) endpointEmployee(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	defer s.timer(ctx, "employee")()
	id := mux.Vars(request)[data.PathId]
	page, err := s.Page(ctx, data.TemplateEmployee, data.PageKeyEmployee+id,
		&data.EmployeePage{Id: id})
	if err != nil {
		s.Error(ctx, "error while rendering employee (%q): %s", id, err)
	}
	handlePage(writer, err, page)
	s.Trace(ctx, "executed employee: %q", id)
}

func (s *service) endpointContact(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	defer s.timer(ctx, "contact")()
	page, err := s.Page(ctx, data.TemplateContact, data.PageKeyContact,
		&data.ContactPage{})
	if err != nil {
		s.Error(ctx, "error while rendering contact: %s", err)
	}
	handlePage(writer, err, page)
	s.Trace(ctx, "executed contact")
}

func (s *service) endpointFormHandler(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	defer s.timer(ctx, "form_handler")()
	form, err := formFromRequest(writer, request, s.config.formMaxBytes)
	if err != nil {
		s.Debug(ctx, "error while parsing form: %s", err)
		handleResponse(writer, err)
		return
	}
	handleResponse(writer, nil, form)
	s.Trace(ctx, "executed form_handler: %d field(s)", len(form))
}

func (s *service) endpointCacheClear(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	if s.cache != nil {
		if err := s.cache.Clear(ctx); err != nil {
			handleResponse(writer, err)
			return
		}
		s.Trace(ctx, "executed cache_clear")
	}
	handleResponse(writer, nil)
}

func (s *service) endpointCacheCountersRead(writer http.ResponseWriter, _ *http.Request) {
	handleResponse(writer, nil, s.Counter.ReadAll())
}

func (s *service) endpointCacheCountersClear(writer http.ResponseWriter, request *http.Request) {
	s.Counter.Reset()
	handleResponse(writer, nil)
	s.Trace(request.Context(), "executed cache_counters_clear")
}

func (s *service) endpointTimersRead(writer http.ResponseWriter, _ *http.Request) {
	handleResponse(writer, nil, s.Timers.ReadAll())
}

func (s *service) endpointTimersClear(writer http.ResponseWriter, request *http.Request) {
	s.Timers.Clear()
	handleResponse(writer, nil)
	s.Trace(request.Context(), "executed timers_clear")
}

func (s *service) buildRoutes() {
	s.Router.HandleFunc(data.RouteIndex, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodGet, http.MethodHead:
			s.endpointIndex(w, r)
		}
	})
	s.Router.HandleFunc(data.RouteEmployeeId, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodGet, http.MethodHead:
			s.endpointEmployee(w, r)
		}
	})
	s.Router.HandleFunc(data.RouteContact, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodGet, http.MethodHead:
			s.endpointContact(w, r)
		}
	})
	s.Router.HandleFunc(data.RouteFormHandler, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodPost:
			s.endpointFormHandler(w, r)
		}
	})
	s.Router.HandleFunc(data.RouteVersion, s.endpointVersion())
	s.Router.HandleFunc(data.RouteCacheCounters, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodGet:
			s.endpointCacheCountersRead(w, r)
		case http.MethodDelete:
			s.endpointCacheCountersClear(w, r)
		}
	})
	s.Router.HandleFunc(data.RouteCache, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodDelete:
			s.endpointCacheClear(w, r)
		}
	})
	s.Router.HandleFunc(data.RouteTimers, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodGet:
			s.endpointTimersRead(w, r)
		case http.MethodDelete:
			s.endpointTimersClear(w, r)
		}
	})
	if s.metrics != nil {
		s.Router.Handle(data.RouteMetrics, s.metrics.Handler()).Methods(http.MethodGet)
	}
	if s.reloader != nil {
		if reloadHandler := s.reloader.ReloadHandler(); reloadHandler != nil {
			s.Router.HandleFunc(data.RouteReload, reloadHandler).Methods(http.MethodGet)
		}
	}
}

func (s *service) Configure(envs map[string]string) error {
	if address, ok := envs["SERVICE_ADDRESS"]; ok {
		s.config.address = address
	}
	if port, ok := envs["SERVICE_PORT"]; ok {
		s.config.port = port
	}
	if shutdownTimeoutString, ok := envs["SERVICE_SHUTDOWN_TIMEOUT"]; ok {
		if shutdownTimeoutInt, err := strconv.Atoi(shutdownTimeoutString); err == nil {
			if timeout := time.Duration(shutdownTimeoutInt) * time.Second; timeout > 0 {
				s.config.shutdownTimeout = timeout
			}
		}
	}
	if formMaxBytesString, ok := envs["SERVICE_FORM_MAX_BYTES"]; ok {
		if formMaxBytes, err := strconv.ParseInt(formMaxBytesString, 10, 64); err == nil && formMaxBytes > 0 {
			s.config.formMaxBytes = formMaxBytes
		}
	}
	if allowCredentialsString, ok := envs["SERVICE_CORS_ALLOW_CREDENTIALS"]; ok {
		if allowCredentials, err := strconv.ParseBool(allowCredentialsString); err == nil {
			s.config.allowCredentials = allowCredentials
		}
	}
	if allowedOrigins := envs["SERVICE_CORS_ALLOWED_ORIGINS"]; allowedOrigins != "" {
		s.config.allowedOrigins = strings.Split(allowedOrigins, ",")
	}
	if allowedMethods := envs["SERVICE_CORS_ALLOWED_METHODS"]; allowedMethods != "" {
		s.config.allowedMethods = strings.Split(allowedMethods, ",")
	}
	if allowedHeaders := envs["SERVICE_CORS_ALLOWED_HEADERS"]; allowedHeaders != "" {
		s.config.allowedHeaders = strings.Split(allowedHeaders, ",")
	}
	if corsDisabledString, ok := envs["SERVICE_CORS_DISABLED"]; ok {
		if corsDisabled, err := strconv.ParseBool(corsDisabledString); err == nil {
			s.config.corsDisabled = corsDisabled
		}
	}
	if corsDebug, ok := envs["SERVICE_CORS_DEBUG"]; ok {
		if corsDebug, err := strconv.ParseBool(corsDebug); err == nil {
			s.config.corsDebug = corsDebug
		}
	}
	if timersEnabled := envs["SERVICE_TIMERS_ENABLED"]; timersEnabled != "" {
		s.config.timersEnabled, _ = strconv.ParseBool(timersEnabled)
	}
	if sslCrtFile, ok := envs["SSL_CRT_FILE"]; ok {
		s.config.sslCrtFile = sslCrtFile
	}
	if sslKeyFile, ok := envs["SSL_KEY_FILE"]; ok {
		s.config.sslKeyFile = sslKeyFile
	}
	if sslCaFile, ok := envs["SSL_CA_FILE"]; ok {
		s.config.sslCaFile = sslCaFile
	}
	return nil
}

func (s *service) Handler() http.Handler {
	s.once.Do(func() {
		var handler http.Handler = s.Router

		s.buildRoutes()
		if !s.config.corsDisabled {
			handler = cors.New(cors.Options{
				AllowedOrigins:   s.config.allowedOrigins,
				AllowCredentials: s.config.allowCredentials,
				AllowedMethods:   s.config.allowedMethods,
				AllowedHeaders:   s.config.allowedHeaders,
				Debug:            s.config.corsDebug,
			}).Handler(handler)
		}
		//KIM: the middleware wraps the router rather than being added
		// with Use so requests that don't match a route are covered too
		s.handler = s.middleware(handler)
	})
	return s.handler
}

func (s *service) Address() string {
	s.RLock()
	defer s.RUnlock()

	return s.address
}

func (s *service) Open(ctx context.Context) error {
	s.Lock()
	defer s.Unlock()

	if s.Logic == nil {
		return errors.New("logic not set")
	}
	tlsConfig, err := internal.GetTlsConfig(s.config.sslCrtFile,
		s.config.sslKeyFile, s.config.sslCaFile)
	if err != nil {
		return err
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.Server.Addr = net.JoinHostPort(s.config.address, s.config.port)
	s.Server.Handler = s.Handler()
	s.Server.TLSConfig = tlsConfig
	//KIM: listening here rather than in the go routine allows us to
	// fail immediately if the port is already in use
	listener, err := net.Listen("tcp", s.Server.Addr)
	if err != nil {
		s.cancel()
		return errors.Wrapf(err, "while listening on %s", s.Server.Addr)
	}
	s.address = listener.Addr().String()
	s.launchServer(listener)
	return nil
}

func (s *service) Close(ctx context.Context) error {
	s.Lock()
	defer s.Unlock()

	if s.cancel == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.shutdownTimeout)
	defer cancel()
	if err := s.Server.Shutdown(ctx); err != nil {
		s.Error(ctx, "error while shutting down the server: %s", err)
	}
	s.cancel()
	s.Wait()
	return nil
}

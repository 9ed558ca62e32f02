// Package api implements the Shopkeep HTTP API: chat turns, approval
// decisions, thread inspection, customer accounts, image search and a
// WebSocket channel that streams interrupts to an approver.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/shopkeep/internal/buildinfo"
	"github.com/nugget/shopkeep/internal/checkpoint"
	"github.com/nugget/shopkeep/internal/events"
	"github.com/nugget/shopkeep/internal/imagesearch"
	"github.com/nugget/shopkeep/internal/store"
	"github.com/nugget/shopkeep/internal/tools"
	"github.com/nugget/shopkeep/internal/workflow"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// maxImageBytes bounds image uploads.
const maxImageBytes = 10 << 20

// Engine is the conversation engine. *workflow.Engine satisfies it.
type Engine interface {
	HandleMessage(ctx context.Context, m workflow.Message) (*workflow.Result, error)
	Resume(ctx context.Context, sig workflow.ResumeSignal) (*workflow.Result, error)
	BindCustomer(ctx context.Context, threadID string, customerID int64) error
	Thread(ctx context.Context, threadID string) (*checkpoint.State, error)
	Checkpoints(ctx context.Context, threadID string, limit int) ([]*checkpoint.Checkpoint, error)
}

// Accounts registers and authenticates customers. *store.Store satisfies it.
type Accounts interface {
	RegisterCustomer(ctx context.Context, reg store.Registration) (*store.Customer, error)
	Login(ctx context.Context, email, password string) (*store.Customer, error)
}

// ImageSearcher finds catalog items similar to an uploaded picture.
type ImageSearcher interface {
	Search(ctx context.Context, filename string, image io.Reader) ([]imagesearch.Product, error)
}

// ImageStore keeps pictures a customer uploads to a thread.
// *imagesearch.Uploads satisfies it.
type ImageStore interface {
	Save(threadID, filename string, image io.Reader) (string, error)
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address   string
	port      int
	engine    Engine
	accounts  Accounts
	images    ImageSearcher
	uploads   ImageStore
	health    HealthChecker
	bus       *events.Bus
	anonymous string
	logger    *slog.Logger
	server    *http.Server
	upgrader  websocket.Upgrader
}

// NewServer creates a new API server.
func NewServer(address string, port int, engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		engine:  engine,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// SetAccounts enables the register and login endpoints.
func (s *Server) SetAccounts(a Accounts) {
	s.accounts = a
}

// SetImageSearch enables the image upload endpoint.
func (s *Server) SetImageSearch(is ImageSearcher) {
	s.images = is
}

// SetUploads enables picture uploads to a thread.
func (s *Server) SetUploads(u ImageStore) {
	s.uploads = u
}

// SetHealthCheck makes /health report the given dependency.
func (s *Server) SetHealthCheck(h HealthChecker) {
	s.health = h
}

// SetEvents enables the WebSocket approval channel.
func (s *Server) SetEvents(bus *events.Bus) {
	s.bus = bus
}

// SetAnonymousID sets the customer id front-ends send for a session
// with nobody logged in.
func (s *Server) SetAnonymousID(id string) {
	s.anonymous = id
}

// SetCheckOrigin overrides the WebSocket origin check. The default
// accepts same-origin requests only.
func (s *Server) SetCheckOrigin(fn func(r *http.Request) bool) {
	s.upgrader.CheckOrigin = fn
}

// Handler returns the routed, logged handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/threads/{id}", s.handleThread)
	mux.HandleFunc("POST /v1/threads/{id}/resume", s.handleResume)
	mux.HandleFunc("POST /v1/threads/{id}/images", s.handleUpload)
	mux.HandleFunc("GET /v1/ws", s.handleWebSocket)

	mux.HandleFunc("POST /v1/accounts/register", s.handleRegister)
	mux.HandleFunc("POST /v1/accounts/login", s.handleLogin)
	mux.HandleFunc("POST /v1/images/search", s.handleImageSearch)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. It returns when the server stops;
// a clean Shutdown yields nil.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second, // model turns can be slow
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the WebSocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Shopkeep",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.BuildInfo(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			s.errorResponse(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

// fail maps an engine or store error to a status and writes it.
// Server errors are logged; their detail is not returned.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(code)
	}
	s.errorResponse(w, code, msg)
}

func statusFor(err error) int {
	var te *tools.Error
	switch {
	case errors.Is(err, workflow.ErrEmptyMessage),
		errors.Is(err, workflow.ErrBadDecision),
		errors.Is(err, workflow.ErrBadCustomerID),
		errors.Is(err, imagesearch.ErrBadUploadID):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrAwaitingDecision),
		errors.Is(err, workflow.ErrNotPaused),
		errors.Is(err, workflow.ErrToolCallMismatch),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, checkpoint.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrBadCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, imagesearch.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, imagesearch.ErrUnavailable),
		errors.Is(err, imagesearch.ErrBadResponse):
		return http.StatusBadGateway
	case errors.As(err, &te) && te.Kind == tools.KindValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/rostersync/pkg/importer"
	"github.com/hazyhaar/rostersync/pkg/kit"
	"github.com/hazyhaar/rostersync/pkg/ledger"
	"github.com/hazyhaar/rostersync/pkg/metrics"
	"github.com/hazyhaar/rostersync/pkg/reconcile"
	"github.com/hazyhaar/rostersync/pkg/registry"
)

// RunStore is the read side of the run ledger.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]ledger.Run, error)
	Run(ctx context.Context, id string) (ledger.Run, error)
	RunRows(ctx context.Context, runID string) ([]reconcile.RowResult, error)
}

// HealthSource reports the last registry check.
type HealthSource interface {
	Last() registry.Health
}

// Options configure a Server. Runs, Health and Metrics may be nil.
type Options struct {
	APIKey         string
	MaxUploadBytes int64
	Read           importer.Options
	Runs           RunStore
	Health         HealthSource
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Version        string
}

// Server serves the rostersync HTTP API and MCP tools.
type Server struct {
	engine    atomic.Pointer[reconcile.Engine]
	read      atomic.Pointer[importer.Options]
	apiKey    string
	maxUpload int64
	runs      RunStore
	health    HealthSource
	metrics   *metrics.Metrics
	logger    *slog.Logger

	reconcile kit.Endpoint
	derive    kit.Endpoint
	decide    kit.Endpoint
	normalize kit.Endpoint
	listRuns  kit.Endpoint

	mux *http.ServeMux
}

// NewServer builds the routes over e.
func NewServer(e *reconcile.Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		apiKey:    opts.APIKey,
		maxUpload: opts.MaxUploadBytes,
		runs:      opts.Runs,
		health:    opts.Health,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		mux:       http.NewServeMux(),
	}
	s.Swap(e, opts.Read)

	logged := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Logging(s.logger, name)(ep)
	}
	s.reconcile = logged("reconcile", reconcileEndpoint(s))
	s.derive = logged("derive", deriveEndpoint(s))
	s.decide = logged("decide", decideEndpoint(s))
	s.normalize = logged("normalize", normalizeEndpoint(s))
	s.listRuns = logged("list_runs", listRunsEndpoint(s))

	s.mux.Handle("POST /v1/reconcile", s.requireKey(http.HandlerFunc(s.handleReconcile)))
	s.mux.HandleFunc("POST /v1/derive", s.handleDerive)
	s.mux.HandleFunc("POST /v1/decide", s.handleDecide)
	s.mux.HandleFunc("POST /v1/normalize", s.handleNormalize)
	s.mux.Handle("GET /v1/runs", s.requireKey(http.HandlerFunc(s.handleListRuns)))
	s.mux.Handle("GET /v1/runs/{id}", s.requireKey(http.HandlerFunc(s.handleGetRun)))
	s.mux.HandleFunc("GET /v1/health", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mcpSrv := server.NewMCPServer("rostersync", opts.Version, server.WithToolCapabilities(false))
	s.RegisterMCPTools(mcpSrv)
	s.mux.Handle("/mcp", s.requireKey(server.NewStreamableHTTPServer(mcpSrv)))

	return s
}

// Swap replaces the engine and reader options used by subsequent requests.
// In-flight requests finish on the engine they started with.
func (s *Server) Swap(e *reconcile.Engine, read importer.Options) {
	s.engine.Store(e)
	s.read.Store(&read)
}

// Engine returns the current engine.
func (s *Server) Engine() *reconcile.Engine {
	return s.engine.Load()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kit.RequestID(cors(s.mux)).ServeHTTP(w, r)
}

// --- reconcile ---

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	body, filename, err := uploadedFile(r, s.maxUpload)
	if err != nil {
		writeError(w, uploadStatus(err), err.Error())
		return
	}
	defer body.Close()

	format := r.URL.Query().Get("format")
	reader, err := pickReader(format, filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := reader.Read(body, *s.read.Load())
	if err != nil {
		writeError(w, uploadStatus(err), fmt.Sprintf("read %s: %v", reader.Format(), err))
		return
	}

	source := filename
	if source == "" {
		source = "upload." + reader.Format()
	}
	resp, err := s.reconcile(r.Context(), &reconcileReq{
		Source:  source,
		Records: records,
		DryRun:  flag(r, "dry_run"),
		Redact:  flag(r, "redact"),
	})
	if err != nil {
		writeError(w, reconcileStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// uploadedFile returns the multipart "file" part, or the raw body for any
// other content type.
func uploadedFile(r *http.Request, max int64) (io.ReadCloser, string, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.Body, "", nil
	}
	if err := r.ParseMultipartForm(max); err != nil {
		return nil, "", fmt.Errorf("parse multipart form: %w", err)
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("missing file field: %w", err)
	}
	return f, filepath.Base(hdr.Filename), nil
}

func pickReader(format, filename string) (importer.Reader, error) {
	if format != "" {
		return importer.Get(format)
	}
	if filename != "" {
		return importer.ForFilename(filename)
	}
	return importer.Get("csv")
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// reconcileStatus maps engine errors: configuration problems are ours (500),
// anything else failed upstream (502).
func reconcileStatus(err error) int {
	switch {
	case errors.Is(err, reconcile.ErrMissingCredential), errors.Is(err, registry.ErrFieldNotFound):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// --- derive / decide / normalize ---

func (s *Server) handleDerive(w http.ResponseWriter, r *http.Request) {
	var rec importer.Record
	if !decodeBody(w, r, &rec) {
		return
	}
	resp, err := s.derive(r.Context(), &deriveReq{Record: rec})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideReq
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.decide(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeReq
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.normalize(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- runs ---

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	resp, err := s.listRuns(r.Context(), &listRunsReq{Limit: limit})
	if err != nil {
		writeError(w, runsStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, errNoLedger.Error())
		return
	}
	id := r.PathValue("id")
	run, err := s.runs.Run(r.Context(), id)
	if err != nil {
		writeError(w, runsStatus(err), err.Error())
		return
	}
	rows, err := s.runs.RunRows(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Results: rows})
}

func runsStatus(err error) int {
	switch {
	case errors.Is(err, errNoLedger):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadLimit):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// --- health ---

type healthResponse struct {
	Status   string           `json:"status"`
	Registry *registry.Health `json:"registry,omitempty"`
	Ledger   bool             `json:"ledger"`
	Stages   []string         `json:"stages"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Ledger: s.runs != nil,
		Stages: s.Engine().Gate.Vocabulary().Labels(),
	}
	if s.health != nil {
		h := s.health.Last()
		resp.Registry = &h
		if !h.OK && !h.CheckedAt.IsZero() {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- helpers ---

func flag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024) // 64 KiB max
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// requireKey checks X-API-Key in constant time. With no key configured every
// request is refused.
func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-API-Key")
		if s.apiKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// cors is a simple CORS middleware for browser-based clients.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

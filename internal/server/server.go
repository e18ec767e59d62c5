// Package server exposes the tokenizer over HTTP: GET /health,
// POST /tokenize, and POST /detokenize, all JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-fast-wordpiece/internal/config"
	"github.com/example/go-fast-wordpiece/internal/wordpiece"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes int
	workers      int
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes: 1 << 20,
		workers:      4,
		logger:       slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST
// /tokenize.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrently served tokenizations.
// Zero disables throttling; the tokenizer itself is safe for any number of
// concurrent callers.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	tok  *wordpiece.Tokenizer
	opts options
	sem  chan struct{} // semaphore for worker pool
	log  *slog.Logger
}

// NewHandler returns an http.Handler serving /health, /tokenize, and
// /detokenize over the given tokenizer.
func NewHandler(tok *wordpiece.Tokenizer, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		tok:  tok,
		opts: opts,
		log:  opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/tokenize", h.handleTokenize)
	mux.HandleFunc("/detokenize", h.handleDetokenize)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type tokenizeRequest struct {
	Text        string `json:"text"`
	WithPieces  bool   `json:"with_pieces"`
	WithOffsets bool   `json:"with_offsets"`
	WordOffset  int    `json:"word_offset"`
}

type tokenizeResponse struct {
	IDs    []int    `json:"ids"`
	Pieces []string `json:"pieces,omitempty"`
	Starts []int    `json:"starts,omitempty"`
	Ends   []int    `json:"ends,omitempty"`
}

func (h *handler) handleTokenize(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()

	var req tokenizeRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}
	if !h.acquireWorker(w, r) {
		return
	}
	defer h.releaseWorker()

	start := time.Now()
	resp := tokenizeResponse{IDs: []int{}}
	switch {
	case req.WithPieces:
		resp.Pieces = []string{}
		resp.Starts = []int{}
		resp.Ends = []int{}
		h.tok.Tokenize(req.Text, &resp.Pieces, &resp.IDs, &resp.Starts, &resp.Ends, req.WordOffset)
	case req.WithOffsets:
		resp.Starts = []int{}
		resp.Ends = []int{}
		h.tok.TokenizeIDsOffsets(req.Text, &resp.IDs, &resp.Starts, &resp.Ends, req.WordOffset)
	default:
		h.tok.TokenizeIDs(req.Text, &resp.IDs, req.WordOffset)
	}

	h.log.InfoContext(r.Context(), "tokenize complete",
		slog.String("request_id", reqID),
		slog.Int("text_len", len(req.Text)),
		slog.Int("tokens", len(resp.IDs)),
		slog.Int64("duration_us", time.Since(start).Microseconds()),
	)
	writeJSON(w, http.StatusOK, resp)
}

type detokenizeRequest struct {
	IDs []int `json:"ids"`
}

type detokenizeResponse struct {
	Text   string   `json:"text"`
	Tokens []string `json:"tokens"`
}

func (h *handler) handleDetokenize(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()

	var req detokenizeRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}
	if !h.acquireWorker(w, r) {
		return
	}
	defer h.releaseWorker()

	tokens, err := h.tok.DetokenizeToTokens(req.IDs)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, wordpiece.ErrDetokenizationDisabled) {
			status = http.StatusConflict
		}
		h.log.WarnContext(r.Context(), "detokenize rejected",
			slog.String("request_id", reqID),
			slog.Int("ids", len(req.IDs)),
			slog.String("error", err.Error()),
		)
		writeError(w, status, err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "detokenize complete",
		slog.String("request_id", reqID),
		slog.Int("ids", len(req.IDs)),
		slog.Int("tokens", len(tokens)),
	)
	if tokens == nil {
		tokens = []string{}
	}
	writeJSON(w, http.StatusOK, detokenizeResponse{
		Text:   strings.Join(tokens, " "),
		Tokens: tokens,
	})
}

// decodeRequest enforces the POST + JSON-body contract shared by both
// endpoints.
func (h *handler) decodeRequest(w http.ResponseWriter, r *http.Request, into any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// acquireWorker blocks for a worker slot, honouring context cancellation
// while waiting.
func (h *handler) acquireWorker(w http.ResponseWriter, r *http.Request) bool {
	if h.sem == nil {
		return true
	}
	select {
	case h.sem <- struct{}{}:
		return true
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
		return false
	}
}

func (h *handler) releaseWorker() {
	if h.sem != nil {
		<-h.sem
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server — wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful
// shutdown.
type Server struct {
	cfg             config.Config
	tok             *wordpiece.Tokenizer
	shutdownTimeout time.Duration
}

func New(cfg config.Config, tok *wordpiece.Tokenizer) *Server {
	return &Server{
		cfg:             cfg,
		tok:             tok,
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) Start(ctx context.Context) error {
	h := NewHandler(s.tok,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(s.cfg.Server.RequestTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks the health endpoint of a running server.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}

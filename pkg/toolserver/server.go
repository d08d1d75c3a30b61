// Package toolserver is a small HTTP tool server speaking the orca tool
// protocol: GET /tools lists the catalog, POST /tools/{name} runs a tool.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/harun/orca/pkg/coretools"
	"github.com/rs/zerolog"
)

// Config holds tool server configuration
type Config struct {
	Root   string
	Logger zerolog.Logger
}

// Server serves file tools confined to a root directory
type Server struct {
	files  *coretools.Files
	tools  []tool
	index  map[string]tool
	logger zerolog.Logger
}

type toolDoc struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type catalogResponse struct {
	Tools []toolDoc `json:"tools"`
}

type invokeRequest struct {
	Arguments []string `json:"arguments"`
}

type invokeResponse struct {
	Output string `json:"output"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// badArgument marks errors answered with 400
type badArgument struct{ err error }

func (b badArgument) Error() string { return b.err.Error() }
func (b badArgument) Unwrap() error { return b.err }

// New creates a tool server rooted at cfg.Root (cwd when empty)
func New(cfg Config) (*Server, error) {
	files, err := coretools.NewFiles(cfg.Root)
	if err != nil {
		return nil, err
	}

	s := &Server{
		files:  files,
		tools:  builtinTools(),
		index:  make(map[string]tool),
		logger: cfg.Logger,
	}
	for _, t := range s.tools {
		s.index[t.name] = t
	}
	return s, nil
}

// Root returns the directory tools are confined to
func (s *Server) Root() string {
	return s.files.Root
}

// Handler returns the chi router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/tools", s.handleCatalog)
	r.Post("/tools/{name}", s.handleInvoke)
	return r
}

// ListenAndServe serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Str("root", s.files.Root).Msg("Tool server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	resp := catalogResponse{Tools: make([]toolDoc, 0, len(s.tools))}
	for _, t := range s.tools {
		resp.Tools = append(resp.Tools, toolDoc{
			Name:        t.name,
			Description: t.description,
			InputSchema: json.RawMessage(t.schema),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, ok := s.index[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown tool: %s", name)})
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	output, err := s.run(t, req.Arguments)
	if err != nil {
		var bad badArgument
		if errors.As(err, &bad) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Warn().Str("tool", name).Err(err).Msg("Tool failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, invokeResponse{Output: output})
}

// run checks arity and confines path arguments before calling the tool
func (s *Server) run(t tool, args []string) (string, error) {
	if len(args) < t.minArgs {
		return "", badArgument{fmt.Errorf("%s expects at least %d argument(s), got %d", t.name, t.minArgs, len(args))}
	}
	if t.maxArgs >= 0 && len(args) > t.maxArgs {
		return "", badArgument{fmt.Errorf("%s expects at most %d argument(s), got %d", t.name, t.maxArgs, len(args))}
	}

	resolved := make([]string, len(args))
	copy(resolved, args)
	for _, i := range t.pathArgs {
		if i >= len(args) {
			continue
		}
		p, err := s.files.Confine(args[i])
		if err != nil {
			return "", badArgument{err}
		}
		resolved[i] = p
	}
	return t.run(s.files, resolved)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Tool request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

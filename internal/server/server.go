package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/claimlens/claimlens/internal/model"
)

// Processor runs calls through the claim-check pipeline.
type Processor interface {
	ProcessTranscript(ctx context.Context, text string) (model.CallReport, error)
	ProcessAudio(ctx context.Context, audioPath string) (model.CallReport, error)
}

// DepChecker probes one upstream dependency. Name labels it in the health
// response.
type DepChecker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server exposes the pipeline over HTTP.
type Server struct {
	processor Processor
	audioDir  string
	deps      []DepChecker
	logger    *zap.Logger
	http      *http.Server
}

type Options struct {
	Addr     string
	AudioDir string
	Deps     []DepChecker
	Logger   *zap.Logger
}

func New(processor Processor, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.AudioDir == "" {
		opts.AudioDir = "data/audio"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Server{
		processor: processor,
		audioDir:  opts.AudioDir,
		deps:      opts.Deps,
		logger:    opts.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/deps", s.handleHealthDeps)
	mux.HandleFunc("POST /process-transcript", s.handleProcessTranscript)
	mux.HandleFunc("POST /process-audio", s.handleProcessAudio)

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the mux, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks serving requests until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "claimlens",
	})
}

func (s *Server) handleHealthDeps(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	status := http.StatusOK
	out := make(map[string]string, len(s.deps))
	for _, dep := range s.deps {
		if err := dep.Check(ctx); err != nil {
			out[dep.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		out[dep.Name] = "ok"
	}
	writeJSON(w, status, out)
}

func (s *Server) handleProcessTranscript(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	report, err := s.processor.ProcessTranscript(r.Context(), body.Text)
	if err != nil {
		s.logger.Error("process transcript failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("file field required: %w", err))
		return
	}
	defer func() { _ = file.Close() }()

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.logger.Error("save upload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	report, err := s.processor.ProcessAudio(r.Context(), path)
	if err != nil {
		s.logger.Error("process audio failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// saveUpload writes the uploaded audio under the audio dir. The client
// filename is reduced to its base name so uploads cannot escape the
// directory.
func (s *Server) saveUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(s.audioDir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	name := filepath.Base(filepath.Clean(filename))
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	path := filepath.Join(s.audioDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	defer func() { _ = dst.Close() }()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

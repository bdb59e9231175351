package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/claimlens/claimlens/internal/model"
)

type fakeProcessor struct {
	transcriptErr error
	lastText      string
	lastAudio     string
}

func (f *fakeProcessor) ProcessTranscript(_ context.Context, text string) (model.CallReport, error) {
	f.lastText = text
	if f.transcriptErr != nil {
		return model.CallReport{}, f.transcriptErr
	}
	return model.CallReport{ID: "r1", CallSummary: "ok"}, nil
}

func (f *fakeProcessor) ProcessAudio(_ context.Context, path string) (model.CallReport, error) {
	f.lastAudio = path
	return model.CallReport{ID: "r2"}, nil
}

func newTestServer(t *testing.T, proc Processor, deps ...DepChecker) *Server {
	t.Helper()
	return New(proc, Options{
		AudioDir: t.TempDir(),
		Deps:     deps,
		Logger:   zap.NewNop(),
	})
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeProcessor{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "claimlens" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthDeps(t *testing.T) {
	ok := DepChecker{Name: "watsonx", Check: func(context.Context) error { return nil }}
	bad := DepChecker{Name: "index", Check: func(context.Context) error { return errors.New("corpus missing") }}
	s := newTestServer(t, &fakeProcessor{}, ok, bad)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/deps", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["watsonx"] != "ok" {
		t.Errorf("watsonx = %q", body["watsonx"])
	}
	if !strings.Contains(body["index"], "corpus missing") {
		t.Errorf("index = %q", body["index"])
	}
}

func TestProcessTranscript(t *testing.T) {
	proc := &fakeProcessor{}
	s := newTestServer(t, proc)

	req := httptest.NewRequest(http.MethodPost, "/process-transcript",
		strings.NewReader(`{"text": "Revenue grew 40%."}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if proc.lastText != "Revenue grew 40%." {
		t.Errorf("processor got %q", proc.lastText)
	}
	var report model.CallReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.ID != "r1" {
		t.Errorf("report id = %q", report.ID)
	}
}

func TestProcessTranscriptRejectsEmpty(t *testing.T) {
	s := newTestServer(t, &fakeProcessor{})
	req := httptest.NewRequest(http.MethodPost, "/process-transcript",
		strings.NewReader(`{"text": "  "}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestProcessTranscriptPipelineError(t *testing.T) {
	s := newTestServer(t, &fakeProcessor{transcriptErr: errors.New("corpus missing")})
	req := httptest.NewRequest(http.MethodPost, "/process-transcript",
		strings.NewReader(`{"text": "x"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestProcessAudioSavesUpload(t *testing.T) {
	proc := &fakeProcessor{}
	s := newTestServer(t, proc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "../sneaky/call.wav")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("fake audio bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/process-audio", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.HasSuffix(proc.lastAudio, "call.wav") {
		t.Errorf("audio path = %q", proc.lastAudio)
	}
	if strings.Contains(proc.lastAudio, "..") {
		t.Errorf("upload escaped audio dir: %q", proc.lastAudio)
	}
	if _, err := os.Stat(proc.lastAudio); err != nil {
		t.Errorf("saved file missing: %v", err)
	}
}

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/claimlens/claimlens/internal/extract"
	"github.com/claimlens/claimlens/internal/index"
	"github.com/claimlens/claimlens/internal/model"
	"github.com/claimlens/claimlens/internal/report"
	"github.com/claimlens/claimlens/internal/retrieve"
	"github.com/claimlens/claimlens/internal/verify"
	"github.com/claimlens/claimlens/internal/watsonx"
)

type fakeExtractor struct{ claims []model.Claim }

func (f *fakeExtractor) Extract(context.Context, []model.Segment) []model.Claim { return f.claims }

type fakeRetriever struct {
	evidence map[string][]model.Evidence
	err      error
	calls    int
}

func (f *fakeRetriever) Retrieve(context.Context, []model.Claim) (map[string][]model.Evidence, error) {
	f.calls++
	return f.evidence, f.err
}

type fakeVerifier struct{ verdicts []model.Verdict }

func (f *fakeVerifier) Verify(context.Context, []model.Claim, map[string][]model.Evidence) []model.Verdict {
	return f.verdicts
}

type fakeBuilder struct{ lastClaims []model.Claim }

func (f *fakeBuilder) Build(_ context.Context, _ []model.Segment, claims []model.Claim, _ map[string][]model.Evidence, _ []model.Verdict) model.CallReport {
	f.lastClaims = claims
	return model.CallReport{ID: "r1", Claims: claims}
}

func TestNoClaimsSkipsRetrievalAndVerification(t *testing.T) {
	retriever := &fakeRetriever{}
	builder := &fakeBuilder{}
	p, err := New(Options{
		Extractor: &fakeExtractor{},
		Retriever: retriever,
		Verifier:  &fakeVerifier{},
		Builder:   builder,
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rep, err := p.ProcessTranscript(context.Background(), "hello, how is everyone?")
	if err != nil {
		t.Fatalf("ProcessTranscript: %v", err)
	}
	if retriever.calls != 0 {
		t.Error("retriever called despite zero claims")
	}
	if rep.ID == "" {
		t.Error("minimal report missing id")
	}
}

func TestRetrievalErrorAbortsCall(t *testing.T) {
	p, err := New(Options{
		Extractor: &fakeExtractor{claims: []model.Claim{{ID: "c0", Text: "x"}}},
		Retriever: &fakeRetriever{err: errors.New("corpus missing")},
		Verifier:  &fakeVerifier{},
		Builder:   &fakeBuilder{},
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.ProcessTranscript(context.Background(), "Revenue grew 40%."); err == nil {
		t.Fatal("expected retrieval error to propagate")
	}
}

func TestProcessAudioWithoutTranscriber(t *testing.T) {
	p, err := New(Options{
		Extractor: &fakeExtractor{},
		Retriever: &fakeRetriever{},
		Verifier:  &fakeVerifier{},
		Builder:   &fakeBuilder{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.ProcessAudio(context.Background(), "call.wav"); err == nil {
		t.Fatal("expected error without a transcriber")
	}
}

// scriptedGenerator routes prompts to canned outputs per pipeline stage.
type scriptedGenerator struct{}

func (scriptedGenerator) Generate(_ context.Context, _ string, prompt string, _ watsonx.GenerationParams) (string, error) {
	switch {
	case strings.Contains(prompt, "You extract factual claims"):
		return `{"claims": [{"text": "Revenue grew 40% quarter over quarter", "speaker": "A", "confidence": 0.8}]}`, nil
	case strings.Contains(prompt, "precise fact verifier"):
		return `{"verdicts": [{"claim_id": "c0", "label": "supported", "confidence": 0.9, "citation_ids": ["rev"], "rationale": "Matches the Q2 report."}]}`, nil
	case strings.Contains(prompt, "meeting summarizer"):
		return `{"call_summary": "The revenue growth claim is supported by the Q2 report.", "action_items": ["Share the Q2 report."]}`, nil
	}
	return "", errors.New("unexpected prompt")
}

func TestEndToEndTranscriptToReport(t *testing.T) {
	corpus := filepath.Join(t.TempDir(), "snippets.jsonl")
	err := os.WriteFile(corpus, []byte(
		`{"doc_id": "rev", "source": "Q2 report", "snippet": "Revenue grew 40% quarter over quarter per the Q2 report."}`+"\n"+
			`{"doc_id": "hiring", "snippet": "The company hired 30 new engineers in March."}`+"\n"), 0o644)
	if err != nil {
		t.Fatalf("write corpus: %v", err)
	}

	ix, err := index.New(index.Options{
		CorpusPath: corpus,
		Embedder:   index.NewLocalEmbedder(256),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("index.New: %v", err)
	}

	gen := scriptedGenerator{}
	p, err := New(Options{
		Extractor: extract.New(gen, "extract-model", zap.NewNop()),
		Retriever: retrieve.New(ix, retrieve.Options{Logger: zap.NewNop()}),
		Verifier:  verify.New(gen, "verify-model", zap.NewNop()),
		Builder:   report.New(gen, "summary-model", report.Options{Logger: zap.NewNop()}),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rep, err := p.ProcessTranscript(context.Background(), "We grew revenue 40% quarter over quarter.")
	if err != nil {
		t.Fatalf("ProcessTranscript: %v", err)
	}

	if len(rep.Claims) != 1 || rep.Claims[0].ID != "c0" {
		t.Fatalf("claims = %+v", rep.Claims)
	}
	if len(rep.Verdicts) != 1 {
		t.Fatalf("verdicts = %+v", rep.Verdicts)
	}
	verdict := rep.Verdicts[0]
	if verdict.Label != model.LabelSupported {
		t.Errorf("label = %q, want supported", verdict.Label)
	}
	if verdict.BestEvidenceID != "rev" {
		t.Errorf("best evidence = %q, want rev", verdict.BestEvidenceID)
	}
	if rep.CallSummary == "" || len(rep.ActionItems) == 0 {
		t.Errorf("summary = %q, actions = %v", rep.CallSummary, rep.ActionItems)
	}
	if len(rep.ClaimTable) != 1 || rep.ClaimTable[0].Status != "Supported" {
		t.Errorf("claim table = %+v", rep.ClaimTable)
	}
}

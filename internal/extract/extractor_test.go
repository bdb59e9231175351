package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/claimlens/claimlens/internal/model"
	"github.com/claimlens/claimlens/internal/watsonx"
)

type fakeGenerator struct {
	responses []string
	err       error

	calls   int
	prompts []string
	params  []watsonx.GenerationParams
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, prompt string, params watsonx.GenerationParams) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.params = append(f.params, params)
	if f.err != nil {
		return "", f.err
	}
	i := f.calls - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func segs(texts ...string) []model.Segment {
	out := make([]model.Segment, len(texts))
	for i, t := range texts {
		out[i] = model.Segment{Speaker: "A", Text: t}
	}
	return out
}

func TestExtractParsesClaims(t *testing.T) {
	gen := &fakeGenerator{responses: []string{` {
  "claims": [
    {"text": "Revenue grew 40% quarter over quarter", "speaker": "A", "confidence": 0.8},
    {"text": "   ", "confidence": 0.9},
    {"text": "Churn fell to 2%", "confidence": 3.5}
  ]
}`}}
	ex := New(gen, "test-model", zap.NewNop())

	claims := ex.Extract(context.Background(), segs("Revenue grew 40%.", "Churn fell to 2%."))
	if len(claims) != 2 {
		t.Fatalf("got %d claims, want 2", len(claims))
	}
	if claims[0].ID != "c0" || claims[1].ID != "c1" {
		t.Errorf("claim ids = %q, %q; want c0, c1", claims[0].ID, claims[1].ID)
	}
	if claims[0].Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", claims[0].Confidence)
	}
	if claims[1].Confidence != model.DefaultClaimConfidence {
		t.Errorf("out-of-range confidence = %v, want default", claims[1].Confidence)
	}
	if claims[0].Speaker != "A" {
		t.Errorf("speaker = %q, want A", claims[0].Speaker)
	}
	if gen.calls != 1 {
		t.Errorf("model called %d times, want 1", gen.calls)
	}
}

func TestExtractEmptyTranscriptSkipsModel(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"claims": []}`}}
	ex := New(gen, "test-model", zap.NewNop())

	claims := ex.Extract(context.Background(), segs("", "   "))
	if claims != nil {
		t.Errorf("got %+v, want nil", claims)
	}
	if gen.calls != 0 {
		t.Errorf("model called %d times for empty transcript", gen.calls)
	}
}

func TestExtractGenerationFailureDegrades(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("watsonx down")}
	ex := New(gen, "test-model", zap.NewNop())

	claims := ex.Extract(context.Background(), segs("Revenue grew 40%."))
	if len(claims) != 0 {
		t.Errorf("got %+v, want no claims", claims)
	}
	if gen.calls != 1 {
		t.Errorf("model called %d times, want 1 (no reformat after a failed call)", gen.calls)
	}
}

func TestExtractReformatCallRecoversProse(t *testing.T) {
	prose := "Sure! Here are the claims I found: revenue grew 40% and churn fell."
	gen := &fakeGenerator{responses: []string{
		prose,
		`{"claims": [{"text": "Revenue grew 40%", "confidence": 0.7}, {"text": "Churn fell", "confidence": 0.6}]}`,
	}}
	ex := New(gen, "test-model", zap.NewNop())

	claims := ex.Extract(context.Background(), segs("Revenue grew 40%. Churn fell."))
	if gen.calls != 2 {
		t.Fatalf("model called %d times, want 2 (initial + reformat)", gen.calls)
	}
	if len(claims) != 2 {
		t.Fatalf("got %d claims, want 2", len(claims))
	}
	if claims[0].Text != "Revenue grew 40%" {
		t.Errorf("claim text = %q", claims[0].Text)
	}
	if !strings.Contains(gen.prompts[1], prose) {
		t.Error("reformat prompt should carry the model's previous raw output")
	}
}

func TestExtractUnparseableOutputDegrades(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"I could not find any claims, sorry."}}
	ex := New(gen, "test-model", zap.NewNop())

	claims := ex.Extract(context.Background(), segs("Revenue grew 40%."))
	if len(claims) != 0 {
		t.Errorf("got %+v, want no claims", claims)
	}
	if gen.calls != 2 {
		t.Errorf("model called %d times, want 2 (exactly one reformat attempt)", gen.calls)
	}
}

func TestExtractRepairsTruncatedOutput(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"claims": [{"text": "Revenue grew 40%", "confidence": 0.7},`}}
	ex := New(gen, "test-model", zap.NewNop())

	claims := ex.Extract(context.Background(), segs("Revenue grew 40%. Churn fell."))
	if len(claims) != 1 {
		t.Fatalf("got %d claims, want 1", len(claims))
	}
	if claims[0].Text != "Revenue grew 40%" {
		t.Errorf("claim text = %q", claims[0].Text)
	}
	if gen.calls != 1 {
		t.Errorf("model called %d times, want 1 (local repair needs no model call)", gen.calls)
	}
}

func TestExtractPromptAndParams(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"claims": [{"text": "We hired 30 engineers", "confidence": 0.7}]}`}}
	ex := New(gen, "test-model", zap.NewNop())

	ex.Extract(context.Background(), segs("We hired 30 engineers."))
	if !strings.Contains(gen.prompts[0], "Input: We hired 30 engineers.") {
		t.Error("prompt missing the transcript input line")
	}
	if !strings.HasSuffix(gen.prompts[0], "Output:") {
		t.Error("prompt should end with the output cue")
	}
	if gen.params[0].DecodingMethod != "greedy" {
		t.Errorf("decoding = %q, want greedy", gen.params[0].DecodingMethod)
	}
	if len(gen.params[0].StopSequences) != 2 {
		t.Errorf("stop sequences = %v", gen.params[0].StopSequences)
	}
}

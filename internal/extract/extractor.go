package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/claimlens/claimlens/internal/jsonx"
	"github.com/claimlens/claimlens/internal/model"
	"github.com/claimlens/claimlens/internal/watsonx"
)

// Generator produces model text for a prompt. The watsonx client satisfies
// this.
type Generator interface {
	Generate(ctx context.Context, modelID, prompt string, params watsonx.GenerationParams) (string, error)
}

// Few-shot prompt. The examples teach the model to emit one strict JSON
// object and nothing else; stop sequences cut the generation off when the
// model starts inventing another example.
const promptTemplate = `You extract factual claims from messy spoken transcripts.
Return strict JSON with this shape:
{
  "claims": [
    {"text": str, "speaker": str|null, "start": float, "end": float, "confidence": float}
  ]
}

Guidelines:
- A "claim" is a checkable factual assertion (metrics, quantities, time-bound facts).
- Prefer sentences with numbers, percentages, dates, quantities, KPIs.
- Split multiple claims in one sentence into separate objects.
- If unsure about speaker or timestamps, set speaker=null and start/end=0.
- Do NOT include opinions, greetings, or questions unless they state a checkable fact.
- Output ONLY JSON. No prose.

Input: We grew forty percent quarter over quarter in Q2. Customer churn fell to two percent. According to the CRM, Q2 growth was twelve percent. Churn stabilized at four percent in Q2.
Output: {
  "claims": [
    {"text":"We grew 40% quarter over quarter in Q2","speaker":null,"start":0.0,"end":0.0,"confidence":0.55},
    {"text":"Customer churn fell to 2%","speaker":null,"start":0.0,"end":0.0,"confidence":0.55},
    {"text":"Q2 growth was 12%","speaker":null,"start":0.0,"end":0.0,"confidence":0.7},
    {"text":"Churn stabilized at 4% in Q2","speaker":null,"start":0.0,"end":0.0,"confidence":0.7}
  ]
}

Input: We expanded into three new regions this year. Our operating margin improved by five points since Q1.
Output: {
  "claims": [
    {"text":"We expanded into 3 new regions this year","speaker":null,"start":0.0,"end":0.0,"confidence":0.6},
    {"text":"Operating margin improved by 5 percentage points since Q1","speaker":null,"start":0.0,"end":0.0,"confidence":0.7}
  ]
}

Input: {TRANSCRIPT}
Output:`

// Second-chance prompt: feeds the model its own malformed output and asks
// for strict JSON under the same root key.
const repairTemplate = `The text below was supposed to be a strict JSON object with a top-level "claims" array but is not valid JSON. Rewrite it as exactly one JSON object of the form {"claims": [...]}, preserving the content. Output ONLY JSON. No prose.

Text:
{RAW}

Output:`

// Extractor pulls checkable factual claims out of call transcripts with a
// generation model. Failures never abort a call: generation or parse
// problems degrade to an empty claim list.
type Extractor struct {
	gen     Generator
	modelID string
	logger  *zap.Logger
}

func New(gen Generator, modelID string, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{gen: gen, modelID: modelID, logger: logger}
}

// Extract returns the claims asserted across the segments, in transcript
// order, with IDs c0..cN. An empty transcript short-circuits without a model
// call.
func (e *Extractor) Extract(ctx context.Context, segments []model.Segment) []model.Claim {
	var parts []string
	for _, seg := range segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	transcript := strings.Join(parts, " ")
	if transcript == "" {
		return nil
	}

	prompt := strings.Replace(promptTemplate, "{TRANSCRIPT}", transcript, 1)
	params := watsonx.GreedyParams(200, "\n\nInput:", "\nInput:")
	text, err := e.gen.Generate(ctx, e.modelID, prompt, params)
	if err != nil {
		e.logger.Warn("claim extraction generation failed", zap.Error(err))
		return nil
	}

	outcome := jsonx.Parse(text, "claims")
	if len(outcome.List("claims")) == 0 {
		e.logger.Warn("claim extraction yielded no claims; asking model to reformat",
			zap.Int("raw_len", len(text)))
		outcome = e.repair(ctx, text)
	}
	if outcome.IsEmpty() {
		return nil
	}
	if outcome.Kind == jsonx.KindRepaired {
		e.logger.Debug("claim extraction output repaired")
	}

	return normalize(outcome.List("claims"))
}

// repair issues the single reformatting call. Any failure degrades to an
// empty outcome; no further calls are made.
func (e *Extractor) repair(ctx context.Context, raw string) jsonx.Outcome {
	prompt := strings.Replace(repairTemplate, "{RAW}", raw, 1)
	text, err := e.gen.Generate(ctx, e.modelID, prompt, watsonx.GreedyParams(200))
	if err != nil {
		e.logger.Warn("claim extraction repair call failed", zap.Error(err))
		return jsonx.Parse("", "claims")
	}
	return jsonx.Parse(text, "claims")
}

// normalize validates raw claim objects: blank texts are dropped, surviving
// claims are renumbered c0..cN and confidences outside (0, 1] fall back to
// the default.
func normalize(items []any) []model.Claim {
	var claims []model.Claim
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		text := strings.TrimSpace(jsonx.Str(obj, "text"))
		if text == "" {
			continue
		}
		conf, ok := jsonx.Num(obj, "confidence")
		if !ok || conf <= 0 || conf > 1 {
			conf = model.DefaultClaimConfidence
		}
		claims = append(claims, model.Claim{
			ID:         fmt.Sprintf("c%d", len(claims)),
			Text:       text,
			Speaker:    strings.TrimSpace(jsonx.Str(obj, "speaker")),
			SegmentIdx: 0,
			Entities:   jsonx.StrList(obj["entities"]),
			Confidence: conf,
		})
	}
	return claims
}

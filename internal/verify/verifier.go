package verify

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/claimlens/claimlens/internal/jsonx"
	"github.com/claimlens/claimlens/internal/model"
	"github.com/claimlens/claimlens/internal/watsonx"
)

// Generator produces model text for a prompt.
type Generator interface {
	Generate(ctx context.Context, modelID, prompt string, params watsonx.GenerationParams) (string, error)
}

const (
	offlineRationale  = "Verifier offline; defaulting to insufficient."
	coverageRationale = "No explicit verdict returned; marking as insufficient."

	fallbackConfidence = 0.4
	maxRationaleRunes  = 300
)

const promptTemplate = `You are a precise fact verifier.
Return STRICT JSON ONLY. Your first character MUST be '{' and your last character MUST be '}'.
Schema:
{
  "verdicts": [
    {"claim_id": "string", "label": "supported|refuted|insufficient", "confidence": 0.0, "citation_ids": ["doc_id", "..."], "rationale": "string"}
  ]
}
# No extra text, no markdown, no backticks.

Rules:
- "supported" if at least one evidence snippet directly supports the claim.
- "refuted" if any evidence directly contradicts the claim.
- "insufficient" if evidence is not enough to decide.
- Cite relevant evidence doc_ids in "citation_ids".
- Keep "rationale" <= 2 sentences.

Claims (JSON):
{CLAIMS_JSON}

Evidence catalog (doc_id -> snippet) as JSON:
{EVIDENCE_JSON}

Output JSON:
`

// Second-chance prompt: feeds the model its own malformed output and asks
// for strict JSON under the same root key.
const repairTemplate = `The text below was supposed to be a strict JSON object with a top-level "verdicts" array but is not valid JSON. Rewrite it as exactly one JSON object of the form {"verdicts": [...]}, preserving the content. Output ONLY JSON. No prose.

Text:
{RAW}

Output:`

// Verifier judges claims against their retrieved evidence with a generation
// model. Every claim always receives a verdict: generation failures fall
// back to insufficient verdicts rather than erroring out.
type Verifier struct {
	gen     Generator
	modelID string
	logger  *zap.Logger
}

func New(gen Generator, modelID string, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{gen: gen, modelID: modelID, logger: logger}
}

// Verify returns exactly one verdict per claim, in claims order.
func (v *Verifier) Verify(ctx context.Context, claims []model.Claim, evidence map[string][]model.Evidence) []model.Verdict {
	if len(claims) == 0 {
		return nil
	}

	catalog := buildCatalog(evidence)
	prompt := v.renderPrompt(claims, catalog)

	text, err := v.gen.Generate(ctx, v.modelID, prompt, watsonx.GreedyParams(400))
	if err != nil {
		v.logger.Warn("verifier generation failed", zap.Error(err))
		return fallbackVerdicts(claims, offlineRationale)
	}

	outcome := jsonx.Parse(text, "verdicts")
	if outcome.IsEmpty() {
		v.logger.Warn("verifier returned no parseable JSON; asking model to reformat",
			zap.Int("raw_len", len(text)))
		outcome = v.repair(ctx, text)
	}
	if outcome.IsEmpty() {
		return fallbackVerdicts(claims, offlineRationale)
	}

	byClaim := make(map[string]model.Verdict, len(claims))
	for _, item := range outcome.List("verdicts") {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		claimID := jsonx.Str(obj, "claim_id")
		if _, dup := byClaim[claimID]; dup {
			continue
		}

		conf, ok := jsonx.Num(obj, "confidence")
		if !ok {
			conf = 0.5
		}
		cites := filterCitations(jsonx.StrList(obj["citation_ids"]), evidence[claimID])
		byClaim[claimID] = model.Verdict{
			ClaimID:        claimID,
			Label:          model.ParseLabel(jsonx.Str(obj, "label")),
			Confidence:     conf,
			BestEvidenceID: bestEvidenceID(cites, catalog, evidence[claimID]),
			CitationIDs:    cites,
			Rationale:      truncateRunes(jsonx.Str(obj, "rationale"), maxRationaleRunes),
		}
	}

	out := make([]model.Verdict, 0, len(claims))
	for _, claim := range claims {
		if verdict, ok := byClaim[claim.ID]; ok {
			out = append(out, verdict)
			continue
		}
		out = append(out, model.Verdict{
			ClaimID:        claim.ID,
			Label:          model.LabelInsufficient,
			Confidence:     fallbackConfidence,
			BestEvidenceID: topEvidenceID(evidence[claim.ID]),
			Rationale:      coverageRationale,
		})
	}
	return out
}

// repair issues the single reformatting call. Any failure degrades to an
// empty outcome; no further calls are made.
func (v *Verifier) repair(ctx context.Context, raw string) jsonx.Outcome {
	prompt := strings.Replace(repairTemplate, "{RAW}", raw, 1)
	text, err := v.gen.Generate(ctx, v.modelID, prompt, watsonx.GreedyParams(400))
	if err != nil {
		v.logger.Warn("verifier repair call failed", zap.Error(err))
		return jsonx.Parse("", "verdicts")
	}
	return jsonx.Parse(text, "verdicts")
}

func (v *Verifier) renderPrompt(claims []model.Claim, catalog map[string]string) string {
	type promptClaim struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	minimal := make([]promptClaim, len(claims))
	for i, c := range claims {
		minimal[i] = promptClaim{ID: c.ID, Text: c.Text}
	}
	claimsJSON, _ := json.Marshal(minimal)
	catalogJSON, _ := json.Marshal(catalog)

	prompt := strings.Replace(promptTemplate, "{CLAIMS_JSON}", string(claimsJSON), 1)
	return strings.Replace(prompt, "{EVIDENCE_JSON}", string(catalogJSON), 1)
}

// buildCatalog flattens all retrieved evidence into doc_id -> snippet. The
// first snippet seen for a doc_id wins when duplicates appear across claims.
func buildCatalog(evidence map[string][]model.Evidence) map[string]string {
	catalog := make(map[string]string)
	for _, evs := range evidence {
		for _, ev := range evs {
			if _, ok := catalog[ev.DocID]; !ok {
				catalog[ev.DocID] = ev.Snippet
			}
		}
	}
	return catalog
}

// filterCitations keeps only citations pointing at evidence actually
// retrieved for this claim, so the model cannot cite documents it was never
// shown for it.
func filterCitations(cites []string, evs []model.Evidence) []string {
	if len(cites) == 0 || len(evs) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(evs))
	for _, ev := range evs {
		allowed[ev.DocID] = true
	}
	var kept []string
	for _, id := range cites {
		if allowed[id] {
			kept = append(kept, id)
		}
	}
	return kept
}

func bestEvidenceID(cites []string, catalog map[string]string, evs []model.Evidence) string {
	for _, id := range cites {
		if _, ok := catalog[id]; ok {
			return id
		}
	}
	return topEvidenceID(evs)
}

// topEvidenceID returns the doc_id with the highest retrieval score,
// keeping the earliest on ties.
func topEvidenceID(evs []model.Evidence) string {
	best := ""
	bestScore := 0.0
	for _, ev := range evs {
		if best == "" || ev.Score > bestScore {
			best = ev.DocID
			bestScore = ev.Score
		}
	}
	return best
}

// fallbackVerdicts covers total verifier failure. Best-evidence ids stay
// empty here: no model saw the evidence, so none of it was judged.
func fallbackVerdicts(claims []model.Claim, rationale string) []model.Verdict {
	out := make([]model.Verdict, len(claims))
	for i, claim := range claims {
		out[i] = model.Verdict{
			ClaimID:    claim.ID,
			Label:      model.LabelInsufficient,
			Confidence: fallbackConfidence,
			Rationale:  rationale,
		}
	}
	return out
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/claimlens/claimlens/internal/jsonx"
	"github.com/claimlens/claimlens/internal/model"
	"github.com/claimlens/claimlens/internal/watsonx"
)

// Generator produces model text for a prompt.
type Generator interface {
	Generate(ctx context.Context, modelID, prompt string, params watsonx.GenerationParams) (string, error)
}

const defaultActionItem = "Review claims vs. evidence and confirm metrics in source-of-truth."

const promptTemplate = `You are a precise meeting summarizer for sales/stakeholder calls.
Given transcript segments, normalized claims, and their verification labels, produce a concise executive summary.

Return STRICT JSON only with:
{
  "call_summary": "string, <= 6 sentences, neutral, factual",
  "action_items": ["string", "..."]
}

Guidelines:
- Emphasize mismatches between stated claims and evidence.
- Mention concrete metrics (%, $, dates) when present.
- Use only numbers that appear in the inputs; do not invent figures.
- Avoid fluff and opinions; be concise and factual.

Segments (JSON):
{SEGMENTS_JSON}

Claims (JSON):
{CLAIMS_JSON}

Verdicts (JSON):
{VERDICTS_JSON}

Verdict counts: {VERDICT_STATS}

Now return JSON only:
`

// Builder assembles the final call report: summary and action items from a
// generation model, the claim table from verdicts, and the deduplicated
// evidence list. Generation failures degrade to a transcript-derived
// summary; Build never fails.
type Builder struct {
	gen     Generator
	modelID string

	// ContextBudget caps how many characters of segment text reach the
	// prompt. FallbackChars caps the transcript-derived fallback summary.
	contextBudget int
	fallbackChars int
	logger        *zap.Logger
}

type Options struct {
	ContextBudget int
	FallbackChars int
	Logger        *zap.Logger
}

func New(gen Generator, modelID string, opts Options) *Builder {
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 6000
	}
	if opts.FallbackChars <= 0 {
		opts.FallbackChars = 450
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Builder{
		gen:           gen,
		modelID:       modelID,
		contextBudget: opts.ContextBudget,
		fallbackChars: opts.FallbackChars,
		logger:        opts.Logger,
	}
}

// Build produces the report for one processed call.
func (b *Builder) Build(ctx context.Context, segments []model.Segment, claims []model.Claim, evidence map[string][]model.Evidence, verdicts []model.Verdict) model.CallReport {
	rep := model.CallReport{
		ID:              uuid.NewString(),
		ClaimTable:      claimTable(claims, verdicts),
		Claims:          claims,
		Verdicts:        verdicts,
		Evidence:        flattenEvidence(claims, evidence),
		EvidenceByClaim: evidence,
	}

	if len(segments) == 0 && len(claims) == 0 {
		rep.ActionItems = []string{defaultActionItem}
		return rep
	}

	summary, items, ok := b.summarize(ctx, segments, claims, verdicts)
	if !ok {
		summary = fallbackSummary(segments, b.fallbackChars)
		items = []string{defaultActionItem}
	}
	rep.CallSummary = summary
	rep.ActionItems = items
	return rep
}

func (b *Builder) summarize(ctx context.Context, segments []model.Segment, claims []model.Claim, verdicts []model.Verdict) (string, []string, bool) {
	prompt := b.renderPrompt(segments, claims, verdicts)
	text, err := b.gen.Generate(ctx, b.modelID, prompt, watsonx.GreedyParams(300))
	if err != nil {
		b.logger.Warn("summary generation failed", zap.Error(err))
		return "", nil, false
	}

	outcome := jsonx.Parse(text, "")
	if outcome.IsEmpty() {
		b.logger.Warn("summary returned no parseable JSON", zap.Int("raw_len", len(text)))
		return "", nil, false
	}

	summary := strings.TrimSpace(jsonx.Str(outcome.Value, "call_summary"))
	items := jsonx.StrList(outcome.Value["action_items"])
	if summary == "" && len(items) == 0 {
		return "", nil, false
	}
	return summary, items, true
}

func (b *Builder) renderPrompt(segments []model.Segment, claims []model.Claim, verdicts []model.Verdict) string {
	type promptClaim struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	minimal := make([]promptClaim, len(claims))
	for i, c := range claims {
		minimal[i] = promptClaim{ID: c.ID, Text: c.Text}
	}

	segJSON, _ := json.Marshal(trimToBudget(segments, b.contextBudget))
	claimsJSON, _ := json.Marshal(minimal)
	verdictsJSON, _ := json.Marshal(verdicts)

	prompt := strings.Replace(promptTemplate, "{SEGMENTS_JSON}", string(segJSON), 1)
	prompt = strings.Replace(prompt, "{CLAIMS_JSON}", string(claimsJSON), 1)
	prompt = strings.Replace(prompt, "{VERDICTS_JSON}", string(verdictsJSON), 1)
	return strings.Replace(prompt, "{VERDICT_STATS}", verdictStats(verdicts), 1)
}

// trimToBudget accumulates segment text tail-first until the character
// budget is met or exceeded. The end of the call carries decisions and
// commitments, so the tail is what the summary needs most; the segment that
// crosses the budget is kept.
func trimToBudget(segments []model.Segment, budget int) []model.Segment {
	total := 0
	for i := len(segments) - 1; i >= 0; i-- {
		total += len(segments[i].Text)
		if total >= budget {
			return segments[i:]
		}
	}
	return segments
}

func verdictStats(verdicts []model.Verdict) string {
	var supported, refuted, insufficient int
	for _, v := range verdicts {
		switch v.Label {
		case model.LabelSupported:
			supported++
		case model.LabelRefuted:
			refuted++
		default:
			insufficient++
		}
	}
	return fmt.Sprintf("%d supported, %d refuted, %d insufficient", supported, refuted, insufficient)
}

func claimTable(claims []model.Claim, verdicts []model.Verdict) []model.ClaimRow {
	id2text := make(map[string]string, len(claims))
	for _, c := range claims {
		id2text[c.ID] = c.Text
	}
	rows := make([]model.ClaimRow, len(verdicts))
	for i, v := range verdicts {
		rows[i] = model.ClaimRow{
			Claim:          id2text[v.ClaimID],
			Status:         v.Label.Capitalized(),
			EvidenceSource: v.BestEvidenceID,
		}
	}
	return rows
}

// flattenEvidence lists each claim's evidence in claims order, dropping
// near-duplicate snippets. Duplicates are detected on the case-folded,
// whitespace-collapsed snippet text; the higher scored copy wins.
func flattenEvidence(claims []model.Claim, evidence map[string][]model.Evidence) []model.Evidence {
	var flat []model.Evidence
	bySnippet := make(map[string]int)
	for _, claim := range claims {
		for _, ev := range evidence[claim.ID] {
			key := strings.ToLower(strings.Join(strings.Fields(ev.Snippet), " "))
			if idx, ok := bySnippet[key]; ok {
				if ev.Score > flat[idx].Score {
					flat[idx] = ev
				}
				continue
			}
			bySnippet[key] = len(flat)
			flat = append(flat, ev)
		}
	}
	return flat
}

func fallbackSummary(segments []model.Segment, maxChars int) string {
	var parts []string
	for _, seg := range segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	joined := strings.Join(parts, " ")
	if joined == "" {
		return ""
	}
	runes := []rune(joined)
	if len(runes) > maxChars {
		joined = strings.TrimSpace(string(runes[:maxChars]))
	}
	return joined + "…"
}

package model

import "strings"

// Label is the adjudication outcome for a single claim.
type Label string

const (
	LabelSupported    Label = "supported"    // At least one snippet directly supports the claim
	LabelRefuted      Label = "refuted"      // At least one snippet directly contradicts the claim
	LabelInsufficient Label = "insufficient" // Evidence is not enough to decide
)

// ParseLabel normalizes a model-emitted label. Unknown or missing values
// map to insufficient rather than failing.
func ParseLabel(s string) Label {
	switch Label(strings.ToLower(strings.TrimSpace(s))) {
	case LabelSupported:
		return LabelSupported
	case LabelRefuted:
		return LabelRefuted
	default:
		return LabelInsufficient
	}
}

// Capitalized renders the label for the claim table (e.g. "Supported").
func (l Label) Capitalized() string {
	s := string(l)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Verdict is the adjudication of one claim against its retrieved evidence.
// Exactly one verdict exists per claim.
type Verdict struct {
	ClaimID        string   `json:"claim_id"`               // References an existing Claim
	Label          Label    `json:"label"`                  // supported | refuted | insufficient
	Confidence     float64  `json:"confidence"`             // Verifier confidence in [0,1]
	BestEvidenceID string   `json:"best_evidence_id"`       // doc_id of the strongest evidence, or empty
	CitationIDs    []string `json:"citation_ids,omitempty"` // doc_ids cited by the verifier, validated against retrieval
	Rationale      string   `json:"rationale"`              // At most two sentences, capped at 300 chars
}

package model

// ClaimRow is one row of the report's claim status table.
type ClaimRow struct {
	Claim          string `json:"claim"`           // Claim text, empty if the claim id is unknown
	Status         string `json:"status"`          // Capitalized verdict label
	EvidenceSource string `json:"evidence_source"` // Best evidence doc_id, empty if none
}

// CallReport aggregates everything produced for one call. It is built once
// per call and immutable afterwards.
type CallReport struct {
	ID          string `json:"id"` // Run identifier for this call
	CallSummary string `json:"call_summary"`

	ClaimTable  []ClaimRow `json:"claim_table"`
	ActionItems []string   `json:"action_items"`

	Claims          []Claim               `json:"claims"`
	Verdicts        []Verdict             `json:"verdicts"`
	Evidence        []Evidence            `json:"evidence"`          // Deduplicated across claims
	EvidenceByClaim map[string][]Evidence `json:"evidence_by_claim"` // claim_id -> evidence list
}

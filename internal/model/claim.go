package model

// DefaultClaimConfidence is assigned when the extractor returns a claim
// without a usable confidence value.
const DefaultClaimConfidence = 0.6

// Claim represents a checkable factual assertion extracted from a transcript.
// Claims are immutable once created by the extractor.
type Claim struct {
	ID         string   `json:"id"`                    // Unique within a call (c0, c1, ...)
	Text       string   `json:"text"`                  // The claim text itself, never empty
	Speaker    string   `json:"speaker,omitempty"`     // Speaker label if known
	SegmentIdx int      `json:"segment_idx,omitempty"` // Originating segment (not yet mapped, always 0)
	Entities   []string `json:"entities,omitempty"`    // Extracted entities, if any
	Confidence float64  `json:"confidence"`            // Extractor confidence in [0,1]
}

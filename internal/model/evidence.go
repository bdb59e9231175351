package model

// Evidence represents a reference snippet retrieved from the knowledge corpus.
// Evidence records are read-only downstream of the index.
type Evidence struct {
	DocID    string            `json:"doc_id"`             // Corpus-unique document id
	Source   string            `json:"source"`             // Human-readable provenance
	Snippet  string            `json:"snippet"`            // Reference text
	Score    float64           `json:"score"`              // Similarity score, higher = more relevant
	Metadata map[string]string `json:"metadata,omitempty"` // Open key/value map from the corpus record
}

package watsonx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RerankPassage is one ranked candidate handed to the rerank endpoint.
type RerankPassage struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// RerankResult is one relevance-scored passage id from the rerank endpoint.
type RerankResult struct {
	ID        string  `json:"id"`
	Relevance float64 `json:"relevance"`
}

type rerankRequest struct {
	Input     rerankInput `json:"input"`
	ModelID   string      `json:"model_id"`
	ProjectID string      `json:"project_id"`
	TopN      int         `json:"top_n"`
}

type rerankInput struct {
	Query    string          `json:"query"`
	Passages []RerankPassage `json:"passages"`
}

type rerankResponse struct {
	Results []RerankResult `json:"results"`
}

// Rerank scores passages against the query. Reranking never retries: any
// failure is returned to the caller, which keeps the original order.
func (c *Client) Rerank(ctx context.Context, modelID, query string, passages []RerankPassage, topN int) ([]RerankResult, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, fmt.Errorf("%w: missing rerank model id", ErrNotConfigured)
	}
	if len(passages) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(passages) {
		topN = len(passages)
	}

	reqBody := rerankRequest{
		Input:     rerankInput{Query: query, Passages: passages},
		ModelID:   modelID,
		ProjectID: c.projectID,
		TopN:      topN,
	}

	raw, _, err := c.post(ctx, c.embedClient, "ml/v1/text/rerank", reqBody)
	if err != nil {
		return nil, err
	}

	var parsed rerankResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal rerank response: %w", err)
	}
	return parsed.Results, nil
}

package watsonx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type embeddingsRequest struct {
	Inputs    []string `json:"inputs"` // note: plural
	ModelID   string   `json:"model_id"`
	ProjectID string   `json:"project_id"`
}

type embeddingItem struct {
	Embedding []float32 `json:"embedding"`
}

// The embeddings endpoint has returned its vectors under both "results"
// and "data" across API revisions; accept either.
type embeddingsResponse struct {
	Results []embeddingItem `json:"results"`
	Data    []embeddingItem `json:"data"`
}

// Embed returns one fixed-dimension vector per input text, order-preserving.
func (c *Client) Embed(ctx context.Context, modelID string, texts []string) ([][]float32, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, fmt.Errorf("%w: missing embeddings model id", ErrNotConfigured)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embeddingsRequest{
		Inputs:    texts,
		ModelID:   modelID,
		ProjectID: c.projectID,
	}

	var vectors [][]float32
	err := c.retry.Do(ctx, func(ctx context.Context) (int, error) {
		raw, status, err := c.post(ctx, c.embedClient, "ml/v1/text/embeddings", reqBody)
		if err != nil {
			return status, err
		}

		var parsed embeddingsResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return status, fmt.Errorf("unmarshal embeddings response: %w", err)
		}
		items := parsed.Results
		if len(items) == 0 {
			items = parsed.Data
		}
		if len(items) != len(texts) {
			return status, fmt.Errorf("embeddings response has %d vectors for %d inputs", len(items), len(texts))
		}

		vectors = make([][]float32, len(items))
		for i, item := range items {
			if len(item.Embedding) == 0 {
				return status, fmt.Errorf("embeddings response item %d is empty", i)
			}
			vectors[i] = item.Embedding
		}
		return status, nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("embeddings complete",
		zap.String("model", modelID),
		zap.Int("inputs", len(texts)),
		zap.Int("dims", len(vectors[0])))
	return vectors, nil
}

// Package watsonx is a hand-rolled client for the watsonx.ai text
// generation, embeddings and rerank endpoints, with a shared retry policy
// and a lazily-refreshed IAM bearer token.
package watsonx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds connection settings for the watsonx endpoints.
type Config struct {
	BaseURL    string
	ProjectID  string
	APIVersion string // API version date, e.g. "2023-05-29"

	GenerationTimeout time.Duration
	EmbeddingsTimeout time.Duration

	RequestsPerSecond float64
	Burst             int
}

// GenerationParams are the decoding parameters for a generation call.
type GenerationParams struct {
	DecodingMethod    string   `json:"decoding_method"`
	Temperature       float64  `json:"temperature"`
	MaxNewTokens      int      `json:"max_new_tokens"`
	MinNewTokens      int      `json:"min_new_tokens"`
	RepetitionPenalty float64  `json:"repetition_penalty"`
	StopSequences     []string `json:"stop_sequences,omitempty"`
}

// GreedyParams returns deterministic decoding with the given token budget.
func GreedyParams(maxNewTokens int, stop ...string) GenerationParams {
	return GenerationParams{
		DecodingMethod:    "greedy",
		Temperature:       0.0,
		MaxNewTokens:      maxNewTokens,
		MinNewTokens:      0,
		RepetitionPenalty: 1.0,
		StopSequences:     stop,
	}
}

// Client calls the watsonx text endpoints. All methods are blocking,
// timeout-bounded, rate-limited and retried per the configured policy.
type Client struct {
	baseURL   string
	projectID string
	version   string

	tokens TokenProvider
	retry  RetryPolicy

	genClient   *http.Client
	embedClient *http.Client
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewClient creates a watsonx client. Missing base URL or project id is a
// configuration error.
func NewClient(cfg Config, tokens TokenProvider, retry RetryPolicy, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: missing base URL", ErrNotConfigured)
	}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, fmt.Errorf("%w: missing project id", ErrNotConfigured)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: missing token provider", ErrNotConfigured)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	version := cfg.APIVersion
	if version == "" {
		version = "2023-05-29"
	}
	genTimeout := cfg.GenerationTimeout
	if genTimeout <= 0 {
		genTimeout = 120 * time.Second
	}
	embedTimeout := cfg.EmbeddingsTimeout
	if embedTimeout <= 0 {
		embedTimeout = 60 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 8
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		projectID:   cfg.ProjectID,
		version:     version,
		tokens:      tokens,
		retry:       retry,
		genClient:   &http.Client{Timeout: genTimeout},
		embedClient: &http.Client{Timeout: embedTimeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		logger:      logger,
	}, nil
}

type generationRequest struct {
	Input      string           `json:"input"`
	ModelID    string           `json:"model_id"`
	ProjectID  string           `json:"project_id"`
	Parameters GenerationParams `json:"parameters"`
	Moderation *moderations     `json:"moderations,omitempty"`
}

// moderations keeps content filtering off; the pipeline judges evidence, not
// tone, and filter rewrites would corrupt the strict-JSON contract.
type moderations struct {
	HAP moderationToggle `json:"hap"`
	PII moderationToggle `json:"pii"`
}

type moderationToggle struct {
	Input  moderationEnabled `json:"input"`
	Output moderationEnabled `json:"output"`
}

type moderationEnabled struct {
	Enabled bool `json:"enabled"`
}

type generationResponse struct {
	Results []struct {
		GeneratedText string `json:"generated_text"`
	} `json:"results"`
	GeneratedText string `json:"generated_text"`
}

// Generate runs one text generation call and returns the generated text.
func (c *Client) Generate(ctx context.Context, modelID, prompt string, params GenerationParams) (string, error) {
	if strings.TrimSpace(modelID) == "" {
		return "", fmt.Errorf("%w: missing generation model id", ErrNotConfigured)
	}

	reqBody := generationRequest{
		Input:      prompt,
		ModelID:    modelID,
		ProjectID:  c.projectID,
		Parameters: params,
		Moderation: &moderations{},
	}

	var text string
	err := c.retry.Do(ctx, func(ctx context.Context) (int, error) {
		raw, status, err := c.post(ctx, c.genClient, "ml/v1/text/generation", reqBody)
		if err != nil {
			return status, err
		}

		var parsed generationResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return status, fmt.Errorf("unmarshal generation response: %w", err)
		}
		switch {
		case len(parsed.Results) > 0:
			text = strings.TrimSpace(parsed.Results[0].GeneratedText)
		case parsed.GeneratedText != "":
			text = strings.TrimSpace(parsed.GeneratedText)
		default:
			return status, fmt.Errorf("empty generation response")
		}
		return status, nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("generation complete",
		zap.String("model", modelID),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("output_chars", len(text)))
	return text, nil
}

// post performs one rate-limited, authenticated POST and returns the body.
// Non-2xx responses come back as *StatusError so the retry policy can
// classify them.
func (c *Client) post(ctx context.Context, hc *http.Client, path string, payload any) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, statusOf(err), fmt.Errorf("acquire token: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s?version=%s", c.baseURL, path, c.version)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Endpoint: path, Body: string(respBody)}
	}
	return respBody, resp.StatusCode, nil
}

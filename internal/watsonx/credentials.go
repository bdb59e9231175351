package watsonx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultIAMEndpoint = "https://iam.cloud.ibm.com/identity/token"

	// tokenSafetyMargin makes the cached token expire early so a request
	// never leaves with a token about to lapse mid-flight.
	tokenSafetyMargin = 60 * time.Second

	// defaultTokenLifetime is used when the IAM response omits expires_in.
	defaultTokenLifetime = 3000 * time.Second
)

// TokenProvider supplies a bearer token for service calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// IAMTokenProvider exchanges an IBM Cloud API key for a bearer token and
// caches it until shortly before expiry. Safe for concurrent use; concurrent
// refreshes at the expiry boundary are idempotent.
type IAMTokenProvider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	now        func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewIAMTokenProvider creates a token provider. An empty API key is a
// configuration error and fails immediately.
func NewIAMTokenProvider(apiKey string, timeout time.Duration) (*IAMTokenProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: missing API key", ErrNotConfigured)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &IAMTokenProvider{
		apiKey:     apiKey,
		endpoint:   defaultIAMEndpoint,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}, nil
}

// Token returns a cached bearer token, refreshing it lazily on expiry.
func (p *IAMTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.expiry.Add(-tokenSafetyMargin)) {
		return p.token, nil
	}

	form := url.Values{
		"grant_type": {"urn:ibm:params:oauth:grant-type:apikey"},
		"apikey":     {p.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Endpoint: "identity/token", Body: string(body)}
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	lifetime := defaultTokenLifetime
	if parsed.ExpiresIn > 0 {
		lifetime = time.Duration(parsed.ExpiresIn) * time.Second
	}
	p.token = parsed.AccessToken
	p.expiry = p.now().Add(lifetime)

	return p.token, nil
}

// StaticTokenProvider returns a fixed token. Used in tests and for
// pre-issued tokens.
type StaticTokenProvider string

// Token implements TokenProvider.
func (s StaticTokenProvider) Token(context.Context) (string, error) {
	return string(s), nil
}

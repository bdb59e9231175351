package model

import "time"

// Config holds the complete ClaimLens configuration
type Config struct {
	Watsonx   WatsonxConfig   `yaml:"watsonx"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Report    ReportConfig    `yaml:"report"`
	Cache     CacheConfig     `yaml:"cache"`
	Server    ServerConfig    `yaml:"server"`
	ASR       ASRConfig       `yaml:"asr"`
	Output    OutputConfig    `yaml:"output"`
}

// WatsonxConfig configures the generative, embedding and rerank services
type WatsonxConfig struct {
	BaseURL    string `yaml:"base_url"`    // e.g. https://us-south.ml.cloud.ibm.com
	ProjectID  string `yaml:"project_id"`  // watsonx project id
	APIKey     string `yaml:"api_key"`     // IBM Cloud API key (prefer WATSONX_API_KEY env)
	APIVersion string `yaml:"api_version"` // API version date

	ExtractorModel  string `yaml:"extractor_model"`  // claim extraction model id
	VerifierModel   string `yaml:"verifier_model"`   // verification model id
	SummaryModel    string `yaml:"summary_model"`    // summarization model id
	EmbeddingsModel string `yaml:"embeddings_model"` // embedding model id (empty = local fallback only)
	RerankModel     string `yaml:"rerank_model"`     // rerank model id (empty = reranking disabled)

	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	EmbeddingsTimeout time.Duration `yaml:"embeddings_timeout"`
	AuthTimeout       time.Duration `yaml:"auth_timeout"`

	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// IndexConfig configures the persisted evidence index
type IndexConfig struct {
	CorpusPath   string `yaml:"corpus_path"`   // newline-delimited JSON corpus
	Dir          string `yaml:"dir"`           // directory for persisted artifacts
	FallbackDims int    `yaml:"fallback_dims"` // dimension of the local hashed embedder
}

// RetrievalConfig configures per-claim evidence retrieval
type RetrievalConfig struct {
	FanOut  int `yaml:"fan_out"` // nearest-neighbor fan-out per claim
	Keep    int `yaml:"keep"`    // evidence kept per claim after capping
	Workers int `yaml:"workers"` // concurrent claim retrievals
}

// ReportConfig configures summarization and fallback behavior
type ReportConfig struct {
	ContextBudget        int `yaml:"context_budget"`         // character budget for transcript context
	FallbackSummaryChars int `yaml:"fallback_summary_chars"` // deterministic fallback summary cap
}

// CacheConfig configures the embedding cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Dir       string        `yaml:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl"`
}

// ServerConfig configures the HTTP API surface
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	AudioDir string `yaml:"audio_dir"` // where uploaded audio is stored before transcription
}

// ASRConfig configures the speech-to-text collaborator
type ASRConfig struct {
	Provider string `yaml:"provider"` // "openai" or "" (transcript input only)
	APIKey   string `yaml:"api_key"`  // prefer OPENAI_API_KEY env
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

// OutputConfig controls CLI output behavior
type OutputConfig struct {
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Watsonx: WatsonxConfig{
			APIVersion:        "2023-05-29",
			ExtractorModel:    "ibm/granite-3-8b-instruct",
			VerifierModel:     "ibm/granite-3-8b-instruct",
			SummaryModel:      "ibm/granite-3-8b-instruct",
			GenerationTimeout: 120 * time.Second,
			EmbeddingsTimeout: 60 * time.Second,
			AuthTimeout:       30 * time.Second,
			MaxRetries:        3,
			RetryBackoff:      time.Second,
			RequestsPerSecond: 4,
			Burst:             8,
		},
		Index: IndexConfig{
			CorpusPath:   "kb/snippets.jsonl",
			Dir:          "kb/index",
			FallbackDims: 512,
		},
		Retrieval: RetrievalConfig{
			FanOut:  8,
			Keep:    5,
			Workers: 4,
		},
		Report: ReportConfig{
			ContextBudget:        6000,
			FallbackSummaryChars: 450,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".claimlens-cache",
			MemoryTTL: 1 * time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:     ":8080",
			AudioDir: "data/audio",
		},
		ASR: ASRConfig{
			Provider: "",
			Model:    "whisper-1",
		},
	}
}

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/claimlens/claimlens/internal/cache"
	"github.com/claimlens/claimlens/internal/extract"
	"github.com/claimlens/claimlens/internal/index"
	"github.com/claimlens/claimlens/internal/model"
	"github.com/claimlens/claimlens/internal/pipeline"
	"github.com/claimlens/claimlens/internal/report"
	"github.com/claimlens/claimlens/internal/retrieve"
	"github.com/claimlens/claimlens/internal/transcribe"
	"github.com/claimlens/claimlens/internal/verify"
	"github.com/claimlens/claimlens/internal/watsonx"
)

// loadConfig starts from defaults and applies config file, CLAIMLENS_* env
// vars and well-known service credentials from the environment.
func loadConfig() *model.Config {
	cfg := model.DefaultConfig()

	setString(&cfg.Watsonx.BaseURL, "watsonx.base_url")
	setString(&cfg.Watsonx.ProjectID, "watsonx.project_id")
	setString(&cfg.Watsonx.APIKey, "watsonx.api_key")
	setString(&cfg.Watsonx.APIVersion, "watsonx.api_version")
	setString(&cfg.Watsonx.ExtractorModel, "watsonx.extractor_model")
	setString(&cfg.Watsonx.VerifierModel, "watsonx.verifier_model")
	setString(&cfg.Watsonx.SummaryModel, "watsonx.summary_model")
	setString(&cfg.Watsonx.EmbeddingsModel, "watsonx.embeddings_model")
	setString(&cfg.Watsonx.RerankModel, "watsonx.rerank_model")
	setInt(&cfg.Watsonx.MaxRetries, "watsonx.max_retries")

	setString(&cfg.Index.CorpusPath, "index.corpus_path")
	setString(&cfg.Index.Dir, "index.dir")
	setInt(&cfg.Index.FallbackDims, "index.fallback_dims")

	setInt(&cfg.Retrieval.FanOut, "retrieval.fan_out")
	setInt(&cfg.Retrieval.Keep, "retrieval.keep")
	setInt(&cfg.Retrieval.Workers, "retrieval.workers")

	setInt(&cfg.Report.ContextBudget, "report.context_budget")
	setInt(&cfg.Report.FallbackSummaryChars, "report.fallback_summary_chars")

	if viper.IsSet("cache.enabled") {
		cfg.Cache.Enabled = viper.GetBool("cache.enabled")
	}
	setString(&cfg.Cache.Dir, "cache.dir")

	setString(&cfg.Server.Addr, "server.addr")
	setString(&cfg.Server.AudioDir, "server.audio_dir")

	setString(&cfg.ASR.Provider, "asr.provider")
	setString(&cfg.ASR.APIKey, "asr.api_key")
	setString(&cfg.ASR.Model, "asr.model")

	// Service credentials come from their conventional env vars when not
	// set explicitly.
	if cfg.Watsonx.APIKey == "" {
		cfg.Watsonx.APIKey = os.Getenv("WATSONX_API_KEY")
	}
	if cfg.ASR.APIKey == "" {
		cfg.ASR.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	cfg.Output.Verbose = verbose || viper.GetBool("verbose")
	return cfg
}

func setString(dst *string, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetString(key)
	}
}

func setInt(dst *int, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetInt(key)
	}
}

func newLogger(cfg *model.Config) (*zap.Logger, error) {
	if cfg.Output.Verbose {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	zcfg.DisableStacktrace = true
	return zcfg.Build()
}

func newWatsonxClient(cfg *model.Config, logger *zap.Logger) (*watsonx.Client, error) {
	tokens, err := watsonx.NewIAMTokenProvider(cfg.Watsonx.APIKey, cfg.Watsonx.AuthTimeout)
	if err != nil {
		return nil, err
	}

	retry := watsonx.DefaultRetryPolicy()
	if cfg.Watsonx.MaxRetries > 0 {
		retry.MaxAttempts = cfg.Watsonx.MaxRetries
	}
	if cfg.Watsonx.RetryBackoff > 0 {
		retry.BaseBackoff = cfg.Watsonx.RetryBackoff
	}

	return watsonx.NewClient(watsonx.Config{
		BaseURL:           cfg.Watsonx.BaseURL,
		ProjectID:         cfg.Watsonx.ProjectID,
		APIVersion:        cfg.Watsonx.APIVersion,
		GenerationTimeout: cfg.Watsonx.GenerationTimeout,
		EmbeddingsTimeout: cfg.Watsonx.EmbeddingsTimeout,
		RequestsPerSecond: cfg.Watsonx.RequestsPerSecond,
		Burst:             cfg.Watsonx.Burst,
	}, tokens, retry, logger)
}

func newEmbedder(cfg *model.Config, client *watsonx.Client, logger *zap.Logger) index.Embedder {
	local := index.NewLocalEmbedder(cfg.Index.FallbackDims)

	var emb index.Embedder = local
	if cfg.Watsonx.EmbeddingsModel != "" {
		remote := index.NewRemoteEmbedder(client, cfg.Watsonx.EmbeddingsModel)
		emb = index.NewFallbackEmbedder(remote, local, logger)
	} else {
		logger.Info("no embeddings model configured, using local hashed embedding")
	}

	if cfg.Cache.Enabled {
		store := cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		emb = index.NewCachingEmbedder(emb, store)
	}
	return emb
}

func newIndex(cfg *model.Config, client *watsonx.Client, logger *zap.Logger) (*index.Index, error) {
	opts := index.Options{
		CorpusPath: cfg.Index.CorpusPath,
		Dir:        cfg.Index.Dir,
		Embedder:   newEmbedder(cfg, client, logger),
		Logger:     logger,
	}
	if cfg.Watsonx.RerankModel != "" {
		opts.Reranker = client
		opts.RerankModel = cfg.Watsonx.RerankModel
	}
	return index.New(opts)
}

// newPipeline assembles the full call-processing pipeline from
// configuration.
func newPipeline(cfg *model.Config, logger *zap.Logger) (*pipeline.Pipeline, *index.Index, error) {
	client, err := newWatsonxClient(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("watsonx: %w", err)
	}

	ix, err := newIndex(cfg, client, logger)
	if err != nil {
		return nil, nil, err
	}

	var transcriber transcribe.Transcriber
	if cfg.ASR.Provider == "openai" {
		transcriber, err = transcribe.NewWhisper(cfg.ASR.APIKey, cfg.ASR.Model, logger)
		if err != nil {
			return nil, nil, err
		}
	}

	p, err := pipeline.New(pipeline.Options{
		Extractor: extract.New(client, cfg.Watsonx.ExtractorModel, logger),
		Retriever: retrieve.New(ix, retrieve.Options{
			FanOut:  cfg.Retrieval.FanOut,
			Keep:    cfg.Retrieval.Keep,
			Workers: cfg.Retrieval.Workers,
			Logger:  logger,
		}),
		Verifier: verify.New(client, cfg.Watsonx.VerifierModel, logger),
		Builder: report.New(client, cfg.Watsonx.SummaryModel, report.Options{
			ContextBudget: cfg.Report.ContextBudget,
			FallbackChars: cfg.Report.FallbackSummaryChars,
			Logger:        logger,
		}),
		Transcriber: transcriber,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, ix, nil
}

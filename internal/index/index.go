package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/claimlens/claimlens/internal/model"
	"github.com/claimlens/claimlens/internal/watsonx"
)

// Reranker reorders retrieved passages by relevance to a query. The watsonx
// client satisfies this.
type Reranker interface {
	Rerank(ctx context.Context, modelID, query string, passages []watsonx.RerankPassage, topN int) ([]watsonx.RerankResult, error)
}

// Index is the evidence index: corpus documents, their embedding vectors and
// exact inner-product search over them. Ready builds the index from the
// corpus or reloads a previously persisted one; Search embeds a query and
// returns the closest documents as evidence.
type Index struct {
	corpusPath  string
	dir         string
	embedder    Embedder
	reranker    Reranker
	rerankModel string
	logger      *zap.Logger

	group singleflight.Group

	mu   sync.RWMutex
	docs []Document
	flat *flatIndex
}

// Options configures an Index. Reranker and RerankModel are optional; when
// unset Search keeps embedding order.
type Options struct {
	CorpusPath  string
	Dir         string
	Embedder    Embedder
	Reranker    Reranker
	RerankModel string
	Logger      *zap.Logger
}

func New(opts Options) (*Index, error) {
	if opts.CorpusPath == "" {
		return nil, errors.New("index: corpus path required")
	}
	if opts.Embedder == nil {
		return nil, errors.New("index: embedder required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Index{
		corpusPath:  opts.CorpusPath,
		dir:         opts.Dir,
		embedder:    opts.Embedder,
		reranker:    opts.Reranker,
		rerankModel: opts.RerankModel,
		logger:      opts.Logger,
	}, nil
}

// Ready ensures the index is loaded, rebuilding from the corpus when no
// usable persisted artifacts exist. Concurrent callers share one build.
func (ix *Index) Ready(ctx context.Context) error {
	ix.mu.RLock()
	ready := ix.flat != nil
	ix.mu.RUnlock()
	if ready {
		return nil
	}

	_, err, _ := ix.group.Do("ready", func() (any, error) {
		return nil, ix.loadOrBuild(ctx)
	})
	return err
}

func (ix *Index) loadOrBuild(ctx context.Context) error {
	ix.mu.RLock()
	ready := ix.flat != nil
	ix.mu.RUnlock()
	if ready {
		return nil
	}

	if ix.dir != "" {
		meta, vectors, err := loadArtifacts(ix.dir)
		switch {
		case err == nil && meta.Embedder == ix.embedder.Name():
			ix.install(meta.Docs, vectors)
			ix.logger.Info("evidence index loaded",
				zap.String("dir", ix.dir),
				zap.Int("docs", len(meta.Docs)))
			return nil
		case err == nil:
			ix.logger.Warn("persisted index built with different embedder, rebuilding",
				zap.String("persisted", meta.Embedder),
				zap.String("current", ix.embedder.Name()))
		case !errors.Is(err, fs.ErrNotExist):
			ix.logger.Warn("persisted index unreadable, rebuilding", zap.Error(err))
		}
	}
	return ix.build(ctx)
}

// Build embeds the corpus and persists the result, replacing any loaded
// state.
func (ix *Index) Build(ctx context.Context) error {
	_, err, _ := ix.group.Do("build", func() (any, error) {
		return nil, ix.build(ctx)
	})
	return err
}

func (ix *Index) build(ctx context.Context) error {
	docs, err := LoadCorpus(ix.corpusPath)
	if err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Snippet
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed corpus: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	if ix.dir != "" {
		meta := indexMeta{
			Version:  storeVersion,
			Embedder: ix.embedder.Name(),
			Dims:     len(vectors[0]),
			Docs:     docs,
		}
		if err := saveArtifacts(ix.dir, meta, vectors); err != nil {
			return err
		}
	}

	ix.install(docs, vectors)
	ix.logger.Info("evidence index built",
		zap.String("corpus", ix.corpusPath),
		zap.Int("docs", len(docs)),
		zap.String("embedder", ix.embedder.Name()))
	return nil
}

func (ix *Index) install(docs []Document, vectors [][]float32) {
	ix.mu.Lock()
	ix.docs = docs
	ix.flat = &flatIndex{vectors: vectors}
	ix.mu.Unlock()
}

// Size reports the number of indexed documents.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Search returns up to k documents closest to the query, best first. When a
// reranker is configured the result set is reordered by relevance but never
// shrunk: documents the reranker omits keep their original order at the
// tail. Rerank failures fall back to embedding order.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]model.Evidence, error) {
	if err := ix.Ready(ctx); err != nil {
		return nil, err
	}

	vecs, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qv := vecs[0]
	Normalize(qv)

	ix.mu.RLock()
	hits := ix.flat.search(qv, k)
	evs := make([]model.Evidence, len(hits))
	for i, h := range hits {
		doc := ix.docs[h.row]
		evs[i] = model.Evidence{
			DocID:    doc.DocID,
			Source:   doc.Source,
			Snippet:  doc.Snippet,
			Score:    float64(h.score),
			Metadata: doc.Metadata,
		}
	}
	ix.mu.RUnlock()

	if ix.reranker != nil && len(evs) > 1 {
		evs = ix.rerank(ctx, query, evs)
	}
	return evs, nil
}

func (ix *Index) rerank(ctx context.Context, query string, evs []model.Evidence) []model.Evidence {
	passages := make([]watsonx.RerankPassage, len(evs))
	byID := make(map[string]model.Evidence, len(evs))
	for i, ev := range evs {
		passages[i] = watsonx.RerankPassage{ID: ev.DocID, Text: ev.Snippet}
		byID[ev.DocID] = ev
	}

	results, err := ix.reranker.Rerank(ctx, ix.rerankModel, query, passages, len(passages))
	if err != nil {
		ix.logger.Warn("rerank failed, keeping embedding order", zap.Error(err))
		return evs
	}

	ordered := make([]model.Evidence, 0, len(evs))
	seen := make(map[string]bool, len(evs))
	for _, res := range results {
		ev, ok := byID[res.ID]
		if !ok || seen[res.ID] {
			continue
		}
		ev.Score = res.Relevance
		ordered = append(ordered, ev)
		seen[res.ID] = true
	}
	for _, ev := range evs {
		if !seen[ev.DocID] {
			ordered = append(ordered, ev)
		}
	}
	return ordered
}

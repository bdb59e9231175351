package index

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/claimlens/claimlens/internal/cache"
	"github.com/claimlens/claimlens/internal/watsonx"
)

// Embedder turns texts into fixed-width vectors. Name identifies the
// embedding space so that cached vectors from one embedder are never served
// to another.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// RemoteEmbedder embeds through a watsonx.ai embeddings model.
type RemoteEmbedder struct {
	client  *watsonx.Client
	modelID string
}

func NewRemoteEmbedder(client *watsonx.Client, modelID string) *RemoteEmbedder {
	return &RemoteEmbedder{client: client, modelID: modelID}
}

func (r *RemoteEmbedder) Name() string { return "watsonx:" + r.modelID }

func (r *RemoteEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := r.client.Embed(ctx, r.modelID, texts)
	if err != nil {
		return nil, err
	}
	for i := range vecs {
		Normalize(vecs[i])
	}
	return vecs, nil
}

// LocalEmbedder is a deterministic hashed bag-of-words embedding. It needs no
// credentials and no network, and the same text always maps to the same
// vector, which keeps retrieval reproducible when the remote embedding
// service is unreachable.
type LocalEmbedder struct {
	dims int
}

func NewLocalEmbedder(dims int) *LocalEmbedder {
	if dims <= 0 {
		dims = 512
	}
	return &LocalEmbedder{dims: dims}
}

func (l *LocalEmbedder) Name() string { return fmt.Sprintf("local-hash-%d", l.dims) }

func (l *LocalEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, l.dims)
		for _, tok := range tokenize(text) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			vec[h.Sum32()%uint32(l.dims)]++
		}
		Normalize(vec)
		vecs[i] = vec
	}
	return vecs, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// FallbackEmbedder tries a primary embedder and falls back to a secondary
// when the primary fails. Vectors from the two are not comparable, so the
// first failure pins the secondary for the rest of the process: every later
// Embed uses it and Name reports it. An index built on fallback vectors thus
// persists the fallback's name and is rebuilt when the primary comes back.
type FallbackEmbedder struct {
	primary   Embedder
	secondary Embedder
	logger    *zap.Logger

	mu     sync.Mutex
	pinned bool
}

func NewFallbackEmbedder(primary, secondary Embedder, logger *zap.Logger) *FallbackEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackEmbedder{primary: primary, secondary: secondary, logger: logger}
}

func (f *FallbackEmbedder) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pinned {
		return f.secondary.Name()
	}
	return f.primary.Name()
}

func (f *FallbackEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	pinned := f.pinned
	f.mu.Unlock()

	if !pinned {
		vecs, err := f.primary.Embed(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		f.logger.Warn("primary embedder failed, pinning fallback",
			zap.String("primary", f.primary.Name()),
			zap.String("fallback", f.secondary.Name()),
			zap.Error(err))
		f.mu.Lock()
		f.pinned = true
		f.mu.Unlock()
	}
	return f.secondary.Embed(ctx, texts)
}

// CachingEmbedder memoizes vectors per text in a cache keyed by the
// underlying embedder's name, so switching models never reuses stale vectors.
type CachingEmbedder struct {
	inner Embedder
	store cache.Cache
}

func NewCachingEmbedder(inner Embedder, store cache.Cache) *CachingEmbedder {
	return &CachingEmbedder{inner: inner, store: store}
}

func (c *CachingEmbedder) Name() string { return c.inner.Name() }

func (c *CachingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if raw, ok := c.store.Get(cache.Key(c.inner.Name(), text)); ok {
			if vec := cache.DecodeVector(raw); vec != nil {
				vecs[i] = vec
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return vecs, nil
	}

	fresh, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missing))
	}
	for j, vec := range fresh {
		vecs[missingIdx[j]] = vec
		_ = c.store.Set(cache.Key(c.inner.Name(), missing[j]), cache.EncodeVector(vec), 0)
	}
	return vecs, nil
}

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

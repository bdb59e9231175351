package retrieve

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/claimlens/claimlens/internal/model"
)

// Searcher is the evidence lookup the retriever fans out over. The evidence
// index satisfies this.
type Searcher interface {
	Ready(ctx context.Context) error
	Search(ctx context.Context, query string, k int) ([]model.Evidence, error)
}

// Retriever gathers evidence for claims concurrently. Per-claim search
// failures degrade to an empty evidence list; only an unready index is
// fatal.
type Retriever struct {
	index   Searcher
	fanOut  int
	keep    int
	workers int
	logger  *zap.Logger
}

// Options bounds the retrieval fan-out. FanOut is how many candidates each
// claim pulls from the index, Keep how many survive per claim, Workers how
// many claims are searched at once.
type Options struct {
	FanOut  int
	Keep    int
	Workers int
	Logger  *zap.Logger
}

func New(index Searcher, opts Options) *Retriever {
	if opts.FanOut <= 0 {
		opts.FanOut = 8
	}
	if opts.Keep <= 0 {
		opts.Keep = 5
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Retriever{
		index:   index,
		fanOut:  opts.FanOut,
		keep:    opts.Keep,
		workers: opts.Workers,
		logger:  opts.Logger,
	}
}

// Retrieve returns evidence per claim ID. Every claim gets an entry, empty
// when its search failed or matched nothing.
func (r *Retriever) Retrieve(ctx context.Context, claims []model.Claim) (map[string][]model.Evidence, error) {
	if err := r.index.Ready(ctx); err != nil {
		return nil, err
	}

	out := make(map[string][]model.Evidence, len(claims))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, claim := range claims {
		g.Go(func() error {
			evs, err := r.index.Search(ctx, claim.Text, r.fanOut)
			if err != nil {
				r.logger.Warn("evidence search failed for claim",
					zap.String("claim_id", claim.ID),
					zap.Error(err))
				evs = nil
			}
			evs = topByScore(evs, r.keep)

			mu.Lock()
			out[claim.ID] = evs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func topByScore(evs []model.Evidence, keep int) []model.Evidence {
	if len(evs) <= keep {
		return evs
	}
	sorted := make([]model.Evidence, len(evs))
	copy(sorted, evs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	return sorted[:keep]
}

package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/claimlens/claimlens/internal/model"
	"github.com/claimlens/claimlens/internal/transcribe"
)

// The pipeline stages. Each is satisfied by its internal package; the
// interfaces exist so tests can run the pipeline against fakes.
type (
	ClaimExtractor interface {
		Extract(ctx context.Context, segments []model.Segment) []model.Claim
	}
	EvidenceRetriever interface {
		Retrieve(ctx context.Context, claims []model.Claim) (map[string][]model.Evidence, error)
	}
	Verifier interface {
		Verify(ctx context.Context, claims []model.Claim, evidence map[string][]model.Evidence) []model.Verdict
	}
	ReportBuilder interface {
		Build(ctx context.Context, segments []model.Segment, claims []model.Claim, evidence map[string][]model.Evidence, verdicts []model.Verdict) model.CallReport
	}
)

// Pipeline runs a call through extraction, retrieval, verification and
// reporting, in that order. Model-stage failures degrade inside their
// stages; only retrieval errors (an unbuildable evidence index) abort a
// call.
type Pipeline struct {
	extractor   ClaimExtractor
	retriever   EvidenceRetriever
	verifier    Verifier
	builder     ReportBuilder
	transcriber transcribe.Transcriber
	logger      *zap.Logger
}

// Options wires the pipeline stages. Transcriber is optional; without it
// ProcessAudio fails.
type Options struct {
	Extractor   ClaimExtractor
	Retriever   EvidenceRetriever
	Verifier    Verifier
	Builder     ReportBuilder
	Transcriber transcribe.Transcriber
	Logger      *zap.Logger
}

var errNoTranscriber = errors.New("pipeline: no transcriber configured")

func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Extractor == nil:
		return nil, errors.New("pipeline: extractor required")
	case opts.Retriever == nil:
		return nil, errors.New("pipeline: retriever required")
	case opts.Verifier == nil:
		return nil, errors.New("pipeline: verifier required")
	case opts.Builder == nil:
		return nil, errors.New("pipeline: builder required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		extractor:   opts.Extractor,
		retriever:   opts.Retriever,
		verifier:    opts.Verifier,
		builder:     opts.Builder,
		transcriber: opts.Transcriber,
		logger:      opts.Logger,
	}, nil
}

// ProcessSegments runs the full pipeline over already-segmented transcript.
func (p *Pipeline) ProcessSegments(ctx context.Context, segments []model.Segment) (model.CallReport, error) {
	claims := p.extractor.Extract(ctx, segments)
	p.logger.Info("claims extracted", zap.Int("count", len(claims)))
	if len(claims) == 0 {
		return p.builder.Build(ctx, segments, nil, nil, nil), nil
	}

	evidence, err := p.retriever.Retrieve(ctx, claims)
	if err != nil {
		return model.CallReport{}, err
	}

	verdicts := p.verifier.Verify(ctx, claims, evidence)
	p.logger.Info("claims verified", zap.Int("verdicts", len(verdicts)))

	return p.builder.Build(ctx, segments, claims, evidence, verdicts), nil
}

// ProcessTranscript wraps raw transcript text as one segment and processes
// it.
func (p *Pipeline) ProcessTranscript(ctx context.Context, text string) (model.CallReport, error) {
	return p.ProcessSegments(ctx, transcribe.SegmentsFromTranscript(text))
}

// ProcessAudio transcribes an audio file and processes the result.
func (p *Pipeline) ProcessAudio(ctx context.Context, audioPath string) (model.CallReport, error) {
	if p.transcriber == nil {
		return model.CallReport{}, errNoTranscriber
	}
	segments, err := p.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return model.CallReport{}, err
	}
	p.logger.Info("audio transcribed",
		zap.String("path", audioPath),
		zap.Int("segments", len(segments)))
	return p.ProcessSegments(ctx, segments)
}

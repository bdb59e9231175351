package transcribe

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/claimlens/claimlens/internal/model"
)

// Transcriber turns an audio file into ordered transcript segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]model.Segment, error)
}

// WhisperTranscriber transcribes audio through the OpenAI Whisper API,
// requesting verbose JSON so segment timestamps survive.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewWhisper(apiKey, modelID string, logger *zap.Logger) (*WhisperTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("transcribe: api key required")
	}
	if modelID == "" {
		modelID = openai.Whisper1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhisperTranscriber{
		client: openai.NewClient(apiKey),
		model:  modelID,
		logger: logger,
	}, nil
}

// Transcribe returns the audio's segments in order. Diarization is not
// available from Whisper, so every segment carries speaker "A". Audio with
// no speech yields a single empty segment so downstream stages still see a
// call.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) ([]model.Segment, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", audioPath, err)
	}

	var segments []model.Segment
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, model.Segment{
			Start:   seg.Start,
			End:     seg.End,
			Speaker: "A",
			Text:    text,
		})
	}
	if len(segments) == 0 {
		w.logger.Warn("no speech found in audio", zap.String("path", audioPath))
		segments = []model.Segment{{Speaker: "A"}}
	}
	return segments, nil
}

// SegmentsFromTranscript wraps raw transcript text as a single untimed
// segment, matching what audio-less processing expects.
func SegmentsFromTranscript(text string) []model.Segment {
	return []model.Segment{{Start: 0, End: 0, Speaker: "A", Text: text}}
}

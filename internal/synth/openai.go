package synth

import (
	"context"
	"io"

	"github.com/dgnsrekt/narrate/internal/narration"
	"github.com/sashabaranov/go-openai"
)

// OpenAI calls an OpenAI-compatible speech endpoint directly.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI creates a client. cfg.URL, when set, replaces the API base URL.
func NewOpenAI(cfg Config) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.Credential)
	if cfg.URL != "" {
		clientConfig.BaseURL = cfg.URL
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientConfig)}
}

// Name implements Synthesizer.
func (o *OpenAI) Name() string { return ProviderOpenAI }

// Synthesize implements Synthesizer.
func (o *OpenAI) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(req.Model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(req.Voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          req.Speed,
	})
	if err != nil {
		return nil, apiError("create speech", err)
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, apiError("read audio", err)
	}
	if len(data) == 0 {
		return nil, apiError("empty response", narration.ErrEmptyAudio)
	}
	return data, nil
}

var _ Synthesizer = (*OpenAI)(nil)

package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/eleven-am/dictation/internal/shared"
	"github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	APIKey   string
	Model    string
	BaseURL  string
	Language string
}

type OpenAILoader struct {
	cfg OpenAIConfig
}

func NewOpenAILoader(cfg OpenAIConfig) *OpenAILoader {
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	return &OpenAILoader{cfg: cfg}
}

func (l *OpenAILoader) Load(ctx context.Context) (Capability, error) {
	if l.cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", shared.ErrCapability)
	}
	clientCfg := openai.DefaultConfig(l.cfg.APIKey)
	if l.cfg.BaseURL != "" {
		clientCfg.BaseURL = l.cfg.BaseURL
	}
	return &OpenAI{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    l.cfg.Model,
		language: l.cfg.Language,
	}, nil
}

// OpenAI transcribes through the hosted audio/transcriptions endpoint. It has
// no warm-up cost, so it is also used directly by callers in API mode.
type OpenAI struct {
	client   *openai.Client
	model    string
	language string
}

func (o *OpenAI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Language: o.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("%w: openai transcription: %v", shared.ErrCapability, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (o *OpenAI) Close() error { return nil }

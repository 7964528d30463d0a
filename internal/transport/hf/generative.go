package hf

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

// Generative is a text2text-generation pipeline that always samples.
type Generative struct {
	client  *Client
	modelID string
}

type generationParameters struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
	DoSample     bool    `json:"do_sample"`
}

type generated struct {
	GeneratedText string `json:"generated_text"`
}

// Generate implements domain.GenerativePipeline.
func (g *Generative) Generate(ctx context.Context, prompt string, params domain.GenerationParams) (string, error) {
	raw, err := g.client.post(ctx, g.modelID, request{
		Inputs: prompt,
		Parameters: generationParameters{
			MaxNewTokens: params.MaxNewTokens,
			Temperature:  params.Temperature,
			TopP:         params.TopP,
			DoSample:     true,
		},
		Options: requestOptions{WaitForModel: true},
	})
	if err != nil {
		return "", err
	}

	switch jsonKind(raw) {
	case '{':
		var one generated
		if err := json.Unmarshal(raw, &one); err != nil {
			return "", decodeError(err)
		}
		return one.GeneratedText, nil
	case '[':
		var list []generated
		if err := json.Unmarshal(raw, &list); err != nil {
			return "", decodeError(err)
		}
		if len(list) == 0 {
			return "", fmt.Errorf("empty generation response: %w", domain.ErrInferenceFailed)
		}
		return list[0].GeneratedText, nil
	default:
		return "", fmt.Errorf("unexpected generation payload %q: %w", truncate(raw), domain.ErrInferenceFailed)
	}
}

package hf

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/qaserve/internal/domain"
)

// Extractive is a question-answering pipeline. It supports native batching.
type Extractive struct {
	client  *Client
	modelID string
}

type qaParameters struct {
	TopK                   int  `json:"top_k,omitempty"`
	MaxSeqLen              int  `json:"max_seq_len,omitempty"`
	DocStride              int  `json:"doc_stride,omitempty"`
	HandleImpossibleAnswer bool `json:"handle_impossible_answer"`
}

func newQAParameters(opts domain.ExtractiveOptions) qaParameters {
	return qaParameters{
		TopK:                   opts.TopK,
		MaxSeqLen:              opts.MaxSeqLen,
		DocStride:              opts.DocStride,
		HandleImpossibleAnswer: opts.HandleImpossibleAnswer,
	}
}

// Answer implements domain.ExtractivePipeline.
func (e *Extractive) Answer(
	ctx context.Context, in domain.ExtractiveInput, opts domain.ExtractiveOptions,
) ([]domain.CandidateAnswer, error) {
	raw, err := e.client.post(ctx, e.modelID, request{
		Inputs:     in,
		Parameters: newQAParameters(opts),
		Options:    requestOptions{WaitForModel: true, UseCache: e.client.useCache},
	})
	if err != nil {
		return nil, err
	}
	return decodeRanked(raw)
}

// AnswerBatch implements domain.BatchExtractivePipeline with one request for all inputs.
func (e *Extractive) AnswerBatch(
	ctx context.Context, in []domain.ExtractiveInput, opts domain.ExtractiveOptions,
) ([][]domain.CandidateAnswer, error) {
	if len(in) == 0 {
		return [][]domain.CandidateAnswer{}, nil
	}
	raw, err := e.client.post(ctx, e.modelID, request{
		Inputs:     in,
		Parameters: newQAParameters(opts),
		Options:    requestOptions{WaitForModel: true, UseCache: e.client.useCache},
	})
	if err != nil {
		return nil, err
	}
	out, err := decodeBatch(raw, len(in))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeRanked accepts a single candidate object or a ranked array.
func decodeRanked(raw json.RawMessage) ([]domain.CandidateAnswer, error) {
	switch jsonKind(raw) {
	case '{':
		var c domain.CandidateAnswer
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, decodeError(err)
		}
		return []domain.CandidateAnswer{c}, nil
	case '[':
		var list []domain.CandidateAnswer
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, decodeError(err)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unexpected answer payload %q: %w", truncate(raw), domain.ErrInferenceFailed)
	}
}

// decodeBatch accepts an array of ranked arrays, or a flat array which is
// one candidate per input (top_k 1) or, for a single input, its ranked list.
func decodeBatch(raw json.RawMessage, n int) ([][]domain.CandidateAnswer, error) {
	if jsonKind(raw) != '[' {
		if n == 1 {
			one, err := decodeRanked(raw)
			if err != nil {
				return nil, err
			}
			return [][]domain.CandidateAnswer{one}, nil
		}
		return nil, fmt.Errorf("unexpected batch payload %q: %w", truncate(raw), domain.ErrInferenceFailed)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, decodeError(err)
	}

	nested := len(items) > 0 && jsonKind(items[0]) == '['
	if !nested && n == 1 {
		one, err := decodeRanked(raw)
		if err != nil {
			return nil, err
		}
		return [][]domain.CandidateAnswer{one}, nil
	}

	if len(items) != n {
		return nil, fmt.Errorf("got %d results for %d inputs: %w", len(items), n, domain.ErrInferenceFailed)
	}
	out := make([][]domain.CandidateAnswer, n)
	for i, item := range items {
		ranked, err := decodeRanked(item)
		if err != nil {
			return nil, fmt.Errorf("result %d: %w", i, err)
		}
		out[i] = ranked
	}
	return out, nil
}

func decodeError(err error) error {
	return fmt.Errorf("decode response: %v: %w", err, domain.ErrInferenceFailed)
}

func truncate(raw []byte) string {
	const limit = 200
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}

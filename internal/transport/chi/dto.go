package chi

import (
	"github.com/kailas-cloud/qaserve/internal/domain"
	"github.com/kailas-cloud/qaserve/internal/domain/answer"
	healthuc "github.com/kailas-cloud/qaserve/internal/usecase/health"
)

// ErrorCode is the machine-readable error code of an error response.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest       ErrorCode = "bad_request"
	ErrorCodeValidationFailed ErrorCode = "validation_failed"
	ErrorCodeBatchTooLarge    ErrorCode = "batch_too_large"
	ErrorCodeModelUnavailable ErrorCode = "model_unavailable"
	ErrorCodeInferenceFailed  ErrorCode = "inference_failed"
	ErrorCodeUnauthorized     ErrorCode = "unauthorized"
	ErrorCodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// QueryRequest is the body of POST /predict and one item of a batch.
type QueryRequest struct {
	Context  string `json:"context" validate:"required"`
	Question string `json:"question" validate:"required"`
}

func (q QueryRequest) item() domain.QueryItem {
	return domain.QueryItem{Context: q.Context, Question: q.Question}
}

// BatchRequest is the body of POST /predict/batch.
type BatchRequest struct {
	Items []QueryRequest `json:"items" validate:"required,dive"`
}

// AbstractiveRequest is the body of POST /predict_abstractive.
// Sampling fields left out or set to zero take server defaults.
type AbstractiveRequest struct {
	Context      string   `json:"context" validate:"required"`
	Question     string   `json:"question" validate:"required"`
	MaxNewTokens *int     `json:"max_new_tokens,omitempty" validate:"omitempty,gte=0"`
	Temperature  *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0"`
	TopP         *float64 `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
}

func (a AbstractiveRequest) params() domain.GenerationParams {
	var p domain.GenerationParams
	if a.MaxNewTokens != nil {
		p.MaxNewTokens = *a.MaxNewTokens
	}
	if a.Temperature != nil {
		p.Temperature = *a.Temperature
	}
	if a.TopP != nil {
		p.TopP = *a.TopP
	}
	return p
}

// AnswerResult is one normalized extractive answer.
type AnswerResult struct {
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
	Start    int     `json:"start"`
	End      int     `json:"end"`
	NoAnswer bool    `json:"no_answer"`
}

// PredictResponse is the body of a successful POST /predict.
type PredictResponse struct {
	Task    string `json:"task"`
	ModelID string `json:"model_id"`
	AnswerResult
}

// BatchResponse is the body of a successful POST /predict/batch.
// Task and ModelID are omitted for an empty batch.
type BatchResponse struct {
	Task    string         `json:"task,omitempty"`
	ModelID string         `json:"model_id,omitempty"`
	Results []AnswerResult `json:"results"`
}

// AbstractiveResponse is the body of a successful POST /predict_abstractive.
type AbstractiveResponse struct {
	Task    string                  `json:"task"`
	ModelID string                  `json:"model_id"`
	Answer  string                  `json:"answer"`
	Params  domain.GenerationParams `json:"params"`
}

// ModelHealth is the per-kind block of the health payload.
type ModelHealth struct {
	Task    string  `json:"task"`
	ModelID string  `json:"model_id"`
	Loaded  bool    `json:"loaded"`
	Error   *string `json:"error"`
}

// SettingsHealth echoes the extractive settings.
type SettingsHealth struct {
	MaxSeqLen       int     `json:"max_seq_len"`
	DocStride       int     `json:"doc_stride"`
	AnswerThreshold float64 `json:"answer_threshold"`
	ReturnNBest     int     `json:"return_n_best"`
}

// OfflineHealth echoes the offline-mode flags.
type OfflineHealth struct {
	HFHubOffline        string `json:"HF_HUB_OFFLINE"`
	TransformersOffline string `json:"TRANSFORMERS_OFFLINE"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status      string            `json:"status"`
	AllFailed   bool              `json:"all_failed"`
	Extractive  ModelHealth       `json:"extractive"`
	Abstractive ModelHealth       `json:"abstractive"`
	Settings    SettingsHealth    `json:"settings"`
	Offline     OfflineHealth     `json:"offline"`
	Checks      map[string]string `json:"checks,omitempty"`
}

func answerToResult(r answer.Record) AnswerResult {
	return AnswerResult{
		Answer:   r.Answer(),
		Score:    r.Score(),
		Start:    r.Start(),
		End:      r.End(),
		NoAnswer: r.NoAnswer(),
	}
}

func modelHealth(m healthuc.ModelReport) ModelHealth {
	return ModelHealth{Task: m.Task, ModelID: m.ModelID, Loaded: m.Loaded, Error: m.Error}
}

func healthToResponse(r healthuc.Report) HealthResponse {
	resp := HealthResponse{
		Status:      string(r.Status),
		AllFailed:   r.AllFailed,
		Extractive:  modelHealth(r.Extractive),
		Abstractive: modelHealth(r.Generative),
		Settings: SettingsHealth{
			MaxSeqLen:       r.Settings.MaxSeqLen,
			DocStride:       r.Settings.DocStride,
			AnswerThreshold: r.Settings.AnswerThreshold,
			ReturnNBest:     r.Settings.ReturnNBest,
		},
		Offline: OfflineHealth{
			HFHubOffline:        r.Offline.HFHubOffline,
			TransformersOffline: r.Offline.TransformersOffline,
		},
	}
	if len(r.Checks) > 0 {
		resp.Checks = make(map[string]string, len(r.Checks))
		for k, v := range r.Checks {
			resp.Checks[k] = string(v)
		}
	}
	return resp
}

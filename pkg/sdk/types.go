package qaserve

// Query is one context/question pair.
type Query struct {
	Context  string `json:"context"`
	Question string `json:"question"`
}

// Answer is one thresholded extractive answer.
// Start and End are character offsets into the context, -1 when the model declined.
type Answer struct {
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
	Start    int     `json:"start"`
	End      int     `json:"end"`
	NoAnswer bool    `json:"no_answer"`
}

// Prediction is the result of Predict.
type Prediction struct {
	Task    string `json:"task"`
	ModelID string `json:"model_id"`
	Answer
}

// BatchPrediction is the result of PredictBatch. Results follow the input order.
type BatchPrediction struct {
	Task    string   `json:"task"`
	ModelID string   `json:"model_id"`
	Results []Answer `json:"results"`
}

// GenerationParams are sampling parameters. Zero fields take the server defaults.
type GenerationParams struct {
	MaxNewTokens int     `json:"max_new_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	TopP         float64 `json:"top_p,omitempty"`
}

// Generation is the result of PredictAbstractive. Params holds the values actually used.
type Generation struct {
	Task    string           `json:"task"`
	ModelID string           `json:"model_id"`
	Answer  string           `json:"answer"`
	Params  GenerationParams `json:"params"`
}

// ModelStatus describes one model slot.
type ModelStatus struct {
	Task    string `json:"task"`
	ModelID string `json:"model_id"`
	Loaded  bool   `json:"loaded"`
	// Error is the last line of the load diagnostic, empty unless the load failed.
	Error string `json:"error"`
}

// HealthStatus is the service status report.
type HealthStatus struct {
	Status      string            `json:"status"` // "ready", "gen-only", "loading"
	AllFailed   bool              `json:"all_failed"`
	Extractive  ModelStatus       `json:"extractive"`
	Abstractive ModelStatus       `json:"abstractive"`
	Settings    Settings          `json:"settings"`
	Offline     map[string]string `json:"offline"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// Settings echoes the extractive configuration of the service.
type Settings struct {
	MaxSeqLen       int     `json:"max_seq_len"`
	DocStride       int     `json:"doc_stride"`
	AnswerThreshold float64 `json:"answer_threshold"`
	ReturnNBest     int     `json:"return_n_best"`
}

package chi

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	gochi "github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/qaserve/internal/domain"
	logpkg "github.com/kailas-cloud/qaserve/internal/logger"
	abstractiveuc "github.com/kailas-cloud/qaserve/internal/usecase/abstractive"
	extractiveuc "github.com/kailas-cloud/qaserve/internal/usecase/extractive"
	healthuc "github.com/kailas-cloud/qaserve/internal/usecase/health"
)

const maxBodyBytes = 8 << 20

//go:embed ui.html
var uiPage []byte

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server exposes the QA services over HTTP.
type Server struct {
	extractive    *extractiveuc.Service
	abstractive   *abstractiveuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	validate      *validator.Validate
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	extractive *extractiveuc.Service,
	abstractive *abstractiveuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		extractive:  extractive,
		abstractive: abstractive,
		health:      health,
		logger:      logger,
		validate:    newValidator(),
	}
	s.errorHandlers = []errorHandler{
		modelUnavailableHandler,
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrBatchTooLarge, http.StatusBadRequest, ErrorCodeBatchTooLarge),
		sentinelHandler(domain.ErrInferenceFailed, http.StatusBadGateway, ErrorCodeInferenceFailed),
	}
	return s
}

// Routes registers all endpoints on r.
func (s *Server) Routes(r gochi.Router) {
	r.Get("/healthz", s.Healthz)
	r.Post("/predict", s.Predict)
	r.Post("/predict/batch", s.PredictBatch)
	r.Post("/predict_abstractive", s.PredictAbstractive)
	r.Get("/ui", s.UI)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// Healthz handles GET /healthz. It never blocks on a model load and always returns 200.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthToResponse(s.health.Check(r.Context())))
}

// Predict handles POST /predict.
func (s *Server) Predict(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}

	rec, err := s.extractive.AnswerOne(r.Context(), req.item())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PredictResponse{
		Task:         s.extractive.Task(),
		ModelID:      s.extractive.ModelID(),
		AnswerResult: answerToResult(rec),
	})
}

// PredictBatch handles POST /predict/batch.
func (s *Server) PredictBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !s.decode(w, r, &req) {
		return
	}

	if len(req.Items) == 0 {
		writeJSON(w, http.StatusOK, BatchResponse{Results: []AnswerResult{}})
		return
	}

	items := make([]domain.QueryItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = it.item()
	}

	recs, err := s.extractive.AnswerMany(r.Context(), items)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	results := make([]AnswerResult, len(recs))
	for i, rec := range recs {
		results[i] = answerToResult(rec)
	}
	writeJSON(w, http.StatusOK, BatchResponse{
		Task:    s.extractive.Task(),
		ModelID: s.extractive.ModelID(),
		Results: results,
	})
}

// PredictAbstractive handles POST /predict_abstractive.
func (s *Server) PredictAbstractive(w http.ResponseWriter, r *http.Request) {
	var req AbstractiveRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.abstractive.Generate(r.Context(),
		domain.QueryItem{Context: req.Context, Question: req.Question}, req.params())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AbstractiveResponse{
		Task:    domain.TaskText2Text,
		ModelID: s.abstractive.ModelID(),
		Answer:  res.Answer,
		Params:  res.Params,
	})
}

// UI handles GET /ui with a single-page tester.
func (s *Server) UI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(uiPage)
}

// decode reads and validates a JSON body. On failure it writes a 400 and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, validationMessage(err))
		return false
	}
	return true
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage renders the first failed rule with the JSON field path, e.g. "items[1].question is required".
func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request"
	}
	fe := ve[0]
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	switch fe.Tag() {
	case "required":
		if fe.Field() != "context" && fe.Field() != "question" {
			return path + " is required"
		}
		if i := strings.LastIndexByte(path, '.'); i >= 0 {
			return path[:i] + ": both 'context' and 'question' are required."
		}
		return "Both 'context' and 'question' are required."
	case "gte":
		return fmt.Sprintf("%s must be >= %s", path, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", path, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", path, fe.Tag())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns the innermost caller-facing message without exposing internals.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrBatchTooLarge) {
		return err.Error()
	}
	if errors.Is(err, domain.ErrInferenceFailed) {
		return domain.ErrInferenceFailed.Error()
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}

// modelUnavailableHandler maps a failed load to 503 and points callers at /healthz.
func modelUnavailableHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrModelUnavailable) {
		return false
	}
	kind := "Model"
	var le *domain.LoadError
	if errors.As(err, &le) {
		switch le.Kind {
		case domain.KindExtractive:
			kind = "Extractive model"
		case domain.KindGenerative:
			kind = "Generative model"
		}
	}
	writeError(w, http.StatusServiceUnavailable, ErrorCodeModelUnavailable,
		kind+" not loaded. See /healthz for load_error.")
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logpkg.FromContext(r.Context())
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrBatchTooLarge):
		logger.Debug("rejected request", zap.Error(err))
	default:
		logger.Warn("domain error", zap.Error(err))
	}
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}

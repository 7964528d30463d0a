package health

import (
	"context"

	"github.com/kailas-cloud/qaserve/internal/domain"
	"github.com/kailas-cloud/qaserve/internal/usecase/loader"
)

// Status is the coarse service status.
type Status string

const (
	// Ready means the extractive model is loaded.
	Ready Status = "ready"
	// GenOnly means only the generative model is loaded.
	GenOnly Status = "gen-only"
	// Loading covers unloaded models and the case where both failed.
	Loading Status = "loading"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Settings is the static extractive configuration echoed by the report.
type Settings struct {
	MaxSeqLen       int
	DocStride       int
	AnswerThreshold float64
	ReturnNBest     int
}

// Offline carries the raw offline-mode flags as configured.
type Offline struct {
	HFHubOffline        string
	TransformersOffline string
}

// ModelReport describes one model kind.
type ModelReport struct {
	Task    string
	ModelID string
	Loaded  bool
	// Error is the last diagnostic line when the load failed, nil otherwise.
	Error *string
}

// Report aggregates model states and settings.
type Report struct {
	Status     Status
	AllFailed  bool
	Extractive ModelReport
	Generative ModelReport
	Settings   Settings
	Offline    Offline
	Checks     map[string]CheckResult
}

// Service builds health reports.
type Service struct {
	models   ModelStates
	task     string
	settings Settings
	offline  Offline
	cache    CachePinger
	backends map[string]BackendChecker
}

// New creates a Service. cache can be nil.
func New(models ModelStates, task string, settings Settings, offline Offline, cache CachePinger) *Service {
	return &Service{models: models, task: task, settings: settings, offline: offline, cache: cache}
}

// WithBackendCheck adds a named remote backend check to the report.
func (s *Service) WithBackendCheck(name string, c BackendChecker) *Service {
	if s.backends == nil {
		s.backends = make(map[string]BackendChecker)
	}
	s.backends[name] = c
	return s
}

// Check builds the report. Only the optional cache and backend checks touch the network.
func (s *Service) Check(ctx context.Context) Report {
	ext, gen := s.models.Statuses()

	r := Report{
		Status:     Derive(ext.State, gen.State),
		AllFailed:  ext.State == loader.StateFailed && gen.State == loader.StateFailed,
		Extractive: modelReport(s.task, ext),
		Generative: modelReport(domain.TaskText2Text, gen),
		Settings:   s.settings,
		Offline:    s.offline,
	}

	if s.cache != nil {
		r.setCheck("cache", s.cache.Ping(ctx))
	}
	for name, b := range s.backends {
		r.setCheck(name, b.HealthCheck(ctx))
	}

	return r
}

func (r *Report) setCheck(name string, err error) {
	if r.Checks == nil {
		r.Checks = make(map[string]CheckResult)
	}
	r.Checks[name] = CheckOK
	if err != nil {
		r.Checks[name] = CheckError
	}
}

// Derive maps both load states to the coarse status. The generative state
// only matters when the extractive model is not loaded.
func Derive(extractive, generative loader.State) Status {
	switch {
	case extractive == loader.StateLoaded:
		return Ready
	case generative == loader.StateLoaded:
		return GenOnly
	default:
		return Loading
	}
}

func modelReport(task string, st loader.Status) ModelReport {
	mr := ModelReport{
		Task:    task,
		ModelID: st.ModelID,
		Loaded:  st.State == loader.StateLoaded,
	}
	if st.State == loader.StateFailed {
		line := st.LastLine
		mr.Error = &line
	}
	return mr
}

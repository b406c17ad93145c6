package health

import (
	"context"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the search engine is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names used in Report.Checks.
const (
	ComponentStore  = "store"
	ComponentEngine = "engine"
	ComponentSource = "source"
	ComponentQueue  = "queue"
)

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Deps lists probed components. Only Engine is required.
type Deps struct {
	Store  DBPinger
	Engine EngineChecker
	Source DBPinger
	Queue  Checker
}

// Service coordinates health checks and diagnostics.
type Service struct {
	deps   Deps
	doctor DoctorConfig
}

// New creates a Service.
func New(d Deps, doctor DoctorConfig) *Service {
	return &Service{deps: d, doctor: doctor}
}

// Check runs health checks against all configured components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	record := func(name string, err error) {
		if err != nil {
			checks[name] = CheckError
			return
		}
		checks[name] = CheckOK
	}

	record(ComponentEngine, s.deps.Engine.Health(ctx))
	if s.deps.Store != nil {
		record(ComponentStore, s.deps.Store.Ping(ctx))
	}
	if s.deps.Source != nil {
		record(ComponentSource, s.deps.Source.Ping(ctx))
	}
	if s.deps.Queue != nil {
		record(ComponentQueue, s.deps.Queue.Check(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[ComponentEngine] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

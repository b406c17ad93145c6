package fedsearch

import (
	"context"
	"errors"
	"time"

	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
)

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component → "ok"/"error"
}

// Health checks the health of all system components.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}

// Doctor diagnoses configuration, connectivity and index drift.
func (c *Client) Doctor(ctx context.Context) DoctorReport {
	start := time.Now()
	r := fromDoctor(c.healthSvc.Doctor(ctx))
	var err error
	if !r.OK() {
		err = errDoctor
	}
	c.obs.observe("doctor", start, err)
	return r
}

var errDoctor = errors.New("doctor found errors")

// healthUseCase is the internal interface for health checks.
type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
	Doctor(ctx context.Context) healthuc.DoctorReport
}

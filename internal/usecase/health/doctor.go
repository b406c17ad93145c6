package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/fedsearch/internal/domain/tenant"
	"github.com/kailas-cloud/fedsearch/internal/engine"
)

// Severity grades a doctor finding.
type Severity string

const (
	SeverityOK    Severity = "ok"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarn:
		return 1
	default:
		return 0
	}
}

// Finding is one diagnostic line.
type Finding struct {
	Check    string   `json:"check"`
	Subject  string   `json:"subject"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message,omitempty"`
}

// DoctorReport is the outcome of Doctor. Severity is the worst finding.
type DoctorReport struct {
	Severity Severity  `json:"severity"`
	Findings []Finding `json:"findings"`
}

// DoctorConfig tells the doctor what the deployment expects.
type DoctorConfig struct {
	Mappings         Mappings
	Resolver         tenant.Resolver
	FederatedIndexes []string
	Tenants          []string
	DefaultTenant    string
}

func (c DoctorConfig) tenants() []string {
	if c.Resolver.Enabled() && len(c.Tenants) > 0 {
		return c.Tenants
	}
	return []string{c.DefaultTenant}
}

// Doctor checks connectivity, mapping consistency and the primary key of every physical index.
// It only reads; drift it reports is repaired by the next index job or by a settings sync.
func (s *Service) Doctor(ctx context.Context) DoctorReport {
	var r DoctorReport
	add := func(f Finding) {
		r.Findings = append(r.Findings, f)
		if f.Severity.rank() > r.Severity.rank() {
			r.Severity = f.Severity
		}
	}
	r.Severity = SeverityOK

	health := s.Check(ctx)
	for _, name := range []string{ComponentEngine, ComponentStore, ComponentSource, ComponentQueue} {
		res, ok := health.Checks[name]
		if !ok {
			continue
		}
		f := Finding{Check: "connectivity", Subject: name, Severity: SeverityOK}
		if res == CheckError {
			f.Severity = SeverityError
			f.Message = "unreachable"
		}
		add(f)
	}

	m := s.doctor.Mappings
	if m == nil || len(m.All()) == 0 {
		add(Finding{Check: "mappings", Subject: "registry", Severity: SeverityError, Message: "no mappings configured"})
		return r
	}

	if len(s.doctor.FederatedIndexes) == 0 {
		add(Finding{Check: "federation", Subject: "indexes", Severity: SeverityWarn,
			Message: "no federated indexes configured, searches return nothing"})
	}
	for _, base := range s.doctor.FederatedIndexes {
		f := Finding{Check: "federation", Subject: base, Severity: SeverityOK}
		if _, err := m.ByIndex(base); err != nil {
			f.Severity = SeverityError
			f.Message = "federated index has no mapping"
		}
		add(f)
	}

	for _, base := range m.IndexNames() {
		if f, ok := primaryKeyConflict(m, base); ok {
			add(f)
		}
	}

	if health.Checks[ComponentEngine] == CheckError {
		return r
	}
	for _, t := range s.doctor.tenants() {
		for _, base := range m.IndexNames() {
			add(s.checkIndex(ctx, m, base, t))
		}
	}
	return r
}

func primaryKeyConflict(m Mappings, base string) (Finding, bool) {
	first, err := m.ByIndex(base)
	if err != nil {
		return Finding{}, false
	}
	for _, other := range m.All() {
		if other.IndexName() == base && other.PrimaryKey() != first.PrimaryKey() {
			return Finding{
				Check:    "mappings",
				Subject:  base,
				Severity: SeverityError,
				Message: fmt.Sprintf("source types %s and %s disagree on primary key (%s vs %s)",
					first.SourceType(), other.SourceType(), first.PrimaryKey(), other.PrimaryKey()),
			}, true
		}
	}
	return Finding{}, false
}

func (s *Service) checkIndex(ctx context.Context, m Mappings, base, tenantID string) Finding {
	f := Finding{Check: "index", Subject: base, Severity: SeverityOK}

	index, err := s.doctor.Resolver.Resolve(base, tenantID)
	if err != nil {
		f.Severity = SeverityError
		f.Message = err.Error()
		return f
	}
	f.Subject = index

	mp, err := m.ByIndex(base)
	if err != nil {
		f.Severity = SeverityError
		f.Message = err.Error()
		return f
	}

	settings, err := s.deps.Engine.GetSettings(ctx, index)
	switch {
	case errors.Is(err, engine.ErrIndexNotFound):
		f.Severity = SeverityWarn
		f.Message = "index missing; created by the next index job"
	case err != nil:
		f.Severity = SeverityError
		f.Message = err.Error()
	case settings.PrimaryKey != mp.PrimaryKey():
		f.Severity = SeverityWarn
		f.Message = fmt.Sprintf("primary key %q, expected %q; next index job recreates the index",
			settings.PrimaryKey, mp.PrimaryKey())
	}
	return f
}

// Package tenant derives physical index names from base names and tenant identifiers.
package tenant

import (
	"regexp"
	"strings"

	"github.com/kailas-cloud/fedsearch/internal/domain"
)

var (
	disallowedRun = regexp.MustCompile(`[^a-z0-9_-]+`)
	hyphenRun     = regexp.MustCompile(`-{2,}`)
)

// SingleTenant is the cache-key sentinel used when no tenant applies.
const SingleTenant = "single"

// Normalize lowercases a tenant identifier and reduces it to [a-z0-9_-].
func Normalize(tenant string) string {
	s := strings.ToLower(tenant)
	s = disallowedRun.ReplaceAllString(s, "-")
	s = hyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Resolver maps (base index, tenant) to a physical index name. It performs no I/O.
type Resolver struct {
	enabled       bool
	requireTenant bool
}

// NewResolver creates a resolver. requireTenant only matters when enabled is true.
func NewResolver(enabled, requireTenant bool) Resolver {
	return Resolver{enabled: enabled, requireTenant: requireTenant}
}

// Enabled reports whether multi-tenancy is on.
func (r Resolver) Enabled() bool { return r.enabled }

// Resolve returns "{base}_{normalizedTenant}", or base when tenancy does not apply.
// With tenancy enabled and requireTenant set, an empty tenant is a configuration error
// rather than a silent fallback to the shared index.
func (r Resolver) Resolve(base, tenant string) (string, error) {
	if !r.enabled {
		return base, nil
	}
	if strings.TrimSpace(tenant) == "" {
		if r.requireTenant {
			return "", domain.NewConfigurationError(domain.ErrTenantRequired, "index "+base)
		}
		return base, nil
	}
	normalized := Normalize(tenant)
	if normalized == "" {
		return "", domain.NewConfigurationError(domain.ErrInvalidTenant, tenant)
	}
	return base + "_" + normalized, nil
}

// ResolveAll resolves every base name for one tenant, preserving order.
func (r Resolver) ResolveAll(bases []string, tenant string) ([]string, error) {
	out := make([]string, len(bases))
	for i, b := range bases {
		name, err := r.Resolve(b, tenant)
		if err != nil {
			return nil, err
		}
		out[i] = name
	}
	return out, nil
}

// CacheScope returns the tenant component of a cache key.
func (r Resolver) CacheScope(tenant string) string {
	if !r.enabled || strings.TrimSpace(tenant) == "" {
		return SingleTenant
	}
	return Normalize(tenant)
}

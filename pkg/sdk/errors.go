package fedsearch

import (
	"github.com/kailas-cloud/fedsearch/internal/app"
	"github.com/kailas-cloud/fedsearch/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrConfiguration    = domain.ErrConfiguration
	ErrMappingNotFound  = domain.ErrMappingNotFound
	ErrTenantRequired   = domain.ErrTenantRequired
	ErrInvalidTenant    = domain.ErrInvalidTenant
	ErrInvalidRequest   = domain.ErrInvalidRequest
	ErrIndexNotFound    = domain.ErrIndexNotFound
	ErrIndexingDisabled = app.ErrIndexingDisabled
)

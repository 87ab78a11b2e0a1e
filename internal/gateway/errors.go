package gateway

import "errors"

// Sentinel errors for the gateway package.
var (
	ErrNoRoutes = errors.New("at least one route registrar is required")
)

package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Provider errors
	ErrQuotaExceeded  = fmt.Errorf("quota exceeded")
	ErrProtocol       = fmt.Errorf("unexpected provider response")
	ErrNetwork        = fmt.Errorf("network error")
	ErrRejected       = fmt.Errorf("address rejected")
	ErrTimeout        = fmt.Errorf("operation timed out")
	ErrServiceUnavail = fmt.Errorf("service unavailable")

	// Catalog errors
	ErrCatalogParse = fmt.Errorf("failed to parse catalog")
	ErrEmptyCatalog = fmt.Errorf("catalog is empty")

	// Persistence errors
	ErrRunNotFound = fmt.Errorf("run not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

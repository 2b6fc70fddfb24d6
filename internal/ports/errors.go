package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these sentinels so the
// engine can branch on the condition without knowing the exchange.
var (
	// Cycle-level conditions the engine branches on.
	ErrSnapshotUnavailable  = errors.New("market snapshot unavailable")
	ErrRulesUnavailable     = errors.New("symbol rules not available")
	ErrOrderRejected        = errors.New("order rejected by exchange")
	ErrIndicatorUnavailable = errors.New("indicator unavailable")

	// General errors.
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange specific errors.
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")

	// Journal specific errors.
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)

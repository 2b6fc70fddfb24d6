package ports

import (
	"context"

	"spotFlipBot/internal/domain"
)

// ExecutionRecorder persists execution receipts for audit. It is write-only
// from the engine's point of view: a recording failure is logged and never
// blocks trading, and nothing recorded here is read back into trading state.
type ExecutionRecorder interface {
	// RecordExecution appends a receipt and returns its assigned ID.
	RecordExecution(ctx context.Context, exec *domain.Execution) (int64, error)
	// FindBySymbol retrieves the most recent receipts for a symbol, up to a limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Execution, error)
}

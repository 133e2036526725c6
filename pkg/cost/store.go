package cost

import "context"

// Store is the append-only storage port for usage records. File,
// in-memory, and sqlite implementations are provided; tests inject the
// in-memory one.
type Store interface {
	// Save appends one record.
	Save(ctx context.Context, record Record) error

	// IterAll returns every record in insertion order.
	IterAll(ctx context.Context) ([]Record, error)

	// IterByDate returns records whose timestamp date (YYYY-MM-DD)
	// equals date.
	IterByDate(ctx context.Context, date string) ([]Record, error)

	// IterByCoordination returns records for one coordination id.
	IterByCoordination(ctx context.Context, coordinationID string) ([]Record, error)

	// Close releases resources.
	Close() error
}

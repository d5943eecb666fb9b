package notification

import (
	"context"
	"database/sql"
	"time"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// OutboxRepository defines persistence for outbox entries.
type OutboxRepository interface {
	Create(ctx context.Context, o *Outbox) error

	// CreateInTx inserts the entry within an existing transaction, so an
	// event row commits or rolls back with the mutation it describes.
	CreateInTx(ctx context.Context, tx *sql.Tx, o *Outbox) error

	GetByID(ctx context.Context, id shared.ID) (*Outbox, error)
	Update(ctx context.Context, o *Outbox) error

	// FetchPending locks up to limit due entries for the named worker and
	// returns them. Locked entries are invisible to other workers.
	FetchPending(ctx context.Context, workerID string, limit int) ([]*Outbox, error)

	// ReleaseStale unlocks entries whose worker disappeared mid-dispatch.
	ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error)

	// CountPending returns the number of undispatched entries, for metrics.
	CountPending(ctx context.Context) (int64, error)

	// DeleteProcessed prunes terminal entries older than the cutoff.
	DeleteProcessed(ctx context.Context, olderThan time.Time) (int64, error)
}

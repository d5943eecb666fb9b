package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/gatherhq/api/pkg/domain/notification"
	"github.com/gatherhq/api/pkg/domain/shared"
)

// OutboxRepository implements notification.OutboxRepository using PostgreSQL.
type OutboxRepository struct {
	db *DB
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// executor is satisfied by both *DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const outboxColumns = `id, space_id, event_type, actor_id, subject_id, payload,
	status, retry_count, max_retries, last_error,
	scheduled_at, locked_at, locked_by,
	created_at, updated_at, processed_at`

// Create inserts a new outbox entry.
func (r *OutboxRepository) Create(ctx context.Context, o *notification.Outbox) error {
	return insertOutbox(ctx, r.db, o)
}

// CreateInTx inserts a new outbox entry within an existing transaction.
func (r *OutboxRepository) CreateInTx(ctx context.Context, tx *sql.Tx, o *notification.Outbox) error {
	return insertOutbox(ctx, tx, o)
}

// insertOutbox writes one entry through the given executor. The space
// repository's transactional methods call this so events commit with the
// mutation they describe.
func insertOutbox(ctx context.Context, ex executor, o *notification.Outbox) error {
	payload, err := toJSONB(o.Payload())
	if err != nil {
		payload = []byte("{}")
	}

	query := `
		INSERT INTO notification_outbox (
			id, space_id, event_type, actor_id, subject_id, payload,
			status, retry_count, max_retries, last_error,
			scheduled_at, locked_at, locked_by,
			created_at, updated_at, processed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15, $16
		)
	`

	_, err = ex.ExecContext(ctx, query,
		o.ID().String(),
		o.SpaceID().String(),
		o.EventType(),
		nullID(o.ActorID()),
		nullID(o.SubjectID()),
		payload,
		o.Status().String(),
		o.RetryCount(),
		o.MaxRetries(),
		nullString(o.LastError()),
		o.ScheduledAt(),
		nullTime(o.LockedAt()),
		nullString(o.LockedBy()),
		o.CreatedAt(),
		o.UpdatedAt(),
		nullTime(o.ProcessedAt()),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}

	return nil
}

// insertOutboxEntries writes a batch of entries through the given executor.
func insertOutboxEntries(ctx context.Context, ex executor, entries []*notification.Outbox) error {
	for _, o := range entries {
		if o == nil {
			continue
		}
		if err := insertOutbox(ctx, ex, o); err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves an outbox entry by ID.
func (r *OutboxRepository) GetByID(ctx context.Context, id shared.ID) (*notification.Outbox, error) {
	query := `SELECT ` + outboxColumns + ` FROM notification_outbox WHERE id = $1`

	o, err := scanOutboxRowScanner(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

// Update updates an outbox entry's processing state.
func (r *OutboxRepository) Update(ctx context.Context, o *notification.Outbox) error {
	query := `
		UPDATE notification_outbox
		SET status = $2, retry_count = $3, last_error = $4,
			scheduled_at = $5, locked_at = $6, locked_by = $7,
			updated_at = $8, processed_at = $9
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		o.ID().String(),
		o.Status().String(),
		o.RetryCount(),
		nullString(o.LastError()),
		o.ScheduledAt(),
		nullTime(o.LockedAt()),
		nullString(o.LockedBy()),
		o.UpdatedAt(),
		nullTime(o.ProcessedAt()),
	)
	if err != nil {
		return fmt.Errorf("update outbox entry: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return shared.ErrNotFound
	}

	return nil
}

// FetchPending retrieves and locks up to limit due entries for the named
// worker. FOR UPDATE SKIP LOCKED keeps concurrent dispatchers off the same
// rows.
func (r *OutboxRepository) FetchPending(ctx context.Context, workerID string, limit int) ([]*notification.Outbox, error) {
	if limit <= 0 {
		limit = 50
	}

	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	selectQuery := `
		SELECT ` + outboxColumns + `
		FROM notification_outbox
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC, created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.QueryContext(ctx, selectQuery, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox: %w", err)
	}

	entries, err := scanOutboxRows(rows)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return entries, tx.Commit()
	}

	ids := make([]string, len(entries))
	for i, o := range entries {
		ids[i] = o.ID().String()
	}

	updateQuery := `
		UPDATE notification_outbox
		SET status = 'processing', locked_at = $1, locked_by = $2, updated_at = $1
		WHERE id = ANY($3)
	`

	if _, err := tx.ExecContext(ctx, updateQuery, now, workerID, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lock outbox entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	for _, o := range entries {
		o.Lock(workerID)
	}

	return entries, nil
}

// ReleaseStale unlocks entries whose worker disappeared mid-dispatch.
func (r *OutboxRepository) ReleaseStale(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		UPDATE notification_outbox
		SET status = 'pending', locked_at = NULL, locked_by = NULL, updated_at = NOW()
		WHERE status = 'processing' AND locked_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("release stale outbox entries: %w", err)
	}

	return result.RowsAffected()
}

// CountPending returns the number of undispatched entries.
func (r *OutboxRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_outbox WHERE status = 'pending'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox entries: %w", err)
	}
	return count, nil
}

// DeleteProcessed prunes terminal entries older than the cutoff.
func (r *OutboxRepository) DeleteProcessed(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM notification_outbox
		WHERE status IN ('processed', 'failed') AND processed_at < $1
	`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete processed outbox entries: %w", err)
	}

	return result.RowsAffected()
}

// =============================================================================
// Scan helpers
// =============================================================================

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxRowScanner(row rowScanner) (*notification.Outbox, error) {
	var (
		idStr, spaceIDStr, eventType, statusStr string
		actorIDStr, subjectIDStr                sql.NullString
		payloadJSON                             []byte
		retryCount, maxRetries                  int
		lastError, lockedBy                     sql.NullString
		scheduledAt, createdAt, updatedAt       time.Time
		lockedAt, processedAt                   sql.NullTime
	)

	err := row.Scan(&idStr, &spaceIDStr, &eventType, &actorIDStr, &subjectIDStr, &payloadJSON,
		&statusStr, &retryCount, &maxRetries, &lastError,
		&scheduledAt, &lockedAt, &lockedBy,
		&createdAt, &updatedAt, &processedAt)
	if err != nil {
		return nil, err
	}

	id, _ := shared.IDFromString(idStr)
	spaceID, _ := shared.IDFromString(spaceIDStr)

	var payload map[string]any
	if err := fromJSONB(payloadJSON, &payload); err != nil {
		payload = map[string]any{}
	}

	return notification.ReconstituteOutbox(
		id, spaceID, eventType,
		parseNullID(actorIDStr), parseNullID(subjectIDStr),
		payload,
		notification.OutboxStatus(statusStr),
		retryCount, maxRetries,
		lastError.String,
		scheduledAt,
		nullTimeValue(lockedAt),
		lockedBy.String,
		createdAt, updatedAt,
		nullTimeValue(processedAt),
	), nil
}

func scanOutboxRows(rows *sql.Rows) ([]*notification.Outbox, error) {
	defer rows.Close()

	var entries []*notification.Outbox
	for rows.Next() {
		o, err := scanOutboxRowScanner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, o)
	}

	return entries, rows.Err()
}

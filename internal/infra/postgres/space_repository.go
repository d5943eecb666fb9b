package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gatherhq/api/pkg/domain/notification"
	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/pagination"
)

// SpaceRepository implements space.Repository using PostgreSQL.
type SpaceRepository struct {
	db *DB
}

// NewSpaceRepository creates a new SpaceRepository.
func NewSpaceRepository(db *DB) *SpaceRepository {
	return &SpaceRepository{db: db}
}

// =============================================================================
// Space CRUD
// =============================================================================

// Create persists a new space.
func (r *SpaceRepository) Create(ctx context.Context, sp *space.Space) error {
	query := `
		INSERT INTO spaces (id, name, slug, description, visibility, auto_join, allow_member_posts,
			requires_payment, subscription_tier_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		sp.ID().String(),
		sp.Name(),
		sp.Slug(),
		nullString(sp.Description()),
		sp.Visibility().String(),
		sp.AutoJoin(),
		sp.AllowMemberPosts(),
		sp.RequiresPayment(),
		nullID(sp.SubscriptionTierID()),
		sp.CreatedBy().String(),
		sp.CreatedAt(),
		sp.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: slug %q is taken", shared.ErrAlreadyExists, sp.Slug())
		}
		return fmt.Errorf("failed to create space: %w", err)
	}

	return nil
}

const spaceColumns = `id, name, slug, description, visibility, auto_join, allow_member_posts,
	requires_payment, subscription_tier_id, created_by, created_at, updated_at`

// GetByID retrieves a space by ID.
func (r *SpaceRepository) GetByID(ctx context.Context, id shared.ID) (*space.Space, error) {
	query := `SELECT ` + spaceColumns + ` FROM spaces WHERE id = $1`
	return scanSpace(r.db.QueryRowContext(ctx, query, id.String()))
}

// GetBySlug retrieves a space by slug.
func (r *SpaceRepository) GetBySlug(ctx context.Context, slug string) (*space.Space, error) {
	query := `SELECT ` + spaceColumns + ` FROM spaces WHERE slug = $1`
	return scanSpace(r.db.QueryRowContext(ctx, query, slug))
}

// Update updates an existing space.
func (r *SpaceRepository) Update(ctx context.Context, sp *space.Space) error {
	query := `
		UPDATE spaces
		SET name = $2, slug = $3, description = $4, visibility = $5, auto_join = $6,
			allow_member_posts = $7, requires_payment = $8, subscription_tier_id = $9, updated_at = $10
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		sp.ID().String(),
		sp.Name(),
		sp.Slug(),
		nullString(sp.Description()),
		sp.Visibility().String(),
		sp.AutoJoin(),
		sp.AllowMemberPosts(),
		sp.RequiresPayment(),
		nullID(sp.SubscriptionTierID()),
		sp.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: slug %q is taken", shared.ErrAlreadyExists, sp.Slug())
		}
		return fmt.Errorf("failed to update space: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return shared.ErrNotFound
	}

	return nil
}

// Delete removes a space. Memberships, join requests, and invites cascade.
func (r *SpaceRepository) Delete(ctx context.Context, id shared.ID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM spaces WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete space: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return shared.ErrNotFound
	}

	return nil
}

// ExistsBySlug checks if a space with the given slug exists.
func (r *SpaceRepository) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM spaces WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug existence: %w", err)
	}
	return exists, nil
}

// List returns a page of spaces ordered by creation time.
func (r *SpaceRepository) List(ctx context.Context, p pagination.Pagination) ([]*space.Space, error) {
	query := `SELECT ` + spaceColumns + ` FROM spaces ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, p.Limit(), p.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list spaces: %w", err)
	}
	defer rows.Close()

	var spaces []*space.Space
	for rows.Next() {
		sp, err := scanSpaceRow(rows)
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, sp)
	}

	return spaces, rows.Err()
}

// ListAutoJoin returns all spaces flagged for automatic membership.
func (r *SpaceRepository) ListAutoJoin(ctx context.Context) ([]*space.Space, error) {
	query := `SELECT ` + spaceColumns + ` FROM spaces WHERE auto_join = TRUE ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-join spaces: %w", err)
	}
	defer rows.Close()

	var spaces []*space.Space
	for rows.Next() {
		sp, err := scanSpaceRow(rows)
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, sp)
	}

	return spaces, rows.Err()
}

// CountMembers returns the number of memberships in a space.
func (r *SpaceRepository) CountMembers(ctx context.Context, spaceID shared.ID) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM space_members WHERE space_id = $1`, spaceID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}

// =============================================================================
// Membership operations
// =============================================================================

const membershipColumns = `id, user_id, space_id, role, status, block_type, block_expires_at,
	blocked_by, blocked_at, joined_at, updated_at`

// CreateMembership creates a new membership. A unique violation on
// (user_id, space_id) maps to ErrAlreadyMember.
func (r *SpaceRepository) CreateMembership(ctx context.Context, m *space.Membership) error {
	return r.insertMembership(ctx, r.db, m)
}

// CreateMembershipTx creates a membership and the outbox entries in one transaction.
func (r *SpaceRepository) CreateMembershipTx(ctx context.Context, m *space.Membership, entries ...*notification.Outbox) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := r.insertMembership(ctx, tx, m); err != nil {
			return err
		}
		return insertOutboxEntries(ctx, tx, entries)
	})
}

func (r *SpaceRepository) insertMembership(ctx context.Context, ex executor, m *space.Membership) error {
	query := `
		INSERT INTO space_members (id, user_id, space_id, role, status, block_type, block_expires_at,
			blocked_by, blocked_at, joined_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	status, bt, bexp, bby, bat := membershipBlockColumns(m)

	_, err := ex.ExecContext(ctx, query,
		m.ID().String(),
		m.UserID().String(),
		m.SpaceID().String(),
		m.Role().String(),
		status,
		bt, bexp, bby, bat,
		m.JoinedAt(),
		m.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return space.ErrAlreadyMember
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}

	return nil
}

// GetMembership retrieves a membership by user and space.
func (r *SpaceRepository) GetMembership(ctx context.Context, userID, spaceID shared.ID) (*space.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM space_members WHERE user_id = $1 AND space_id = $2`
	return scanMembership(r.db.QueryRowContext(ctx, query, userID.String(), spaceID.String()))
}

// GetMembershipByID retrieves a membership by ID.
func (r *SpaceRepository) GetMembershipByID(ctx context.Context, id shared.ID) (*space.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM space_members WHERE id = $1`
	return scanMembership(r.db.QueryRowContext(ctx, query, id.String()))
}

// UpdateMembership updates a membership's role and block state.
func (r *SpaceRepository) UpdateMembership(ctx context.Context, m *space.Membership) error {
	return r.updateMembership(ctx, r.db, m)
}

// UpdateMembershipTx persists a membership mutation and the outbox entries in
// one transaction.
func (r *SpaceRepository) UpdateMembershipTx(ctx context.Context, m *space.Membership, entries ...*notification.Outbox) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := r.updateMembership(ctx, tx, m); err != nil {
			return err
		}
		return insertOutboxEntries(ctx, tx, entries)
	})
}

func (r *SpaceRepository) updateMembership(ctx context.Context, ex executor, m *space.Membership) error {
	query := `
		UPDATE space_members
		SET role = $2, status = $3, block_type = $4, block_expires_at = $5,
			blocked_by = $6, blocked_at = $7, updated_at = $8
		WHERE id = $1
	`

	status, bt, bexp, bby, bat := membershipBlockColumns(m)

	result, err := ex.ExecContext(ctx, query,
		m.ID().String(),
		m.Role().String(),
		status,
		bt, bexp, bby, bat,
		m.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return shared.ErrNotFound
	}

	return nil
}

// DeleteMembership removes a membership.
func (r *SpaceRepository) DeleteMembership(ctx context.Context, id shared.ID) error {
	return r.deleteMembership(ctx, r.db, id)
}

// DeleteMembershipTx removes a membership and records the outbox entries in
// one transaction.
func (r *SpaceRepository) DeleteMembershipTx(ctx context.Context, id shared.ID, entries ...*notification.Outbox) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := r.deleteMembership(ctx, tx, id); err != nil {
			return err
		}
		return insertOutboxEntries(ctx, tx, entries)
	})
}

func (r *SpaceRepository) deleteMembership(ctx context.Context, ex executor, id shared.ID) error {
	result, err := ex.ExecContext(ctx, `DELETE FROM space_members WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return shared.ErrNotFound
	}

	return nil
}

// ListMembersBySpace returns a page of memberships in a space.
func (r *SpaceRepository) ListMembersBySpace(ctx context.Context, spaceID shared.ID, p pagination.Pagination) ([]*space.Membership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM space_members WHERE space_id = $1
		ORDER BY joined_at LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, spaceID.String(), p.Limit(), p.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*space.Membership
	for rows.Next() {
		m, err := scanMembershipRow(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// ListSpacesByUser returns all spaces the user belongs to with their standing.
func (r *SpaceRepository) ListSpacesByUser(ctx context.Context, userID shared.ID) ([]*space.SpaceWithRole, error) {
	query := `
		SELECT s.id, s.name, s.slug, s.description, s.visibility, s.auto_join, s.allow_member_posts,
			s.requires_payment, s.subscription_tier_id, s.created_by, s.created_at, s.updated_at,
			m.role, m.status, m.joined_at
		FROM space_members m
		JOIN spaces s ON s.id = m.space_id
		WHERE m.user_id = $1
		ORDER BY m.joined_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list spaces by user: %w", err)
	}
	defer rows.Close()

	var result []*space.SpaceWithRole
	for rows.Next() {
		var (
			idStr, name, slug, visibilityStr, createdByStr string
			description, tierIDStr                         sql.NullString
			autoJoin, allowPosts, requiresPayment          bool
			createdAt, updatedAt                           time.Time
			roleStr, statusStr                             string
			joinedAt                                       time.Time
		)

		err := rows.Scan(&idStr, &name, &slug, &description, &visibilityStr, &autoJoin, &allowPosts,
			&requiresPayment, &tierIDStr, &createdByStr, &createdAt, &updatedAt,
			&roleStr, &statusStr, &joinedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan space with role: %w", err)
		}

		id, _ := shared.IDFromString(idStr)
		createdBy, _ := shared.IDFromString(createdByStr)
		visibility, _ := space.ParseVisibility(visibilityStr)
		role, _ := space.ParseRole(roleStr)

		result = append(result, &space.SpaceWithRole{
			Space: space.ReconstituteSpace(
				id, name, slug, description.String, visibility,
				autoJoin, allowPosts, requiresPayment,
				parseNullID(tierIDStr), createdBy, createdAt, updatedAt,
			),
			Role:     role,
			Status:   space.Status(statusStr),
			JoinedAt: joinedAt,
		})
	}

	return result, rows.Err()
}

// SweepExpiredBlocks lifts blocks whose expiry has passed and returns how many
// memberships were flipped back to active.
func (r *SpaceRepository) SweepExpiredBlocks(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE space_members
		SET status = 'active', block_type = NULL, block_expires_at = NULL,
			blocked_by = NULL, blocked_at = NULL, updated_at = $1
		WHERE status = 'blocked' AND block_expires_at IS NOT NULL AND block_expires_at <= $1
	`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired blocks: %w", err)
	}

	return result.RowsAffected()
}

// =============================================================================
// Join request operations
// =============================================================================

const joinRequestColumns = `id, user_id, space_id, message, status, created_at, decided_at, decided_by`

// CreateJoinRequest persists a pending join request. A violation of the
// partial unique index on pending requests maps to ErrDuplicateRequest.
func (r *SpaceRepository) CreateJoinRequest(ctx context.Context, jr *space.JoinRequest, entries ...*notification.Outbox) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO join_requests (id, user_id, space_id, message, status, created_at, decided_at, decided_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`

		_, err := tx.ExecContext(ctx, query,
			jr.ID().String(),
			jr.UserID().String(),
			jr.SpaceID().String(),
			nullString(jr.Message()),
			jr.Status().String(),
			jr.CreatedAt(),
			nullTime(jr.DecidedAt()),
			nullID(jr.DecidedBy()),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return space.ErrDuplicateRequest
			}
			return fmt.Errorf("failed to create join request: %w", err)
		}

		return insertOutboxEntries(ctx, tx, entries)
	})
}

// GetJoinRequest retrieves a join request by ID.
func (r *SpaceRepository) GetJoinRequest(ctx context.Context, id shared.ID) (*space.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + ` FROM join_requests WHERE id = $1`
	return scanJoinRequest(r.db.QueryRowContext(ctx, query, id.String()))
}

// GetPendingJoinRequest retrieves the pending request for a user and space.
func (r *SpaceRepository) GetPendingJoinRequest(ctx context.Context, userID, spaceID shared.ID) (*space.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + `
		FROM join_requests WHERE user_id = $1 AND space_id = $2 AND status = 'pending'`
	return scanJoinRequest(r.db.QueryRowContext(ctx, query, userID.String(), spaceID.String()))
}

// UpdateJoinRequest persists a state transition and the outbox entries. The
// row is guarded on status=pending so a concurrent decision wins cleanly; the
// loser gets ErrInvalidState.
func (r *SpaceRepository) UpdateJoinRequest(ctx context.Context, jr *space.JoinRequest, entries ...*notification.Outbox) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		applied, err := r.decideJoinRequest(ctx, tx, jr)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return insertOutboxEntries(ctx, tx, entries)
	})
}

// decideJoinRequest applies a terminal status behind a status=pending guard.
// applied is false when the guard matched no rows but the request already
// carries the wanted terminal state.
func (r *SpaceRepository) decideJoinRequest(ctx context.Context, tx *sql.Tx, jr *space.JoinRequest) (bool, error) {
	query := `
		UPDATE join_requests
		SET status = $2, decided_at = $3, decided_by = $4
		WHERE id = $1 AND status = 'pending'
	`

	result, err := tx.ExecContext(ctx, query,
		jr.ID().String(),
		jr.Status().String(),
		nullTime(jr.DecidedAt()),
		nullID(jr.DecidedBy()),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update join request: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, r.classifyStaleRequest(ctx, tx, jr.ID(), jr.Status())
	}

	return true, nil
}

// classifyStaleRequest resolves a guarded update that matched no rows. The
// request either no longer exists or already reached a terminal state.
func (r *SpaceRepository) classifyStaleRequest(ctx context.Context, tx *sql.Tx, id shared.ID, wanted space.RequestStatus) error {
	var current string
	err := tx.QueryRowContext(ctx,
		`SELECT status FROM join_requests WHERE id = $1`, id.String()).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return shared.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read join request status: %w", err)
	}

	// A repeated approval is idempotent; anything else is a conflict.
	if space.RequestStatus(current) == wanted && wanted == space.RequestApproved {
		return nil
	}
	return fmt.Errorf("request is already %s: %w", current, space.ErrInvalidState)
}

// ListPendingJoinRequests returns pending requests for a space, oldest first.
func (r *SpaceRepository) ListPendingJoinRequests(ctx context.Context, spaceID shared.ID) ([]*space.JoinRequest, error) {
	query := `SELECT ` + joinRequestColumns + `
		FROM join_requests WHERE space_id = $1 AND status = 'pending'
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, spaceID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list pending join requests: %w", err)
	}
	defer rows.Close()

	var requests []*space.JoinRequest
	for rows.Next() {
		jr, err := scanJoinRequestRow(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, jr)
	}

	return requests, rows.Err()
}

// ApproveJoinRequestTx atomically marks the request approved and materializes
// the membership. Approving a request whose user already joined by another
// path keeps the existing membership untouched. A retried approval returns
// applied=false and writes nothing, so the join_approved event fires once.
func (r *SpaceRepository) ApproveJoinRequestTx(ctx context.Context, jr *space.JoinRequest, m *space.Membership, entries ...*notification.Outbox) (bool, error) {
	var applied bool
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		applied, err = r.decideJoinRequest(ctx, tx, jr)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		insertQuery := `
			INSERT INTO space_members (id, user_id, space_id, role, status, block_type, block_expires_at,
				blocked_by, blocked_at, joined_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (user_id, space_id) DO NOTHING
		`

		status, bt, bexp, bby, bat := membershipBlockColumns(m)

		if _, err = tx.ExecContext(ctx, insertQuery,
			m.ID().String(),
			m.UserID().String(),
			m.SpaceID().String(),
			m.Role().String(),
			status,
			bt, bexp, bby, bat,
			m.JoinedAt(),
			m.UpdatedAt(),
		); err != nil {
			return fmt.Errorf("failed to create membership: %w", err)
		}

		return insertOutboxEntries(ctx, tx, entries)
	})
	return applied, err
}

// =============================================================================
// Invite operations
// =============================================================================

const inviteColumns = `code, space_id, max_uses, uses_count, expires_at, active, created_by, created_at`

// CreateInvite persists a new invite.
func (r *SpaceRepository) CreateInvite(ctx context.Context, inv *space.Invite) error {
	query := `
		INSERT INTO invites (code, space_id, max_uses, uses_count, expires_at, active, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		inv.Code(),
		inv.SpaceID().String(),
		nullInt(inv.MaxUses()),
		inv.UsesCount(),
		nullTime(inv.ExpiresAt()),
		inv.Active(),
		inv.CreatedBy().String(),
		inv.CreatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: invite code collision", shared.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create invite: %w", err)
	}

	return nil
}

// GetInviteByCode retrieves an invite by code.
func (r *SpaceRepository) GetInviteByCode(ctx context.Context, code string) (*space.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM invites WHERE code = $1`
	return scanInvite(r.db.QueryRowContext(ctx, query, code))
}

// ListInvitesBySpace returns all invites for a space, newest first.
func (r *SpaceRepository) ListInvitesBySpace(ctx context.Context, spaceID shared.ID) ([]*space.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM invites WHERE space_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, spaceID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var invites []*space.Invite
	for rows.Next() {
		inv, err := scanInviteRow(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}

	return invites, rows.Err()
}

// DeactivateInvite switches an invite off. Idempotent.
func (r *SpaceRepository) DeactivateInvite(ctx context.Context, code string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE invites SET active = FALSE WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("failed to deactivate invite: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return shared.ErrNotFound
	}

	return nil
}

// DeactivateExpiredInvites switches off invites whose expiry has passed.
func (r *SpaceRepository) DeactivateExpiredInvites(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE invites SET active = FALSE WHERE active AND expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired invites: %w", err)
	}

	return result.RowsAffected()
}

// RedeemInviteTx atomically consumes one unit of invite capacity and creates
// the membership. The capacity check and the increment are a single guarded
// UPDATE, so two concurrent redemptions can never both take the last use.
func (r *SpaceRepository) RedeemInviteTx(ctx context.Context, code string, m *space.Membership, entries ...*notification.Outbox) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		redeemQuery := `
			UPDATE invites
			SET uses_count = uses_count + 1
			WHERE code = $1
				AND active
				AND (expires_at IS NULL OR expires_at > $2)
				AND (max_uses IS NULL OR uses_count < max_uses)
		`

		now := time.Now().UTC()
		result, err := tx.ExecContext(ctx, redeemQuery, code, now)
		if err != nil {
			return fmt.Errorf("failed to redeem invite: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return r.classifyUnredeemable(ctx, tx, code, now)
		}

		if err := r.insertMembership(ctx, tx, m); err != nil {
			return err
		}

		return insertOutboxEntries(ctx, tx, entries)
	})
}

// classifyUnredeemable resolves a redemption whose guarded update matched no
// rows into the precise failure.
func (r *SpaceRepository) classifyUnredeemable(ctx context.Context, tx *sql.Tx, code string, now time.Time) error {
	inv, err := scanInvite(tx.QueryRowContext(ctx,
		`SELECT `+inviteColumns+` FROM invites WHERE code = $1`, code))
	if err != nil {
		return err
	}

	if reason := inv.RedeemableAt(now); reason != nil {
		return reason
	}
	// The invite looked redeemable on re-read; a concurrent transaction must
	// have consumed the last use between our update and this read.
	return space.ErrInviteExhausted
}

// =============================================================================
// Scan helpers
// =============================================================================

func scanSpace(row *sql.Row) (*space.Space, error) {
	var (
		idStr, name, slug, visibilityStr, createdByStr string
		description, tierIDStr                         sql.NullString
		autoJoin, allowPosts, requiresPayment          bool
		createdAt, updatedAt                           time.Time
	)

	err := row.Scan(&idStr, &name, &slug, &description, &visibilityStr, &autoJoin, &allowPosts,
		&requiresPayment, &tierIDStr, &createdByStr, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan space: %w", err)
	}

	id, _ := shared.IDFromString(idStr)
	createdBy, _ := shared.IDFromString(createdByStr)
	visibility, _ := space.ParseVisibility(visibilityStr)

	return space.ReconstituteSpace(
		id, name, slug, description.String, visibility,
		autoJoin, allowPosts, requiresPayment,
		parseNullID(tierIDStr), createdBy, createdAt, updatedAt,
	), nil
}

func scanSpaceRow(rows *sql.Rows) (*space.Space, error) {
	var (
		idStr, name, slug, visibilityStr, createdByStr string
		description, tierIDStr                         sql.NullString
		autoJoin, allowPosts, requiresPayment          bool
		createdAt, updatedAt                           time.Time
	)

	err := rows.Scan(&idStr, &name, &slug, &description, &visibilityStr, &autoJoin, &allowPosts,
		&requiresPayment, &tierIDStr, &createdByStr, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan space: %w", err)
	}

	id, _ := shared.IDFromString(idStr)
	createdBy, _ := shared.IDFromString(createdByStr)
	visibility, _ := space.ParseVisibility(visibilityStr)

	return space.ReconstituteSpace(
		id, name, slug, description.String, visibility,
		autoJoin, allowPosts, requiresPayment,
		parseNullID(tierIDStr), createdBy, createdAt, updatedAt,
	), nil
}

// membershipBlockColumns flattens a membership's block state into its columns.
func membershipBlockColumns(m *space.Membership) (status string, blockType sql.NullString, expiresAt sql.NullTime, blockedBy sql.NullString, blockedAt sql.NullTime) {
	b := m.Block()
	if b == nil {
		return space.StatusActive.String(), sql.NullString{}, sql.NullTime{}, sql.NullString{}, sql.NullTime{}
	}
	return space.StatusBlocked.String(),
		nullString(b.Type().String()),
		nullTime(b.ExpiresAt()),
		nullString(b.BlockedBy().String()),
		sql.NullTime{Time: b.BlockedAt(), Valid: true}
}

func reconstituteMembershipFromColumns(
	idStr, userIDStr, spaceIDStr, roleStr, statusStr string,
	blockTypeStr sql.NullString,
	blockExpiresAt sql.NullTime,
	blockedByStr sql.NullString,
	blockedAt sql.NullTime,
	joinedAt, updatedAt time.Time,
) *space.Membership {
	id, _ := shared.IDFromString(idStr)
	userID, _ := shared.IDFromString(userIDStr)
	spaceID, _ := shared.IDFromString(spaceIDStr)
	role, _ := space.ParseRole(roleStr)

	var block *space.Block
	if statusStr == space.StatusBlocked.String() && blockTypeStr.Valid {
		bt, _ := space.ParseBlockType(blockTypeStr.String)
		var blockedBy shared.ID
		if blockedByStr.Valid {
			blockedBy, _ = shared.IDFromString(blockedByStr.String)
		}
		block = space.ReconstituteBlock(bt, nullTimeValue(blockExpiresAt), blockedBy, blockedAt.Time)
	}

	return space.ReconstituteMembership(id, userID, spaceID, role, block, joinedAt, updatedAt)
}

func scanMembership(row *sql.Row) (*space.Membership, error) {
	var (
		idStr, userIDStr, spaceIDStr, roleStr, statusStr string
		blockTypeStr, blockedByStr                       sql.NullString
		blockExpiresAt, blockedAt                        sql.NullTime
		joinedAt, updatedAt                              time.Time
	)

	err := row.Scan(&idStr, &userIDStr, &spaceIDStr, &roleStr, &statusStr,
		&blockTypeStr, &blockExpiresAt, &blockedByStr, &blockedAt, &joinedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}

	return reconstituteMembershipFromColumns(
		idStr, userIDStr, spaceIDStr, roleStr, statusStr,
		blockTypeStr, blockExpiresAt, blockedByStr, blockedAt, joinedAt, updatedAt,
	), nil
}

func scanMembershipRow(rows *sql.Rows) (*space.Membership, error) {
	var (
		idStr, userIDStr, spaceIDStr, roleStr, statusStr string
		blockTypeStr, blockedByStr                       sql.NullString
		blockExpiresAt, blockedAt                        sql.NullTime
		joinedAt, updatedAt                              time.Time
	)

	err := rows.Scan(&idStr, &userIDStr, &spaceIDStr, &roleStr, &statusStr,
		&blockTypeStr, &blockExpiresAt, &blockedByStr, &blockedAt, &joinedAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}

	return reconstituteMembershipFromColumns(
		idStr, userIDStr, spaceIDStr, roleStr, statusStr,
		blockTypeStr, blockExpiresAt, blockedByStr, blockedAt, joinedAt, updatedAt,
	), nil
}

func scanJoinRequest(row *sql.Row) (*space.JoinRequest, error) {
	var (
		idStr, userIDStr, spaceIDStr, statusStr string
		message, decidedByStr                   sql.NullString
		createdAt                               time.Time
		decidedAt                               sql.NullTime
	)

	err := row.Scan(&idStr, &userIDStr, &spaceIDStr, &message, &statusStr, &createdAt, &decidedAt, &decidedByStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan join request: %w", err)
	}

	id, _ := shared.IDFromString(idStr)
	userID, _ := shared.IDFromString(userIDStr)
	spaceID, _ := shared.IDFromString(spaceIDStr)

	return space.ReconstituteJoinRequest(
		id, userID, spaceID, message.String, space.RequestStatus(statusStr),
		createdAt, nullTimeValue(decidedAt), parseNullID(decidedByStr),
	), nil
}

func scanJoinRequestRow(rows *sql.Rows) (*space.JoinRequest, error) {
	var (
		idStr, userIDStr, spaceIDStr, statusStr string
		message, decidedByStr                   sql.NullString
		createdAt                               time.Time
		decidedAt                               sql.NullTime
	)

	err := rows.Scan(&idStr, &userIDStr, &spaceIDStr, &message, &statusStr, &createdAt, &decidedAt, &decidedByStr)
	if err != nil {
		return nil, fmt.Errorf("failed to scan join request: %w", err)
	}

	id, _ := shared.IDFromString(idStr)
	userID, _ := shared.IDFromString(userIDStr)
	spaceID, _ := shared.IDFromString(spaceIDStr)

	return space.ReconstituteJoinRequest(
		id, userID, spaceID, message.String, space.RequestStatus(statusStr),
		createdAt, nullTimeValue(decidedAt), parseNullID(decidedByStr),
	), nil
}

func scanInvite(row *sql.Row) (*space.Invite, error) {
	var (
		code, spaceIDStr, createdByStr string
		maxUses                        sql.NullInt64
		usesCount                      int
		expiresAt                      sql.NullTime
		active                         bool
		createdAt                      time.Time
	)

	err := row.Scan(&code, &spaceIDStr, &maxUses, &usesCount, &expiresAt, &active, &createdByStr, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan invite: %w", err)
	}

	spaceID, _ := shared.IDFromString(spaceIDStr)
	createdBy, _ := shared.IDFromString(createdByStr)

	return space.ReconstituteInvite(
		code, spaceID, nullIntValue(maxUses), usesCount,
		nullTimeValue(expiresAt), active, createdBy, createdAt,
	), nil
}

func scanInviteRow(rows *sql.Rows) (*space.Invite, error) {
	var (
		code, spaceIDStr, createdByStr string
		maxUses                        sql.NullInt64
		usesCount                      int
		expiresAt                      sql.NullTime
		active                         bool
		createdAt                      time.Time
	)

	err := rows.Scan(&code, &spaceIDStr, &maxUses, &usesCount, &expiresAt, &active, &createdByStr, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan invite: %w", err)
	}

	spaceID, _ := shared.IDFromString(spaceIDStr)
	createdBy, _ := shared.IDFromString(createdByStr)

	return space.ReconstituteInvite(
		code, spaceID, nullIntValue(maxUses), usesCount,
		nullTimeValue(expiresAt), active, createdBy, createdAt,
	), nil
}

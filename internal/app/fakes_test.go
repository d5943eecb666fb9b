package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gatherhq/api/pkg/domain/notification"
	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/domain/space"
	"github.com/gatherhq/api/pkg/domain/user"
	"github.com/gatherhq/api/pkg/pagination"
)

// =============================================================================
// In-Memory Fakes
// =============================================================================

// fakeSpaceRepo is an in-memory space.Repository. It is safe for concurrent
// use so redemption races can be exercised.
type fakeSpaceRepo struct {
	mu          sync.Mutex
	spaces      map[shared.ID]*space.Space
	memberships map[shared.ID]*space.Membership
	requests    map[shared.ID]*space.JoinRequest
	invites     map[string]*space.Invite
	outbox      []*notification.Outbox
}

func newFakeSpaceRepo() *fakeSpaceRepo {
	return &fakeSpaceRepo{
		spaces:      make(map[shared.ID]*space.Space),
		memberships: make(map[shared.ID]*space.Membership),
		requests:    make(map[shared.ID]*space.JoinRequest),
		invites:     make(map[string]*space.Invite),
	}
}

func (f *fakeSpaceRepo) outboxEventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, 0, len(f.outbox))
	for _, e := range f.outbox {
		types = append(types, e.EventType())
	}
	return types
}

func (f *fakeSpaceRepo) Create(_ context.Context, sp *space.Space) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.spaces {
		if existing.Slug() == sp.Slug() {
			return fmt.Errorf("%w: slug %q is taken", shared.ErrAlreadyExists, sp.Slug())
		}
	}
	f.spaces[sp.ID()] = sp
	return nil
}

func (f *fakeSpaceRepo) GetByID(_ context.Context, id shared.ID) (*space.Space, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.spaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: space", shared.ErrNotFound)
	}
	return sp, nil
}

func (f *fakeSpaceRepo) GetBySlug(_ context.Context, slug string) (*space.Space, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sp := range f.spaces {
		if sp.Slug() == slug {
			return sp, nil
		}
	}
	return nil, fmt.Errorf("%w: space", shared.ErrNotFound)
}

func (f *fakeSpaceRepo) Update(_ context.Context, sp *space.Space) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.spaces[sp.ID()]; !ok {
		return fmt.Errorf("%w: space", shared.ErrNotFound)
	}
	f.spaces[sp.ID()] = sp
	return nil
}

func (f *fakeSpaceRepo) Delete(_ context.Context, id shared.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.spaces[id]; !ok {
		return fmt.Errorf("%w: space", shared.ErrNotFound)
	}
	delete(f.spaces, id)
	return nil
}

func (f *fakeSpaceRepo) ExistsBySlug(_ context.Context, slug string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sp := range f.spaces {
		if sp.Slug() == slug {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSpaceRepo) List(_ context.Context, _ pagination.Pagination) ([]*space.Space, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*space.Space, 0, len(f.spaces))
	for _, sp := range f.spaces {
		out = append(out, sp)
	}
	return out, nil
}

func (f *fakeSpaceRepo) ListAutoJoin(_ context.Context) ([]*space.Space, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*space.Space
	for _, sp := range f.spaces {
		if sp.AutoJoin() {
			out = append(out, sp)
		}
	}
	return out, nil
}

func (f *fakeSpaceRepo) CountMembers(_ context.Context, spaceID shared.ID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.memberships {
		if m.SpaceID().Equals(spaceID) {
			n++
		}
	}
	return n, nil
}

func (f *fakeSpaceRepo) CreateMembership(_ context.Context, m *space.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertMembershipLocked(m)
}

func (f *fakeSpaceRepo) insertMembershipLocked(m *space.Membership) error {
	for _, existing := range f.memberships {
		if existing.UserID().Equals(m.UserID()) && existing.SpaceID().Equals(m.SpaceID()) {
			return space.ErrAlreadyMember
		}
	}
	f.memberships[m.ID()] = m
	return nil
}

func (f *fakeSpaceRepo) GetMembership(_ context.Context, userID, spaceID shared.ID) (*space.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.memberships {
		if m.UserID().Equals(userID) && m.SpaceID().Equals(spaceID) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: membership", shared.ErrNotFound)
}

func (f *fakeSpaceRepo) GetMembershipByID(_ context.Context, id shared.ID) (*space.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memberships[id]
	if !ok {
		return nil, fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	return m, nil
}

func (f *fakeSpaceRepo) UpdateMembership(_ context.Context, m *space.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.memberships[m.ID()]; !ok {
		return fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	f.memberships[m.ID()] = m
	return nil
}

func (f *fakeSpaceRepo) DeleteMembership(_ context.Context, id shared.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.memberships[id]; !ok {
		return fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	delete(f.memberships, id)
	return nil
}

func (f *fakeSpaceRepo) ListMembersBySpace(_ context.Context, spaceID shared.ID, _ pagination.Pagination) ([]*space.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*space.Membership
	for _, m := range f.memberships {
		if m.SpaceID().Equals(spaceID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeSpaceRepo) ListSpacesByUser(_ context.Context, userID shared.ID) ([]*space.SpaceWithRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	var out []*space.SpaceWithRole
	for _, m := range f.memberships {
		if !m.UserID().Equals(userID) {
			continue
		}
		sp, ok := f.spaces[m.SpaceID()]
		if !ok {
			continue
		}
		out = append(out, &space.SpaceWithRole{
			Space:    sp,
			Role:     m.Role(),
			Status:   m.Status(now),
			JoinedAt: m.JoinedAt(),
		})
	}
	return out, nil
}

func (f *fakeSpaceRepo) UpdateMembershipTx(ctx context.Context, m *space.Membership, entries ...*notification.Outbox) error {
	if err := f.UpdateMembership(ctx, m); err != nil {
		return err
	}
	f.appendOutbox(entries)
	return nil
}

func (f *fakeSpaceRepo) DeleteMembershipTx(ctx context.Context, id shared.ID, entries ...*notification.Outbox) error {
	if err := f.DeleteMembership(ctx, id); err != nil {
		return err
	}
	f.appendOutbox(entries)
	return nil
}

func (f *fakeSpaceRepo) CreateMembershipTx(ctx context.Context, m *space.Membership, entries ...*notification.Outbox) error {
	if err := f.CreateMembership(ctx, m); err != nil {
		return err
	}
	f.appendOutbox(entries)
	return nil
}

func (f *fakeSpaceRepo) SweepExpiredBlocks(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.memberships {
		if b := m.Block(); b != nil && b.ExpiredAt(now) {
			m.LiftBlock()
			n++
		}
	}
	return n, nil
}

func (f *fakeSpaceRepo) CreateJoinRequest(_ context.Context, r *space.JoinRequest, entries ...*notification.Outbox) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.requests {
		if existing.IsPending() && existing.UserID().Equals(r.UserID()) && existing.SpaceID().Equals(r.SpaceID()) {
			return space.ErrDuplicateRequest
		}
	}
	f.requests[r.ID()] = r
	f.appendOutboxLocked(entries)
	return nil
}

// copyJoinRequest detaches a stored request so callers mutate their own copy,
// the way rows scanned from the database would behave.
func copyJoinRequest(r *space.JoinRequest) *space.JoinRequest {
	return space.ReconstituteJoinRequest(
		r.ID(), r.UserID(), r.SpaceID(),
		r.Message(), r.Status(), r.CreatedAt(), r.DecidedAt(), r.DecidedBy(),
	)
}

func (f *fakeSpaceRepo) GetJoinRequest(_ context.Context, id shared.ID) (*space.JoinRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: join request", shared.ErrNotFound)
	}
	return copyJoinRequest(r), nil
}

func (f *fakeSpaceRepo) GetPendingJoinRequest(_ context.Context, userID, spaceID shared.ID) (*space.JoinRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.IsPending() && r.UserID().Equals(userID) && r.SpaceID().Equals(spaceID) {
			return copyJoinRequest(r), nil
		}
	}
	return nil, fmt.Errorf("%w: join request", shared.ErrNotFound)
}

func (f *fakeSpaceRepo) UpdateJoinRequest(_ context.Context, r *space.JoinRequest, entries ...*notification.Outbox) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.requests[r.ID()]; !ok {
		return fmt.Errorf("%w: join request", shared.ErrNotFound)
	}
	f.requests[r.ID()] = copyJoinRequest(r)
	f.appendOutboxLocked(entries)
	return nil
}

func (f *fakeSpaceRepo) ListPendingJoinRequests(_ context.Context, spaceID shared.ID) ([]*space.JoinRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*space.JoinRequest
	for _, r := range f.requests {
		if r.IsPending() && r.SpaceID().Equals(spaceID) {
			out = append(out, copyJoinRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().Before(out[j].CreatedAt()) })
	return out, nil
}

func (f *fakeSpaceRepo) ApproveJoinRequestTx(_ context.Context, r *space.JoinRequest, m *space.Membership, entries ...*notification.Outbox) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.requests[r.ID()]
	if !ok {
		return false, fmt.Errorf("%w: join request", shared.ErrNotFound)
	}
	switch stored.Status() {
	case space.RequestApproved:
		// Matches the guarded UPDATE: a repeat approval writes nothing.
		return false, nil
	case space.RequestRejected, space.RequestCancelled:
		return false, fmt.Errorf("%w: request already %s", space.ErrInvalidState, stored.Status())
	}
	f.requests[r.ID()] = copyJoinRequest(r)
	if err := f.insertMembershipLocked(m); err != nil && !errors.Is(err, space.ErrAlreadyMember) {
		return false, err
	}
	f.appendOutboxLocked(entries)
	return true, nil
}

func (f *fakeSpaceRepo) CreateInvite(_ context.Context, inv *space.Invite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.invites[inv.Code()]; ok {
		return fmt.Errorf("%w: invite code", shared.ErrAlreadyExists)
	}
	f.invites[inv.Code()] = inv
	return nil
}

func (f *fakeSpaceRepo) GetInviteByCode(_ context.Context, code string) (*space.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invites[code]
	if !ok {
		return nil, fmt.Errorf("%w: invite", shared.ErrNotFound)
	}
	return inv, nil
}

func (f *fakeSpaceRepo) ListInvitesBySpace(_ context.Context, spaceID shared.ID) ([]*space.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*space.Invite
	for _, inv := range f.invites {
		if inv.SpaceID().Equals(spaceID) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeSpaceRepo) DeactivateInvite(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invites[code]
	if !ok {
		return fmt.Errorf("%w: invite", shared.ErrNotFound)
	}
	inv.Deactivate()
	return nil
}

func (f *fakeSpaceRepo) DeactivateExpiredInvites(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, inv := range f.invites {
		if inv.Active() && inv.IsExpired(now) {
			inv.Deactivate()
			n++
		}
	}
	return n, nil
}

func (f *fakeSpaceRepo) RedeemInviteTx(_ context.Context, code string, m *space.Membership, entries ...*notification.Outbox) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	inv, ok := f.invites[code]
	if !ok {
		return fmt.Errorf("%w: invite", shared.ErrNotFound)
	}
	if err := inv.RedeemableAt(time.Now().UTC()); err != nil {
		return err
	}
	if err := f.insertMembershipLocked(m); err != nil {
		return err
	}

	maxUses := inv.MaxUses()
	f.invites[code] = space.ReconstituteInvite(
		inv.Code(), inv.SpaceID(), maxUses, inv.UsesCount()+1,
		inv.ExpiresAt(), inv.Active(), inv.CreatedBy(), inv.CreatedAt(),
	)
	f.appendOutboxLocked(entries)
	return nil
}

func (f *fakeSpaceRepo) appendOutbox(entries []*notification.Outbox) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendOutboxLocked(entries)
}

func (f *fakeSpaceRepo) appendOutboxLocked(entries []*notification.Outbox) {
	f.outbox = append(f.outbox, entries...)
}

// fakeUserRepo is an in-memory user.Repository.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[shared.ID]*user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[shared.ID]*user.User)}
}

func (f *fakeUserRepo) addUser(u *user.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID()] = u
}

func (f *fakeUserRepo) Create(_ context.Context, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email() == u.Email() {
			return fmt.Errorf("%w: email %q is taken", shared.ErrAlreadyExists, u.Email())
		}
	}
	f.users[u.ID()] = u
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id shared.ID) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user", shared.ErrNotFound)
	}
	return u, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email() == email {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: user", shared.ErrNotFound)
}

func (f *fakeUserRepo) Update(_ context.Context, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID()]; !ok {
		return fmt.Errorf("%w: user", shared.ErrNotFound)
	}
	f.users[u.ID()] = u
	return nil
}

func (f *fakeUserRepo) IsPlatformAdmin(_ context.Context, id shared.ID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return false, fmt.Errorf("%w: user", shared.ErrNotFound)
	}
	return u.IsPlatformAdmin(), nil
}

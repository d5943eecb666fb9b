package space

import (
	"fmt"
	"regexp"
	"time"

	"github.com/gatherhq/api/pkg/domain/shared"
)

// slugPattern validates slugs: lowercase alphanumeric segments joined by hyphens.
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Space represents a membership-gated content container.
type Space struct {
	id                 shared.ID
	name               string
	slug               string
	description        string
	visibility         Visibility
	autoJoin           bool
	allowMemberPosts   bool
	requiresPayment    bool
	subscriptionTierID *shared.ID
	createdBy          shared.ID
	createdAt          time.Time
	updatedAt          time.Time
}

// NewSpace creates a new Space.
func NewSpace(name, slug string, visibility Visibility, createdBy shared.ID) (*Space, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("%w: invalid slug format", shared.ErrValidation)
	}
	if !visibility.IsValid() {
		return nil, fmt.Errorf("%w: invalid visibility", shared.ErrValidation)
	}
	if createdBy.IsZero() {
		return nil, fmt.Errorf("%w: createdBy is required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Space{
		id:               shared.NewID(),
		name:             name,
		slug:             slug,
		visibility:       visibility,
		allowMemberPosts: true,
		createdBy:        createdBy,
		createdAt:        now,
		updatedAt:        now,
	}, nil
}

// ReconstituteSpace recreates a Space from persistence.
func ReconstituteSpace(
	id shared.ID,
	name, slug, description string,
	visibility Visibility,
	autoJoin, allowMemberPosts, requiresPayment bool,
	subscriptionTierID *shared.ID,
	createdBy shared.ID,
	createdAt, updatedAt time.Time,
) *Space {
	return &Space{
		id:                 id,
		name:               name,
		slug:               slug,
		description:        description,
		visibility:         visibility,
		autoJoin:           autoJoin,
		allowMemberPosts:   allowMemberPosts,
		requiresPayment:    requiresPayment,
		subscriptionTierID: subscriptionTierID,
		createdBy:          createdBy,
		createdAt:          createdAt,
		updatedAt:          updatedAt,
	}
}

// ID returns the space ID.
func (s *Space) ID() shared.ID { return s.id }

// Name returns the space name.
func (s *Space) Name() string { return s.name }

// Slug returns the URL-friendly identifier.
func (s *Space) Slug() string { return s.slug }

// Description returns the space description.
func (s *Space) Description() string { return s.description }

// Visibility returns the space's visibility tier.
func (s *Space) Visibility() Visibility { return s.visibility }

// AutoJoin reports whether new platform users are joined automatically.
func (s *Space) AutoJoin() bool { return s.autoJoin }

// AllowMemberPosts reports whether plain members may create posts.
func (s *Space) AllowMemberPosts() bool { return s.allowMemberPosts }

// RequiresPayment reports whether membership is gated on a subscription.
func (s *Space) RequiresPayment() bool { return s.requiresPayment }

// SubscriptionTierID returns the required subscription tier, if any.
func (s *Space) SubscriptionTierID() *shared.ID { return s.subscriptionTierID }

// CreatedBy returns the user who created the space.
func (s *Space) CreatedBy() shared.ID { return s.createdBy }

// CreatedAt returns when the space was created.
func (s *Space) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns when the space was last updated.
func (s *Space) UpdatedAt() time.Time { return s.updatedAt }

// UpdateName updates the space name.
func (s *Space) UpdateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	s.name = name
	s.touch()
	return nil
}

// UpdateSlug updates the URL-friendly identifier.
func (s *Space) UpdateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: invalid slug format", shared.ErrValidation)
	}
	s.slug = slug
	s.touch()
	return nil
}

// UpdateDescription updates the space description.
func (s *Space) UpdateDescription(description string) {
	s.description = description
	s.touch()
}

// UpdateVisibility changes the visibility tier. Existing memberships are never
// revoked by a visibility change; members keep their standing when a public
// space turns private or secret.
func (s *Space) UpdateVisibility(v Visibility) error {
	if !v.IsValid() {
		return fmt.Errorf("%w: invalid visibility", shared.ErrValidation)
	}
	s.visibility = v
	s.touch()
	return nil
}

// SetAutoJoin toggles automatic membership for newly registered users.
func (s *Space) SetAutoJoin(autoJoin bool) {
	s.autoJoin = autoJoin
	s.touch()
}

// SetAllowMemberPosts toggles whether plain members may create posts.
func (s *Space) SetAllowMemberPosts(allow bool) {
	s.allowMemberPosts = allow
	s.touch()
}

// SetPaymentGate configures the payment requirement. Enforcement of the
// payment itself belongs to the billing collaborator; this engine only records
// the gate.
func (s *Space) SetPaymentGate(required bool, tierID *shared.ID) {
	s.requiresPayment = required
	s.subscriptionTierID = tierID
	s.touch()
}

func (s *Space) touch() {
	s.updatedAt = time.Now().UTC()
}

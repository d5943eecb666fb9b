package space

// Visibility represents a space's visibility tier.
type Visibility string

const (
	// VisibilityPublic spaces are readable by anyone; joining is self-serve.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate spaces require membership; non-members may request to join.
	VisibilityPrivate Visibility = "private"
	// VisibilitySecret spaces require membership and are joinable by invite only.
	VisibilitySecret Visibility = "secret"
)

// IsValid checks if the visibility is valid.
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilitySecret:
		return true
	}
	return false
}

// String returns the string representation of the visibility.
func (v Visibility) String() string {
	return string(v)
}

// RequiresMembership reports whether any access to the space requires a membership.
func (v Visibility) RequiresMembership() bool {
	return v == VisibilityPrivate || v == VisibilitySecret
}

// AllowsJoinRequests reports whether non-members may file a join request.
// Public spaces are joined directly instead.
func (v Visibility) AllowsJoinRequests() bool {
	return v == VisibilityPrivate || v == VisibilitySecret
}

// AcceptsDirectJoin reports whether a user can join without adjudication.
func (v Visibility) AcceptsDirectJoin() bool {
	return v == VisibilityPublic
}

// ParseVisibility parses a string to a Visibility.
func ParseVisibility(s string) (Visibility, bool) {
	v := Visibility(s)
	return v, v.IsValid()
}

package space

import "time"

// Action is a gated operation on space content.
type Action string

const (
	ActionView    Action = "view"
	ActionPost    Action = "post"
	ActionComment Action = "comment"
	ActionReact   Action = "react"
)

// IsValid checks if the action is valid.
func (a Action) IsValid() bool {
	switch a {
	case ActionView, ActionPost, ActionComment, ActionReact:
		return true
	}
	return false
}

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// ParseAction parses a string to an Action.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	return a, a.IsValid()
}

// DenyReason explains a negative access decision to the caller, so content
// services can distinguish "may request to join" from "invite only" from
// "blocked".
type DenyReason string

const (
	DenyNone DenyReason = ""
	// DenyMembershipRequired: private space, no membership; the user may
	// file a join request.
	DenyMembershipRequired DenyReason = "membership_required"
	// DenyInviteRequired: secret space, no membership; no self-serve
	// request path exists.
	DenyInviteRequired DenyReason = "invite_required"
	// DenyBlocked: an unexpired block forbids the action.
	DenyBlocked DenyReason = "blocked"
	// DenyPostsDisabled: public space with member posting switched off.
	DenyPostsDisabled DenyReason = "posts_disabled"
)

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason DenyReason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Actor identifies the user asking for access. PlatformAdmin comes from the
// identity service and is ground truth for this evaluation only; it is never
// cached across requests.
type Actor struct {
	ID            string
	PlatformAdmin bool
}

// Decide computes whether the actor may perform the action on the space.
// membership is nil when the actor holds no membership. The function is pure:
// it reads its arguments and the clock value it is handed, and mutates
// nothing, so content services can call it on every request.
//
// Rules, in priority order: platform admins may do anything; public spaces are
// open for view/comment/react; private and secret spaces require an active
// membership; blocks restrict by type, with hard blocks removing even reads
// and expired blocks treated as lifted.
func Decide(actor Actor, sp *Space, membership *Membership, action Action, now time.Time) Decision {
	if actor.PlatformAdmin {
		return allow()
	}

	if membership != nil {
		return decideWithMembership(sp, membership, action, now)
	}

	switch sp.Visibility() {
	case VisibilityPublic:
		if action == ActionPost {
			// Posting in a public space still requires membership.
			return deny(DenyMembershipRequired)
		}
		return allow()
	case VisibilityPrivate:
		return deny(DenyMembershipRequired)
	default: // secret
		return deny(DenyInviteRequired)
	}
}

func decideWithMembership(sp *Space, m *Membership, action Action, now time.Time) Decision {
	if action == ActionView {
		if !m.CanView(now) {
			return deny(DenyBlocked)
		}
		return allow()
	}

	// Writes: post, comment, react.
	if !m.CanWrite(now) {
		return deny(DenyBlocked)
	}
	if action == ActionPost && !sp.AllowMemberPosts() {
		return deny(DenyPostsDisabled)
	}
	return allow()
}

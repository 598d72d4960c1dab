package auth

import "context"

// Roles. Admin implies staff.
const (
	RoleMember = "member"
	RoleParent = "parent"
	RoleStaff  = "staff"
	RoleAdmin  = "admin"
)

type contextKey struct{}

// Session identifies the caller of a request.
type Session struct {
	UserID string
	Role   string

	// Children holds the member ids linked to a parent session. It is filled
	// per request from the link store, never from the token.
	Children []string
}

// IsStaff reports whether the session may act as staff.
func (s Session) IsStaff() bool {
	return s.Role == RoleStaff || s.Role == RoleAdmin
}

func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// Audiences an announcement can target.
const (
	AudienceMember = "member"
	AudienceParent = "parent"
	AudienceStaff  = "staff"
)

// Audience returns the announcement audience the session belongs to.
func (s Session) Audience() string {
	switch {
	case s.IsStaff():
		return AudienceStaff
	case s.Role == RoleParent:
		return AudienceParent
	default:
		return AudienceMember
	}
}

// IsParentOf reports whether memberID is linked to this parent session.
func (s Session) IsParentOf(memberID string) bool {
	if s.Role != RoleParent || memberID == "" {
		return false
	}
	for _, id := range s.Children {
		if id == memberID {
			return true
		}
	}
	return false
}

// CanAccessMember reports whether the session may read memberID's records.
// Staff may read any member, parents their linked children, and everyone
// else only their own.
func (s Session) CanAccessMember(memberID string) bool {
	return s.IsStaff() || (s.UserID != "" && s.UserID == memberID) || s.IsParentOf(memberID)
}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

func UserID(ctx context.Context) string {
	s, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return s.UserID
}

func IsStaff(ctx context.Context) bool {
	s, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return s.IsStaff()
}

func ValidRole(role string) bool {
	switch role {
	case RoleMember, RoleParent, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

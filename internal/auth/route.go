package auth

import "github.com/yumachin2003/shinshu-fesnav-sub000/internal/session"

// DefaultRoute returns the landing route applied after login when the
// caller supplies no completion callback. Administrators land on the
// admin dashboard, everyone else on the festival listing.
func DefaultRoute(user session.UserProfile) string {
	if user.IsAdmin {
		return "/admin/dashboard"
	}
	return "/festivals"
}

// Package policy decides who may read or change what.
//
// Every function is pure: it looks only at the Viewer it is given and the id
// of the target's owner. The Viewer is always passed explicitly; nothing here
// reads request context or global state. A denied check is just false, and
// the caller decides what the user sees.
package policy

import "github.com/sakif/admin-panel/internal/model"

// Viewer is the identity making the current request.
// The zero value is the anonymous viewer.
type Viewer struct {
	ID       string
	Username string
	Role     model.Role
}

// Anonymous returns the viewer used when no valid session is present.
func Anonymous() Viewer { return Viewer{} }

// ViewerFor builds the Viewer for an authenticated account.
func ViewerFor(a *model.Account) Viewer {
	if a == nil {
		return Anonymous()
	}
	return Viewer{ID: a.ID, Username: a.Username, Role: a.Role}
}

// Authenticated reports whether v carries an identity.
func (v Viewer) Authenticated() bool { return v.ID != "" }

func IsAdmin(v Viewer) bool {
	return v.Authenticated() && v.Role == model.RoleAdmin
}

// IsSelf reports whether the viewer is the owner identified by targetID.
// An empty id never matches, so two anonymous parties are not "self".
func IsSelf(v Viewer, targetID string) bool {
	return v.Authenticated() && targetID != "" && v.ID == targetID
}

// CanViewProfile: admins see every profile, everyone else only their own.
func CanViewProfile(v Viewer, ownerID string) bool {
	return IsAdmin(v) || IsSelf(v, ownerID)
}

// CanEditProfileField is owner-only. Admins can view a profile but not edit it.
func CanEditProfileField(v Viewer, ownerID string) bool {
	return IsSelf(v, ownerID)
}

// CanEditAccountIdentity covers username and email changes.
func CanEditAccountIdentity(v Viewer, targetID string) bool {
	return IsAdmin(v) || IsSelf(v, targetID)
}

// CanChangeRoleOrActive: admins only, and never on their own account, so the
// last admin cannot lock themselves out.
func CanChangeRoleOrActive(v Viewer, targetID string) bool {
	return IsAdmin(v) && !IsSelf(v, targetID)
}

// CanDeleteAccount follows the same rule as role/active changes.
func CanDeleteAccount(v Viewer, targetID string) bool {
	return IsAdmin(v) && !IsSelf(v, targetID)
}

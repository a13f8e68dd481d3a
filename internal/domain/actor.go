package domain

import "lawfirm-server/internal/models"

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Role   models.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// RequireOwner passes for admins and for the user that owns the resource.
func (a Actor) RequireOwner(ownerID string) error {
	if a.IsAdmin() {
		return nil
	}
	if a.UserID == "" || a.UserID != ownerID {
		return ForbiddenError{Msg: "you do not have access to this resource"}
	}
	return nil
}

package roles

import (
	"github.com/stockroom/stockroom/internal/rbac"
)

// Role is the role record managed by this package.
type Role = rbac.Role

// CreateInput describes a role to create.
type CreateInput struct {
	Name     string
	IsActive *bool
}

// UpdateInput patches a role. Nil fields are left unchanged.
type UpdateInput struct {
	Name     *string
	IsActive *bool
}

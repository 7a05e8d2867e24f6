package security

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/kondiv/shop/internal/domain"
)

// Permission represents an action permission
type Permission string

const (
	PermCreateItem  Permission = "create_item"
	PermUpdateItem  Permission = "update_item"
	PermDeleteItem  Permission = "delete_item"
	PermViewHistory Permission = "view_purchase_history"
)

// RolePermissions maps roles to their permissions. Actions open to every
// authenticated user, such as purchasing, are not listed.
var RolePermissions = map[domain.Role][]Permission{
	domain.RoleSeller: {
		PermCreateItem,
		PermUpdateItem,
		PermDeleteItem,
	},
	domain.RoleBuyer: {
		PermViewHistory,
	},
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role domain.Role, permission Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// ValidatePermission returns a forbidden error unless role has permission
func (as *AuthorizationService) ValidatePermission(role domain.Role, permission Permission) error {
	if !as.HasPermission(role, permission) {
		as.logger.Warn("permission denied",
			slog.String("role", role.String()),
			slog.String("permission", string(permission)),
		)
		return domain.Forbidden("Insufficient permissions")
	}
	return nil
}

// ValidateOwnership returns a forbidden error unless userID owns the resource
func (as *AuthorizationService) ValidateOwnership(userID, ownerID uuid.UUID, resource, resourceID string) error {
	if userID != ownerID {
		as.logger.Warn("resource access denied",
			slog.String("user_id", userID.String()),
			slog.String("resource", resource),
			slog.String("resource_id", resourceID),
		)
		return domain.Forbidden("You do not own this " + resource)
	}
	return nil
}

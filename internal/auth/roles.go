package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ephc-connect/attendance-service/internal/domain"
)

// RequireRole ensures the principal has one of the allowed roles. With no
// roles listed any authenticated staff member passes.
func RequireRole(allowed ...domain.StaffRole) fiber.Handler {
	allowedSet := make(map[domain.StaffRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Staff == nil {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}

// RequireSupervisor limits a route to supervisory roles that manage
// alerts and facility reports.
func RequireSupervisor() fiber.Handler {
	return RequireRole(domain.StaffRoleCenterIncharge, domain.StaffRoleDDHS)
}

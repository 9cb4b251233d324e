package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/ephc-connect/attendance-service/internal/api/dto"
	"github.com/ephc-connect/attendance-service/internal/auth"
	"github.com/ephc-connect/attendance-service/internal/repository"
	"github.com/ephc-connect/attendance-service/pkg/util"
)

// AuthHandler issues bearer tokens for staff members.
type AuthHandler struct {
	tokens *auth.TokenManager
	staff  repository.StaffRepository
}

// NewAuthHandler constructs handler.
func NewAuthHandler(tokens *auth.TokenManager, staff repository.StaffRepository) *AuthHandler {
	return &AuthHandler{tokens: tokens, staff: staff}
}

// Login handles POST /auth/login. Field staff authenticate with their
// manual PIN; the same hash backs the MANUAL verification modality.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if req.StaffID == "" || req.PIN == "" {
		return util.NewValidationError("staff_id and pin required", nil)
	}

	staff, err := h.staff.GetByID(c.Context(), req.StaffID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return util.NewUnauthorized("invalid credentials")
		}
		return err
	}
	if !staff.IsActive() || staff.ManualPINHash == "" {
		return util.NewUnauthorized("invalid credentials")
	}
	if err := auth.ComparePIN(staff.ManualPINHash, req.PIN); err != nil {
		return util.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := h.tokens.GenerateToken(staff)
	if err != nil {
		return util.NewInternalError(err)
	}

	return c.JSON(fiber.Map{"data": dto.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		StaffID:   staff.ID,
		Name:      staff.Name,
		Role:      string(staff.Role),
	}})
}

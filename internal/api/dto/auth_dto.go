package dto

import "time"

// LoginRequest authenticates a staff member with their manual PIN.
type LoginRequest struct {
	StaffID string `json:"staff_id"`
	PIN     string `json:"pin"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	StaffID   string    `json:"staff_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
}

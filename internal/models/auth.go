package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating an administrator.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the issued access token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        Identity  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Identity is the acting administrator, passed explicitly to operations that record who acted.
type Identity struct {
	UserID   string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Identity extracts the acting administrator from the token claims.
func (c *JWTClaims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Email, FullName: c.FullName, Role: c.Role}
}

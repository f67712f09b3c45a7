package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

// AccessTokenPayload is what the identity service knows when it mints a token.
type AccessTokenPayload struct {
	JTI            string
	UserID         uuid.UUID
	OrganizationID *uuid.UUID
	Role           enums.MemberRole
}

func (p AccessTokenPayload) validate() error {
	if p.UserID == uuid.Nil {
		return errors.New("user id is required")
	}
	if !p.Role.IsValid() {
		return fmt.Errorf("invalid member role %q", p.Role)
	}
	return nil
}

// AccessTokenClaims is the verified body of a bearer token.
type AccessTokenClaims struct {
	UserID         uuid.UUID        `json:"user_id"`
	OrganizationID *uuid.UUID       `json:"organization_id,omitempty"`
	Role           enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims checks in jwt.Parser.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("token subject missing")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid member role %q", c.Role)
	}
	return nil
}

package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-access-api/internal/utils"
)

// Locals keys populated by JWTProtected.
const (
	LocalUserID   = "user_id"
	LocalUserRole = "user_role"
)

// StaffClaims are the claims carried by staff access tokens.
type StaffClaims struct {
	Role   string   `json:"role,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	UserID any      `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTProtected returns a middleware that validates HMAC-signed bearer tokens.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(),
		jwt.SigningMethodHS384.Alg(),
		jwt.SigningMethodHS512.Alg(),
	}))
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}

	return func(c *fiber.Ctx) error {
		authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "bearer "
		if len(authorization) <= len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims := &StaffClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, keyFunc)
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		if userID, ok := claims.userID(); ok {
			c.Locals(LocalUserID, userID)
		}
		if role := claims.role(); role != "" {
			c.Locals(LocalUserRole, role)
		}

		return c.Next()
	}
}

func (c *StaffClaims) userID() (uint, bool) {
	if id, err := normalizeUserID(c.Subject); err == nil {
		return id, true
	}
	if c.UserID != nil {
		if id, err := normalizeUserID(c.UserID); err == nil {
			return id, true
		}
	}
	return 0, false
}

func (c *StaffClaims) role() string {
	if role := strings.ToLower(strings.TrimSpace(c.Role)); role != "" {
		return role
	}
	for _, candidate := range c.Roles {
		if role := strings.ToLower(strings.TrimSpace(candidate)); role != "" {
			return role
		}
	}
	return ""
}

func normalizeUserID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, err
		}
		return uint(parsed), nil
	default:
		return 0, fmt.Errorf("unsupported subject type %T", value)
	}
}

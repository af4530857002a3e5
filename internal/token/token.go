// Package token implements the Capability Token Service (§4.4): signed
// credentials that travel with every ECS call a module makes, carrying
// per-component permission levels and a superuser bit reserved for the
// built-in entity-management module.
//
// Grounded on the teacher's infrastructure/serviceauth service-to-service
// JWT pattern, adapted from RS256 service identity to HS256 capability
// claims scoped to one container's signing key.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/simfleet/simfleet/internal/ecs"
	"github.com/simfleet/simfleet/internal/simerr"
)

// Level is a PermissionLevel (§4.4).
type Level int

const (
	Private Level = iota
	Read
	Write
)

// ComponentPermission is the level a token holder has on one component,
// plus the module name that owns (declared) the component.
type ComponentPermission struct {
	Level       Level  `json:"level"`
	OwnerModule string `json:"owner_module"`
}

// Claims is the capability token's payload.
type Claims struct {
	ModuleName           string                                  `json:"module_name"`
	IsSuperuser          bool                                    `json:"is_superuser"`
	ComponentPermissions map[ecs.ComponentID]ComponentPermission `json:"component_permissions"`
	jwt.RegisteredClaims
}

// Token is an opaque signed capability credential. Value type, per §3:
// "Tokens are value types, held by per-module scoped contexts."
type Token struct {
	Raw    string
	Claims Claims
}

// Service issues and verifies capability tokens for one container. Each
// container owns its own signing key so a token from one container can
// never be replayed against another.
type Service struct {
	signingKey []byte
	ttl        time.Duration
}

// NewService creates a token service with the given HMAC signing key and
// token lifetime.
func NewService(signingKey []byte, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{signingKey: signingKey, ttl: ttl}
}

// Issue signs a new token for moduleName with the given component
// permissions. superuser tokens are reserved for the built-in
// entity-management module and permit every operation regardless of
// ComponentPermissions.
func (s *Service) Issue(moduleName string, superuser bool, perms map[ecs.ComponentID]ComponentPermission) (Token, error) {
	now := time.Now()
	claims := Claims{
		ModuleName:           moduleName,
		IsSuperuser:          superuser,
		ComponentPermissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Subject:   moduleName,
		},
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := jt.SignedString(s.signingKey)
	if err != nil {
		return Token{}, simerr.Wrap(simerr.InvalidToken, "sign capability token", err)
	}
	return Token{Raw: raw, Claims: claims}, nil
}

// Verify parses and signature-checks a raw token, per §4.4's "signature
// MUST be verified on every use".
func (s *Service) Verify(raw string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, simerr.InvalidTokenf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return Claims{}, simerr.Wrap(simerr.InvalidToken, "verify capability token", err)
	}
	if !parsed.Valid {
		return Claims{}, simerr.InvalidTokenf("capability token invalid")
	}
	return claims, nil
}

// Refresh re-issues a token for the same module with new permissions,
// preserving the old token's superuser bit regardless of what newPerms
// contains — superuser status is never granted or revoked by a
// refreshToken call.
func (s *Service) Refresh(old Token, newPerms map[ecs.ComponentID]ComponentPermission) (Token, error) {
	return s.Issue(old.Claims.ModuleName, old.Claims.IsSuperuser, newPerms)
}

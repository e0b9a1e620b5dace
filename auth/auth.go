// Package auth resolves the identity and role of a connecting client from a
// presented bearer token. Token issuance is owned by the external auth
// subsystem; this package only verifies.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/folkengine/goname"
	"github.com/gprojets/gprojets/types"
)

// roleClaimKeys is the fixed claim key set checked for the role, in
// precedence order. Matching is case-insensitive.
var roleClaimKeys = []string{"Role", "role"}

// Identity is the authenticated identity of a connection, resolved once at
// connect time.
type Identity struct {
	Subject string
	Email   string
	Nick    string
	Role    types.Role
	Guest   bool
}

// Verifier verifies a bearer token and resolves the identity it carries.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// RoleFromClaims extracts the role from a claim map. The claim keys of
// roleClaimKeys are matched case-insensitively in precedence order; a
// missing or empty claim resolves to RoleUnknown. This is the single place
// where the role claim spelling is interpreted.
func RoleFromClaims(claims map[string]interface{}) types.Role {
	for _, want := range roleClaimKeys {
		for key, val := range claims {
			if !strings.EqualFold(key, want) {
				continue
			}
			if s, ok := val.(string); ok && strings.TrimSpace(s) != "" {
				return types.ParseRole(s)
			}
		}
	}
	return types.RoleUnknown
}

// stringClaim returns the first non-empty string value among the given
// claim keys, matched case-insensitively.
func stringClaim(claims map[string]interface{}, keys ...string) string {
	for _, want := range keys {
		for key, val := range claims {
			if !strings.EqualFold(key, want) {
				continue
			}
			if s, ok := val.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// identityFromClaims builds an Identity from a verified claim map.
func identityFromClaims(claims map[string]interface{}) *Identity {
	email := stringClaim(claims, "email")
	nick := stringClaim(claims, "nick", "name", "preferred_username")
	if nick == "" {
		nick = email
	}
	return &Identity{
		Subject: stringClaim(claims, "sub"),
		Email:   email,
		Nick:    nick,
		Role:    RoleFromClaims(claims),
	}
}

// Guest returns the identity used for connections without a verifiable
// token. Guests may connect and receive chat broadcasts but belong to no
// group.
func Guest() *Identity {
	nick := goname.New(goname.FantasyMap).FirstLast() + " (guest)"
	return &Identity{
		Nick:  nick,
		Email: nick,
		Role:  types.RoleUnknown,
		Guest: true,
	}
}

// TokenFromRequest extracts the bearer token from the Authorization header
// or, failing that, from the access_token query parameter. Browser-native
// streaming clients cannot always set custom headers, so both are accepted.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("access_token")
}

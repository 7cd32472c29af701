package auth

import "strings"

// HeaderAuthorization carries bearer tokens.
const HeaderAuthorization = "Authorization"

// PrincipalOIDCPrefix prefixes the token subject in the principal of callers
// authorized by a bearer token.
const PrincipalOIDCPrefix = "oidc:"

// ExtractBearerToken returns the token of an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func ExtractBearerToken(headers map[string]string) (string, bool) {
	v, ok := lookupHeader(headers, HeaderAuthorization)
	if !ok {
		return "", false
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(v), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Package auth guards the upload API with a shared API key and extracts
// bearer tokens for the gateway authorizer.
package auth

import (
	"context"
	"crypto/subtle"
	"strings"
)

// HeaderAPIKey carries the caller's API key.
const HeaderAPIKey = "X-API-Key"

// PrincipalAPIKey is the principal recorded for callers that presented a valid key.
const PrincipalAPIKey = "api-key"

// ValidAPIKey reports whether got matches expected. An empty expected key
// matches nothing.
func ValidAPIKey(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// ExtractAPIKey finds the API key in a header map whose key casing is not
// normalized, as delivered by API Gateway.
func ExtractAPIKey(headers map[string]string) (string, bool) {
	return lookupHeader(headers, HeaderAPIKey)
}

func lookupHeader(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal records who was authorized for the request.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// GetPrincipal retrieves the principal stored by WithPrincipal.
func GetPrincipal(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(principalKey).(string)
	return val, ok && val != ""
}

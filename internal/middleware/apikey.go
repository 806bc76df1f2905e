package middleware

import (
	"net/http"
	"strings"
)

// EventToken returns the caller's event token. The api-key header wins over an
// Authorization bearer token when both are sent.
func EventToken(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get("api-key")); apiKey != "" {
		return apiKey
	}
	return extractTokenFromHeader(r)
}

func extractTokenFromHeader(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

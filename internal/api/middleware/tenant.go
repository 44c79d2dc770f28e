package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// OrganizationKey is the context key for the resolved organization ID.
const OrganizationKey contextKey = "organization_id"

// DefaultOrganization is used when a request names no organization.
const DefaultOrganization = "default"

// OrganizationExtractor resolves the organization a request acts on.
// It checks the X-Organization-Id header, then the org query parameter,
// and falls back to DefaultOrganization.
func OrganizationExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org := strings.TrimSpace(r.Header.Get("X-Organization-Id"))
		if org == "" {
			org = strings.TrimSpace(r.URL.Query().Get("org"))
		}
		if org == "" {
			org = DefaultOrganization
		}

		ctx := context.WithValue(r.Context(), OrganizationKey, org)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetOrganization retrieves the organization ID from the request context.
func GetOrganization(ctx context.Context) string {
	if v, ok := ctx.Value(OrganizationKey).(string); ok {
		return v
	}
	return DefaultOrganization
}

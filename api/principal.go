package api

import (
	"net/http"
	"strings"

	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
	"github.com/aangel-sama/CyDRegistroHHMineria/timesheet"
)

// DefaultPrincipalHeader carries the authenticated email, set by the
// identity proxy in front of the API.
const DefaultPrincipalHeader = "X-Principal"

// PrincipalFromHeader stores the header value as the request principal.
// Requests without it pass through; the engine answers ErrUnauthenticated.
func PrincipalFromHeader(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v := strings.ToLower(strings.TrimSpace(r.Header.Get(header))); v != "" {
				r = r.WithContext(timesheet.WithPrincipal(r.Context(), generic.PrincipalID(v)))
			}
			next.ServeHTTP(w, r)
		})
	}
}

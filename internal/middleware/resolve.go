// internal/middleware/resolve.go
//
// Subsite-resolution middleware.
//
// Context
// -------
// For every request this wrapper builds the cookie-backed session store,
// derives a tenancy.Context from the engine, and computes the current
// subsite ID with the full precedence contract: forced override →
// explicit `SubsiteID` request parameter → session value → fresh host
// resolution cached into the session.  The outcome is stored in the
// request context for handlers.
//
// An AmbiguousDomainError is an operator configuration bug: it is logged
// at ERROR and surfaced as 500 rather than silently picking a match.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/canopycms/canopy/internal/session"
	"github.com/canopycms/canopy/internal/tenancy"
)

// OverrideParam is the request parameter carrying an explicit subsite ID.
// It takes precedence over session state for the current request only.
const OverrideParam = "SubsiteID"

type subsiteKey struct{}

// SubsiteID returns the subsite resolved for this request.  The second
// return is false when Resolve did not run.
func SubsiteID(ctx context.Context) (uint64, bool) {
	v, ok := ctx.Value(subsiteKey{}).(uint64)
	return v, ok
}

// ContextKey stores the per-request tenancy context for handlers that
// need ChangeSubsite or the guard.
type tcKey struct{}

// TenancyContext returns the per-request tenancy context, or nil.
func TenancyContext(ctx context.Context) *tenancy.Context {
	v, _ := ctx.Value(tcKey{}).(*tenancy.Context)
	return v
}

// Resolve wraps next with host-to-subsite resolution.
func Resolve(engine *tenancy.Engine, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.New(w, r)
		tc := engine.NewContext(sess)

		var override *uint64
		if raw := r.URL.Query().Get(OverrideParam); raw != "" {
			if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
				override = &id
			}
		}

		id, err := tc.CurrentID(r.Context(), r.Host, override)
		if err != nil {
			var ambiguous *tenancy.AmbiguousDomainError
			if errors.As(err, &ambiguous) {
				zap.S().Errorw("ambiguous subsite domain",
					"host", ambiguous.Host, "domains", ambiguous.Domains)
				http.Error(w, "subsite domain configuration error",
					http.StatusInternalServerError)
				return
			}
			zap.S().Errorw("subsite resolution failed", "host", r.Host, "err", err)
			http.Error(w, "subsite resolution failed", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), subsiteKey{}, id)
		ctx = context.WithValue(ctx, tcKey{}, tc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

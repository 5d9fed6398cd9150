package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"docflow/internal/tenant/models"
	dErrors "docflow/pkg/domain-errors"
	"docflow/pkg/platform/httputil"
	"docflow/pkg/requestcontext"
)

// TokenValidator verifies a bearer token and returns the caller's tenant context.
type TokenValidator interface {
	ValidateToken(tokenString string) (*models.TenantContext, error)
}

type contextKeyTenant struct{}

// ContextKeyTenant is exported for tests that build contexts by hand.
var ContextKeyTenant = contextKeyTenant{}

// TenantContext returns the verified caller context, or nil when the request
// was not authenticated. Handlers pass the result explicitly to services.
func TenantContext(ctx context.Context) *models.TenantContext {
	tc, _ := ctx.Value(ContextKeyTenant).(*models.TenantContext)
	return tc
}

// WithTenantContext injects a tenant context. Useful for handler tests.
func WithTenantContext(ctx context.Context, tc *models.TenantContext) context.Context {
	return context.WithValue(ctx, ContextKeyTenant, tc)
}

func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			tc, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenantContext(ctx, tc)))
		})
	}
}

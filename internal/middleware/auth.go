package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"eventproxy/internal/logger"
	apperrors "eventproxy/internal/pkg/errors"
	"eventproxy/internal/services"
)

// AuthMiddleware resolves the event token and stores the event on the request context.
func AuthMiddleware(authService services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			event, err := authService.ResolveEvent(r.Context(), EventToken(r))
			if err != nil {
				if apperrors.KindOf(err) == apperrors.KindInternal {
					logger.LogEvent(logrus.ErrorLevel, "Event lookup failed", logrus.Fields{
						"error":      err.Error(),
						"request_id": services.RequestIDFromContext(r.Context()),
					})
				}
				apperrors.WriteError(w, err)
				return
			}

			ctx := services.WithEvent(r.Context(), event)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

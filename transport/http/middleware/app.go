package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Dis3z/reserve-api/infras/otel"
	"github.com/Dis3z/reserve-api/shared/constant"
)

const (
	otelHTTPScopeName = "http"
)

type AppMiddleware interface {
	Tracing(next http.Handler) http.Handler
	Identity(next http.Handler) http.Handler
	RequestLog(next http.Handler) http.Handler
}

type appMiddleware struct {
	otel otel.Otel
}

func NewAppMiddleware(otel otel.Otel) AppMiddleware {
	return &appMiddleware{
		otel: otel,
	}
}

func (a *appMiddleware) Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		spanName := fmt.Sprintf("%s %s", request.Method, request.URL.Path)

		ctx, scope := a.otel.NewScope(request.Context(), otelHTTPScopeName, spanName)
		defer scope.End()

		scope.SetAttributes(map[string]any{
			"http.path":       request.URL.Path,
			"http.method":     request.Method,
			"http.user_agent": request.UserAgent(),
			"http.host":       request.Host,
		})

		next.ServeHTTP(writer, request.WithContext(ctx))
	})
}

// Identity lifts the caller identity the gateway resolved into the request
// context. The core trusts these headers; token verification happens
// upstream.
func (a *appMiddleware) Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ctx := request.Context()

		if userID := request.Header.Get(constant.RequestHeaderUserID); userID != constant.Empty {
			ctx = context.WithValue(ctx, constant.ContextKeyUserID, userID)
		}

		role := request.Header.Get(constant.RequestHeaderUserRole)
		if role == constant.Empty {
			role = constant.RoleGuest
		}
		ctx = context.WithValue(ctx, constant.ContextKeyUserRole, role)

		next.ServeHTTP(writer, request.WithContext(ctx))
	})
}

func (a *appMiddleware) RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		start := time.Now()

		next.ServeHTTP(writer, request)

		log.Info().
			Str("method", request.Method).
			Str("path", request.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/matheodrd/httphelper/handler"

	"github.com/ashid-platform/auth-service/internal/common"
	"github.com/ashid-platform/auth-service/internal/server/lifecycle"
	"github.com/ashid-platform/auth-service/internal/token"
)

type ctxKey int

const callerKey ctxKey = iota

// callerFrom returns the validated token identity stored by AuthMiddleware.
func callerFrom(ctx context.Context) (lifecycle.Validation, bool) {
	v, ok := ctx.Value(callerKey).(lifecycle.Validation)
	return v, ok
}

var (
	missingHeader = &errorResponse{Error: "Authorization header is missing"}
	invalidToken  = &errorResponse{Error: "invalid token"}
)

// AuthMiddleware requires a live access token in the Authorization header
// and stores the validated identity in the request context.
func (s *Server) AuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				s.encodeOrLog(r.Context(), w, missingHeader, http.StatusUnauthorized)
				return
			}

			credential := strings.TrimPrefix(authHeader, "Bearer ")
			v, err := s.tokens.Validate(r.Context(), credential)
			if err != nil {
				if errors.Is(err, common.ErrStoreUnavailable) {
					s.encodeOrLog(r.Context(), w, &errorResponse{Error: "token store unavailable"}, http.StatusServiceUnavailable)
					return
				}
				s.log.Error(r.Context(), "token validation failed", "error", err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			if !v.Valid || v.Kind != token.KindAccess {
				s.encodeOrLog(r.Context(), w, invalidToken, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, v)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) encodeOrLog(ctx context.Context, w http.ResponseWriter, v *errorResponse, status int) {
	if err := handler.Encode(v, status, w); err != nil {
		s.log.Error(ctx, "error encoding response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

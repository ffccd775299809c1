package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/matheodrd/httphelper/handler"

	"github.com/ashid-platform/auth-service/internal/audit"
	"github.com/ashid-platform/auth-service/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

// TokenEnvelope is the issued pair as returned to clients.
type TokenEnvelope struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ValidateResponse struct {
	Valid     bool   `json:"valid"`
	UserID    *int64 `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	ExpiresAt *int64 `json:"exp,omitempty"`
}

type SessionsResponse struct {
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

func (s *Server) Login() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		body, err := handler.Decode[LoginRequest](r)
		if err != nil {
			return s.badRequest(w, err)
		}

		user, pair, err := s.tokens.Login(r.Context(), body.Username, body.Password)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrUnauthenticated):
				s.recordAudit(r, nil, audit.ActionLogin, audit.StatusFailure, "invalid credentials for "+body.Username)
				return handler.Encode(errorResponse{Error: "invalid credentials"}, http.StatusUnauthorized, w)
			case errors.Is(err, common.ErrAccountInactive):
				s.recordAudit(r, nil, audit.ActionLogin, audit.StatusFailure, "inactive account "+body.Username)
				return handler.Encode(errorResponse{Error: "inactive user"}, http.StatusBadRequest, w)
			case errors.Is(err, common.ErrStoreUnavailable):
				return handler.Encode(errorResponse{Error: "token store unavailable"}, http.StatusServiceUnavailable, w)
			default:
				return err
			}
		}

		s.recordAudit(r, &user.ID, audit.ActionLogin, audit.StatusSuccess, "")
		return handler.Encode(TokenEnvelope{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			TokenType:    "bearer",
			ExpiresIn:    pair.ExpiresIn,
		}, http.StatusOK, w)
	})
}

func (s *Server) Refresh() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		body, err := handler.Decode[RefreshRequest](r)
		if err != nil {
			return s.badRequest(w, err)
		}

		pair, err := s.tokens.Rotate(r.Context(), body.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrInvalidToken),
				errors.Is(err, common.ErrWrongTokenUse),
				errors.Is(err, common.ErrAccountInactive):
				s.recordAudit(r, nil, audit.ActionTokenRefresh, audit.StatusFailure, err.Error())
				return handler.Encode(errorResponse{Error: "invalid or expired refresh token"}, http.StatusUnauthorized, w)
			case errors.Is(err, common.ErrStoreUnavailable):
				return handler.Encode(errorResponse{Error: "token store unavailable"}, http.StatusServiceUnavailable, w)
			default:
				return err
			}
		}

		s.recordAudit(r, nil, audit.ActionTokenRefresh, audit.StatusSuccess, "")
		return handler.Encode(TokenEnvelope{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			TokenType:    "bearer",
			ExpiresIn:    pair.ExpiresIn,
		}, http.StatusOK, w)
	})
}

func (s *Server) Revoke() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		body, err := handler.Decode[RevokeRequest](r)
		if err != nil {
			return s.badRequest(w, err)
		}

		claims, err := s.tokens.Revoke(r.Context(), body.Token, body.Reason)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrInvalidToken):
				s.recordAudit(r, nil, audit.ActionTokenRevoke, audit.StatusFailure, "undecodable token")
				return handler.Encode(errorResponse{Error: "invalid token"}, http.StatusBadRequest, w)
			case errors.Is(err, common.ErrNotFound):
				s.recordAudit(r, nil, audit.ActionTokenRevoke, audit.StatusFailure, "unknown token "+claims.ID)
				return handler.Encode(errorResponse{Error: "token not found"}, http.StatusBadRequest, w)
			case errors.Is(err, common.ErrStoreUnavailable):
				return handler.Encode(errorResponse{Error: "token store unavailable"}, http.StatusServiceUnavailable, w)
			default:
				return err
			}
		}

		s.recordAudit(r, subjectID(claims.Subject), audit.ActionTokenRevoke, audit.StatusSuccess, "jti "+claims.ID)
		return handler.Encode(MessageResponse{Message: "token revoked successfully"}, http.StatusOK, w)
	})
}

func (s *Server) ValidateToken() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		credential := r.URL.Query().Get("token")
		if credential == "" {
			return handler.Encode(errorResponse{Error: "token query parameter is required"}, http.StatusBadRequest, w)
		}

		v, err := s.tokens.Validate(r.Context(), credential)
		if err != nil {
			if errors.Is(err, common.ErrStoreUnavailable) {
				return handler.Encode(errorResponse{Error: "token store unavailable"}, http.StatusServiceUnavailable, w)
			}
			return err
		}

		resp := ValidateResponse{Valid: v.Valid}
		if v.Valid {
			resp.UserID = &v.UserID
			resp.Username = v.Username
			exp := v.ExpiresAt.Unix()
			resp.ExpiresAt = &exp
		}
		return handler.Encode(resp, http.StatusOK, w)
	})
}

func (s *Server) Sessions() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		caller, ok := callerFrom(r.Context())
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return nil
		}

		ids, err := s.tokens.Sessions(r.Context(), caller.Subject)
		if err != nil {
			if errors.Is(err, common.ErrStoreUnavailable) {
				return handler.Encode(errorResponse{Error: "token store unavailable"}, http.StatusServiceUnavailable, w)
			}
			return err
		}
		if ids == nil {
			ids = []string{}
		}
		return handler.Encode(SessionsResponse{Sessions: ids, Count: len(ids)}, http.StatusOK, w)
	})
}

func (s *Server) Health() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return handler.Encode(map[string]string{"status": "healthy"}, http.StatusOK, w)
	})
}

// badRequest turns decode and validation failures into a 400 with per-field
// details when available.
func (s *Server) badRequest(w http.ResponseWriter, err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		details := make(map[string]string)
		for _, fieldErr := range ve {
			details[fieldErr.Field()] = fmt.Sprintf("failed on '%s'", fieldErr.Tag())
		}
		return handler.Encode(struct {
			Message string            `json:"message"`
			Details map[string]string `json:"data"`
		}{Message: "Validation Error", Details: details}, http.StatusBadRequest, w)
	}
	return handler.Encode(errorResponse{Error: "invalid request body"}, http.StatusBadRequest, w)
}

// recordAudit writes an audit row, best effort.
func (s *Server) recordAudit(r *http.Request, userID *int64, action, status, details string) {
	e := audit.Event{
		UserID:    userID,
		Action:    action,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Status:    status,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if err := s.audit.Record(r.Context(), e); err != nil {
		s.log.Warn(r.Context(), "audit write failed", "action", action, "error", err)
	}
}

func subjectID(subject string) *int64 {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

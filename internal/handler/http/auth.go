package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/utafrali/auth-service/internal/service"
	apperrors "github.com/utafrali/auth-service/pkg/errors"
	"github.com/utafrali/auth-service/pkg/httputil"
	"github.com/utafrali/auth-service/pkg/middleware"
	"github.com/utafrali/auth-service/pkg/validator"
)

// maxBodyBytes bounds request body size on the auth endpoints.
const maxBodyBytes = 1 << 20

// AuthHandler handles HTTP requests for the authentication endpoints.
type AuthHandler struct {
	service *service.AuthService
	cookies *cookieWriter
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, cookies *cookieWriter, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for account registration.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
}

// LoginRequest is the JSON request body for account login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the optional JSON request body for token refresh; the
// refresh token cookie takes precedence when both are present.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// --- Response types ---

// AuthResponse is the success payload for register, login and refresh. The
// refresh token travels only in its cookie; the body carries the short-lived
// access token and the CSRF signature the client must echo in the
// X-CSRF-Signature header.
type AuthResponse struct {
	Account       any    `json:"account,omitempty"`
	AccessToken   string `json:"access_token"`
	ExpiresIn     int64  `json:"expires_in"`
	CSRFSignature string `json:"csrf_signature"`
	SessionID     string `json:"session_id"`
}

func authResponse(acct any, creds *service.Credentials) AuthResponse {
	return AuthResponse{
		Account:       acct,
		AccessToken:   creds.Tokens.AccessToken,
		ExpiresIn:     creds.ExpiresIn,
		CSRFSignature: creds.CSRF.Signature,
		SessionID:     creds.SessionID,
	}
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()), h.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	acct, creds, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Meta:      requestMeta(r),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.setAuth(w, creds)
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: authResponse(acct, creds)})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()), h.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	acct, creds, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Meta:     requestMeta(r),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.setAuth(w, creds)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: authResponse(acct, creds)})
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := h.refreshTokenFrom(r)
	if refreshToken == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("refresh token is required"), h.logger)
		return
	}

	creds, err := h.service.Refresh(r.Context(), refreshToken, cookieValue(r, CookieSessionID), requestMeta(r))
	if err != nil {
		// Expire the cookies only when the token itself was refused. A store
		// outage is retryable and the client's token may still be live.
		if apperrors.HTTPStatus(err) == http.StatusUnauthorized {
			h.cookies.clearAuth(w)
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.setAuth(w, creds)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: authResponse(nil, creds)})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken := h.refreshTokenFrom(r)
	if refreshToken == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("refresh token is required"), h.logger)
		return
	}

	err := h.service.Logout(r.Context(), refreshToken, cookieValue(r, CookieSessionID), requestMeta(r))
	h.cookies.clearAuth(w)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"status": "logged out"},
	})
}

// LogoutAll handles POST /api/v1/auth/logout-all. Requires a valid access
// token; every refresh token and session of the account is revoked.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r.Context())

	revoked, err := h.service.LogoutAll(r.Context(), accountID, requestMeta(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.clearAuth(w)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]int64{"revoked_count": revoked},
	})
}

// refreshTokenFrom extracts the refresh token, preferring the cookie over
// the request body.
func (h *AuthHandler) refreshTokenFrom(r *http.Request) string {
	if v := cookieValue(r, CookieRefreshToken); v != "" {
		return v
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		return ""
	}

	var req RefreshRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ""
	}
	return req.RefreshToken
}

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/user"
)

type AuthHandlers struct {
	users *user.Service
	carts *cart.Service
	jwt   *auth.JWTService
	log   *logrus.Logger
}

func NewAuthHandlers(users *user.Service, carts *cart.Service, jwt *auth.JWTService, log *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{users: users, carts: carts, jwt: jwt, log: log}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User    UserResponse `json:"user"`
	Message string       `json:"message,omitempty"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func userResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	newUser, err := h.users.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	h.setAuthCookies(w, r, newUser)
	h.adoptGuestCart(r, newUser.ID)

	respondJSON(w, http.StatusCreated, AuthResponse{
		User:    userResponse(newUser),
		Message: "Registration successful",
	})
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, h.log, err)
		return
	}

	h.setAuthCookies(w, r, u)
	h.adoptGuestCart(r, u.ID)

	respondJSON(w, http.StatusOK, AuthResponse{
		User:    userResponse(u),
		Message: "Login successful",
	})
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshCookie, err := r.Cookie("refresh_token")
	if err != nil {
		respondJSONError(w, "No refresh token", http.StatusUnauthorized)
		return
	}

	userID, err := h.jwt.ValidateRefreshToken(refreshCookie.Value)
	if err != nil {
		h.clearAuthCookies(w)
		respondJSONError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	u, err := h.users.Get(r.Context(), userID)
	if err != nil {
		h.clearAuthCookies(w)
		respondJSONError(w, "User not found", http.StatusUnauthorized)
		return
	}
	if !u.IsActive {
		h.clearAuthCookies(w)
		respondJSONError(w, "Account is disabled", http.StatusForbidden)
		return
	}

	h.setAuthCookies(w, r, u)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Token refreshed"})
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondJSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	u, err := h.users.Get(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, userResponse(u))
}

// adoptGuestCart folds the anonymous session cart into the user's cart
// after login or registration. Best-effort; a merge failure never blocks
// the login itself.
func (h *AuthHandlers) adoptGuestCart(r *http.Request, userID string) {
	sessionID := middleware.GetSessionID(r.Context())
	if sessionID == "" {
		return
	}
	if err := h.carts.MergeGuestCart(r.Context(), sessionID, userID); err != nil {
		h.log.WithError(err).WithField("user_id", userID).Warn("guest cart merge failed")
	}
}

func (h *AuthHandlers) setAuthCookies(w http.ResponseWriter, r *http.Request, u *user.User) {
	accessToken, accessExpiry, err := h.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		h.log.WithError(err).Error("access token generation failed")
		return
	}
	refreshToken, refreshExpiry, err := h.jwt.GenerateRefreshToken(u.ID)
	if err != nil {
		h.log.WithError(err).Error("refresh token generation failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Path:     "/",
		Expires:  accessExpiry,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Path:     "/api/auth/refresh",
		Expires:  refreshExpiry,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandlers) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    "",
		Path:     "/api/auth/refresh",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/technosupport/ts-lms/internal/auth"
	"github.com/technosupport/ts-lms/internal/data"
	"github.com/technosupport/ts-lms/internal/middleware"
	"github.com/technosupport/ts-lms/internal/tokens"
)

type AdminUserStore interface {
	GetByUsername(ctx context.Context, username string) (*data.AdminUser, error)
}

type AuthHandler struct {
	Users     AdminUserStore
	Tokens    *tokens.Manager
	Blacklist auth.TokenBlacklist // optional; logout is a no-op without it
}

func NewAuthHandler(users AdminUserStore, tm *tokens.Manager, bl auth.TokenBlacklist) *AuthHandler {
	return &AuthHandler{Users: users, Tokens: tm, Blacklist: bl}
}

// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.Users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		respondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	ok, err := auth.CheckPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		respondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.Tokens.GenerateAdminToken(user.ID.String(), user.Username)
	if err != nil {
		log.Printf("Auth: token generation failed for %s: %v", user.Username, err)
		respondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// POST /api/v1/auth/logout (requires a valid token)
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if h.Blacklist != nil {
		if err := h.Blacklist.AddToBlacklist(r.Context(), ac.TokenID, tokens.AdminTokenTTL); err != nil {
			log.Printf("Auth: blacklist add failed for jti %s: %v", ac.TokenID, err)
			respondError(w, http.StatusInternalServerError, "Logout failed")
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/recruitflow/api/internal/models"
	"github.com/recruitflow/api/pkg/repository"
)

type AuthHandler struct {
	authRepo      repository.AuthRepo
	jwtSecret     string
	tokenDuration time.Duration
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(ar repository.AuthRepo, jwtSecret string, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{authRepo: ar, jwtSecret: jwtSecret, tokenDuration: tokenDuration}
}

type bootstrapRequest struct {
	TenantName string `json:"tenant_name"`
	TenantSlug string `json:"tenant_slug"`
	Timezone   string `json:"timezone"`
	Locale     string `json:"locale"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	FullName   string `json:"full_name"`
}

type loginRequest struct {
	TenantSlug string `json:"tenant_slug"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type authResponse struct {
	Token  string       `json:"token"`
	Tenant string       `json:"tenant_slug"`
	User   *models.User `json:"user,omitempty"`
}

// Bootstrap creates a tenant and its owner user in one call. A duplicate
// tenant slug conflicts rather than overwriting.
func (h *AuthHandler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	var req bootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	req.TenantSlug = strings.TrimSpace(req.TenantSlug)
	req.Email = strings.TrimSpace(req.Email)
	if req.TenantName == "" || req.TenantSlug == "" || req.Email == "" || req.Password == "" || req.FullName == "" {
		http.Error(w, "Missing fields", http.StatusBadRequest)
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if req.Locale == "" {
		req.Locale = "ru-RU"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	tenant := &models.Tenant{
		ID:       uuid.NewString(),
		Name:     req.TenantName,
		Slug:     req.TenantSlug,
		Timezone: req.Timezone,
		Locale:   req.Locale,
	}
	owner := &models.User{
		ID:           uuid.NewString(),
		TenantID:     tenant.ID,
		TenantSlug:   tenant.Slug,
		Email:        req.Email,
		FullName:     req.FullName,
		Role:         models.RoleOwner,
		IsActive:     true,
		PasswordHash: string(hash),
	}

	if err := h.authRepo.BootstrapTenantOwner(r.Context(), tenant, owner); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			http.Error(w, "Tenant slug already taken", http.StatusConflict)
			return
		}
		logger.Error("bootstrap tenant", "error", err)
		http.Error(w, "Error creating tenant", http.StatusInternalServerError)
		return
	}

	tokenStr, err := h.issueToken(owner)
	if err != nil {
		http.Error(w, "Error signing token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, authResponse{Token: tokenStr, Tenant: tenant.Slug, User: owner}, http.StatusCreated)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.TenantSlug == "" || req.Email == "" || req.Password == "" {
		http.Error(w, "Missing fields", http.StatusBadRequest)
		return
	}

	user, err := h.authRepo.FindUserByCredentials(r.Context(), req.TenantSlug, req.Email)
	if err != nil || user == nil {
		http.Error(w, "Credentials not found", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "Credentials not found", http.StatusUnauthorized)
		return
	}
	if !user.IsActive {
		http.Error(w, "Account disabled", http.StatusForbidden)
		return
	}

	tokenStr, err := h.issueToken(user)
	if err != nil {
		http.Error(w, "Error signing token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, authResponse{Token: tokenStr, Tenant: user.TenantSlug, User: user}, http.StatusOK)
}

func (h *AuthHandler) issueToken(u *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         u.ID,
		"tenant_id":   u.TenantID,
		"tenant_slug": u.TenantSlug,
		"role":        string(u.Role),
		"exp":         time.Now().Add(h.tokenDuration).Unix(),
	})
	return token.SignedString([]byte(h.jwtSecret))
}

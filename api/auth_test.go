package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/recruitflow/api/api"
	"github.com/recruitflow/api/internal/models"
	"github.com/recruitflow/api/pkg/repository/mock"
)

func seededAuthMocks(t *testing.T, password string) *mock.Mocks {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	m := mock.NewMocks()
	m.Auth.Tenant = &models.Tenant{ID: uuid.NewString(), Name: "Acme", Slug: "acme"}
	m.Auth.Owner = &models.User{
		ID: uuid.NewString(), TenantID: m.Auth.Tenant.ID, Email: "owner@acme.test",
		FullName: "Owner", Role: models.RoleOwner, IsActive: true, PasswordHash: string(hash),
	}
	return m
}

func TestAuthHandlers(t *testing.T) {
	secret := "testsecret"
	tokenDur := 1 * time.Hour

	tests := []struct {
		name       string
		path       string
		body       any
		prepare    func(t *testing.T) *mock.Mocks
		wantStatus int
		checkBody  func(t *testing.T, body []byte)
	}{
		{
			name:       "Bootstrap_InvalidRequest",
			path:       "/bootstrap",
			body:       "not a json",
			prepare:    func(t *testing.T) *mock.Mocks { return mock.NewMocks() },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Bootstrap_MissingFields",
			path:       "/bootstrap",
			body:       map[string]string{"tenant_name": "Acme", "email": "a@a.test"},
			prepare:    func(t *testing.T) *mock.Mocks { return mock.NewMocks() },
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "Bootstrap_Success",
			path: "/bootstrap",
			body: map[string]string{
				"tenant_name": "Acme", "tenant_slug": "acme",
				"email": "owner@acme.test", "password": "s3cret", "full_name": "Owner",
			},
			prepare:    func(t *testing.T) *mock.Mocks { return mock.NewMocks() },
			wantStatus: http.StatusCreated,
			checkBody: func(t *testing.T, b []byte) {
				var ar struct {
					Token string `json:"token"`
				}
				if err := json.Unmarshal(b, &ar); err != nil || ar.Token == "" {
					t.Fatalf("missing token in %s", string(b))
				}
				tok, err := jwt.Parse(ar.Token, func(token *jwt.Token) (any, error) { return []byte(secret), nil })
				if err != nil {
					t.Fatalf("parse token: %v", err)
				}
				claims := tok.Claims.(jwt.MapClaims)
				if claims["tenant_slug"] != "acme" || claims["role"] != "owner" {
					t.Fatalf("unexpected claims: %#v", claims)
				}
			},
		},
		{
			name: "Bootstrap_DuplicateSlug",
			path: "/bootstrap",
			body: map[string]string{
				"tenant_name": "Other", "tenant_slug": "acme",
				"email": "o@o.test", "password": "pw", "full_name": "O",
			},
			prepare:    func(t *testing.T) *mock.Mocks { return seededAuthMocks(t, "pw") },
			wantStatus: http.StatusConflict,
		},
		{
			name: "Bootstrap_StorageError",
			path: "/bootstrap",
			body: map[string]string{
				"tenant_name": "Acme", "tenant_slug": "acme",
				"email": "o@o.test", "password": "pw", "full_name": "O",
			},
			prepare: func(t *testing.T) *mock.Mocks {
				m := mock.NewMocks()
				m.Auth.BootstrapErr = fmt.Errorf("disk full")
				return m
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "Login_InvalidRequest",
			path:       "/login",
			body:       "not a json",
			prepare:    func(t *testing.T) *mock.Mocks { return mock.NewMocks() },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Login_UnknownTenant",
			path:       "/login",
			body:       map[string]string{"tenant_slug": "ghost", "email": "owner@acme.test", "password": "s3cret"},
			prepare:    func(t *testing.T) *mock.Mocks { return seededAuthMocks(t, "s3cret") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Login_WrongPassword",
			path:       "/login",
			body:       map[string]string{"tenant_slug": "acme", "email": "owner@acme.test", "password": "nope"},
			prepare:    func(t *testing.T) *mock.Mocks { return seededAuthMocks(t, "s3cret") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "Login_DisabledAccount",
			path: "/login",
			body: map[string]string{"tenant_slug": "acme", "email": "owner@acme.test", "password": "s3cret"},
			prepare: func(t *testing.T) *mock.Mocks {
				m := seededAuthMocks(t, "s3cret")
				m.Auth.Owner.IsActive = false
				return m
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "Login_Success",
			path:       "/login",
			body:       map[string]string{"tenant_slug": "acme", "email": "owner@acme.test", "password": "s3cret"},
			prepare:    func(t *testing.T) *mock.Mocks { return seededAuthMocks(t, "s3cret") },
			wantStatus: http.StatusOK,
			checkBody: func(t *testing.T, b []byte) {
				var ar struct {
					Token string `json:"token"`
					User  *models.User
				}
				if err := json.Unmarshal(b, &ar); err != nil || ar.Token == "" {
					t.Fatalf("missing token in %s", string(b))
				}
				if bytes.Contains(b, []byte("password_hash")) {
					t.Fatalf("password hash leaked: %s", string(b))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks := tt.prepare(t)
			handler := api.NewAuthHandler(mocks.Auth, secret, tokenDur)

			var bodyReader io.Reader
			if tt.body != nil {
				b, _ := json.Marshal(tt.body)
				bodyReader = bytes.NewReader(b)
			}
			req := httptest.NewRequest(http.MethodPost, tt.path, bodyReader)
			w := httptest.NewRecorder()

			switch tt.path {
			case "/bootstrap":
				handler.Bootstrap(w, req)
			case "/login":
				handler.Login(w, req)
			default:
				t.Fatalf("unknown path %s", tt.path)
			}

			res := w.Result()
			defer res.Body.Close()
			data, _ := io.ReadAll(res.Body)
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("expected status %d got %d body=%s", tt.wantStatus, res.StatusCode, string(data))
			}
			if tt.checkBody != nil {
				tt.checkBody(t, data)
			}
		})
	}
}

package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-admin-api/internal/models"
)

type fakeAuthService struct {
	meID string
}

func (f *fakeAuthService) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{AccessToken: "token", User: models.Identity{Email: req.Email}}, nil
}

func (f *fakeAuthService) Me(_ context.Context, userID string) (*models.Identity, error) {
	f.meID = userID
	return &models.Identity{UserID: userID}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{})

	c, rec := newTestContext(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"admin@example.com","password":"x"}`))
	h.Login(c)
	assertStatus(t, rec, http.StatusOK)
	assert.Contains(t, rec.Body.String(), `"access_token":"token"`)

	c, rec = newTestContext(http.MethodPost, "/auth/login", strings.NewReader(`not json`))
	h.Login(c)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestAuthHandlerMe(t *testing.T) {
	svc := &fakeAuthService{}
	h := NewAuthHandler(svc)

	c, rec := newTestContext(http.MethodGet, "/auth/me", nil)
	h.Me(c)
	assertStatus(t, rec, http.StatusUnauthorized)

	c, rec = newTestContext(http.MethodGet, "/auth/me", nil)
	withAdmin(c)
	h.Me(c)
	assertStatus(t, rec, http.StatusOK)
	assert.Equal(t, "user-1", svc.meID)
}

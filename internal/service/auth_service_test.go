package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/course-admin-api/internal/models"
	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

type mockAuthRepo struct {
	users            map[string]*models.User
	lastLoginUpdated bool
	created          []*models.User
}

func newMockAuthRepo(users ...*models.User) *mockAuthRepo {
	repo := &mockAuthRepo{users: map[string]*models.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *mockAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) Create(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "generated"
	}
	m.users[user.ID] = user
	m.created = append(m.created, user)
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(context.Context, string, time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func newTestUser(t *testing.T, active bool) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "user-1",
		Email:        "admin@example.com",
		PasswordHash: string(hash),
		FullName:     "Site Admin",
		Role:         models.RoleAdmin,
		Active:       active,
	}
}

func newAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "course-admin-api",
	})
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := newMockAuthRepo(newTestUser(t, true))
	svc := newAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "Admin@Example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "Site Admin", resp.User.FullName)
	assert.True(t, repo.lastLoginUpdated)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.Identity{UserID: "user-1", Email: "admin@example.com", FullName: "Site Admin", Role: models.RoleAdmin}, claims.Identity())
}

func TestAuthServiceLoginFailures(t *testing.T) {
	svc := newAuthService(newMockAuthRepo(newTestUser(t, true)))
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "wrong"})
	requireAppError(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "password123"})
	requireAppError(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "bad"})
	requireAppError(t, err, appErrors.ErrValidation)

	inactive := newAuthService(newMockAuthRepo(newTestUser(t, false)))
	_, err = inactive.Login(context.Background(), models.LoginRequest{Email: "admin@example.com", Password: "password123"})
	requireAppError(t, err, appErrors.ErrInactiveAccount)
}

func TestValidateTokenRejectsForeignTokens(t *testing.T) {
	svc := newAuthService(newMockAuthRepo())

	other := NewAuthService(newMockAuthRepo(), nil, nil, AuthConfig{AccessTokenSecret: "other", Issuer: "course-admin-api"})
	token, err := other.generateAccessToken(&models.User{ID: "u"}, time.Now())
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	requireAppError(t, err, appErrors.ErrUnauthorized)

	wrongIssuer := NewAuthService(newMockAuthRepo(), nil, nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "elsewhere"})
	token, err = wrongIssuer.generateAccessToken(&models.User{ID: "u"}, time.Now())
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	requireAppError(t, err, appErrors.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "u"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	requireAppError(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceMe(t *testing.T) {
	svc := newAuthService(newMockAuthRepo(newTestUser(t, true)))
	identity, err := svc.Me(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", identity.Email)

	_, err = svc.Me(context.Background(), "missing")
	requireAppError(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceBootstrap(t *testing.T) {
	repo := newMockAuthRepo()
	svc := newAuthService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Bootstrap(ctx, "", "", ""))
	assert.Empty(t, repo.created)

	require.NoError(t, svc.Bootstrap(ctx, "Root@Example.com", "s3cret", ""))
	require.Len(t, repo.created, 1)
	assert.Equal(t, "root@example.com", repo.created[0].Email)
	assert.Equal(t, models.RoleSuperAdmin, repo.created[0].Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.created[0].PasswordHash), []byte("s3cret")))

	require.NoError(t, svc.Bootstrap(ctx, "root@example.com", "s3cret", ""))
	assert.Len(t, repo.created, 1)
}

package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type userRepoStub struct {
	users       map[string]*models.User
	lastLoginID string
}

func (r *userRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *userRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (r *userRepoStub) TouchLastLogin(ctx context.Context, id string) error {
	r.lastLoginID = id
	return nil
}

func newAuthFixture(t *testing.T, active bool) (*AuthService, *userRepoStub) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &userRepoStub{users: map[string]*models.User{
		"u1": {
			ID:           "u1",
			Email:        "admin@example.com",
			PasswordHash: string(hash),
			Role:         models.RoleAdmin,
			Active:       active,
		},
	}}
	return NewAuthService(repo, nil, nil, "test-secret", time.Hour), repo
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	service, repo := newAuthFixture(t, true)

	resp, err := service.Login(context.Background(), LoginRequest{Email: "admin@example.com", Password: "s3cret"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "u1", repo.lastLoginID)

	claims, err := service.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	service, _ := newAuthFixture(t, true)

	_, err := service.Login(context.Background(), LoginRequest{Email: "admin@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginUnknownUser(t *testing.T) {
	service, _ := newAuthFixture(t, true)

	_, err := service.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	service, _ := newAuthFixture(t, false)

	_, err := service.Login(context.Background(), LoginRequest{Email: "admin@example.com", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	service, _ := newAuthFixture(t, true)

	_, err := service.ValidateToken("not.a.token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceValidateTokenRejectsForeignSecret(t *testing.T) {
	service, _ := newAuthFixture(t, true)
	other, _ := newAuthFixtureWithSecret(t, "other-secret")

	resp, err := other.Login(context.Background(), LoginRequest{Email: "admin@example.com", Password: "s3cret"})
	require.NoError(t, err)

	_, err = service.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}

func newAuthFixtureWithSecret(t *testing.T, secret string) (*AuthService, *userRepoStub) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &userRepoStub{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "admin@example.com", PasswordHash: string(hash), Role: models.RoleAdmin, Active: true},
	}}
	return NewAuthService(repo, nil, nil, secret, time.Hour), repo
}

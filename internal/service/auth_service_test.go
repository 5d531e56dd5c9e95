package service

import (
	"context"
	"testing"
	"time"

	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/model"
	"github.com/stemsi/lms-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsers map[string]*model.User

func (f fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	u, ok := f[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f fakeUsers) GetByID(_ context.Context, id int) (*model.User, error) {
	for _, u := range f {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func newAuthFixture(t *testing.T) (*AuthService, fakeUsers) {
	t.Helper()
	_, rdb := newTestRedis(t)
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour, BcryptCost: bcrypt.MinCost}

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	users := fakeUsers{
		"learner@example.com": {ID: 1, Name: "Lena", Email: "learner@example.com", PasswordHash: string(hash), Role: model.RoleLearner},
		"admin@example.com":   {ID: 2, Name: "Adam", Email: "admin@example.com", PasswordHash: string(hash), Role: model.RoleAdmin},
	}
	return NewAuthService(cfg, rdb, users), users
}

func TestLogin_RoleAndPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, model.LoginRequest{Email: "learner@example.com", Password: "wrong-pass"}, model.RoleLearner)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, model.LoginRequest{Email: "nobody@example.com", Password: "password123"}, model.RoleLearner)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, model.LoginRequest{Email: "admin@example.com", Password: "password123"}, model.RoleLearner)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := svc.Login(ctx, model.LoginRequest{Email: "admin@example.com", Password: "password123"}, model.RoleAdmin)
	require.NoError(t, err)
	claims, err := svc.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.Equal(t, 2, claims.UserID)
}

func TestLearnerSession_SingleDevice(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()
	req := model.LoginRequest{Email: "learner@example.com", Password: "password123"}

	res, err := svc.Login(ctx, req, model.RoleLearner)
	require.NoError(t, err)
	claims, err := svc.ValidateToken(res.Token)
	require.NoError(t, err)
	require.NoError(t, svc.ValidateLearnerSession(ctx, claims.UserID, claims.ID))

	_, err = svc.Login(ctx, req, model.RoleLearner)
	assert.ErrorIs(t, err, ErrSessionAlreadyActive)

	require.NoError(t, svc.Logout(ctx, claims))
	assert.ErrorIs(t, svc.ValidateLearnerSession(ctx, claims.UserID, claims.ID), ErrNoActiveSession)

	res2, err := svc.Login(ctx, req, model.RoleLearner)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.ValidateLearnerSession(ctx, claims.UserID, claims.ID), ErrSessionInvalidated)

	claims2, err := svc.ValidateToken(res2.Token)
	require.NoError(t, err)
	require.NoError(t, svc.ResetLearnerSession(ctx, claims2.UserID))
	_, err = svc.Login(ctx, req, model.RoleLearner)
	assert.NoError(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	svc, users := newAuthFixture(t)
	issued := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	token, err := svc.GenerateAdminToken(users["admin@example.com"])
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = svc.ValidateToken(token)
	assert.Error(t, err)

	_, err = svc.ValidateToken(token + "x")
	assert.Error(t, err)
}

func TestMe(t *testing.T) {
	svc, _ := newAuthFixture(t)
	u, err := svc.Me(context.Background(), &Claims{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, "Lena", u.Name)
}

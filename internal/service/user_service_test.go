package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/voice-news-api/internal/models"
	"github.com/noah-isme/voice-news-api/internal/repository"
	appErrors "github.com/noah-isme/voice-news-api/pkg/errors"
)

type mockUserRepo struct {
	*mockAuthRepo
	updateErr error
	deleted   []string
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	return &mockUserRepo{mockAuthRepo: newMockAuthRepo(users...)}
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Active = false
	}
	m.deleted = append(m.deleted, id)
	return nil
}

type stubRevoker struct {
	subjects []string
	err      error
}

func (s *stubRevoker) RevokeAll(ctx context.Context, subject string) (int, error) {
	s.subjects = append(s.subjects, subject)
	return 1, s.err
}

func newUserServiceFixture(users ...*models.User) (*UserService, *mockUserRepo, *stubRevoker, *mockAuditRecorder) {
	repo := newMockUserRepo(users...)
	revoker := &stubRevoker{}
	audit := &mockAuditRecorder{}
	svc := NewUserService(repo, revoker, audit, validator.New(), zap.NewNop(), AuthConfig{BcryptCost: bcrypt.MinCost})
	return svc, repo, revoker, audit
}

func adminMeta() models.RequestMeta {
	return models.RequestMeta{ActorID: uuid.NewString(), ActorRole: models.RoleAdmin, IP: "127.0.0.1"}
}

func TestUserServiceCreate(t *testing.T) {
	svc, repo, _, audit := newUserServiceFixture()

	user, err := svc.Create(context.Background(), models.CreateUserRequest{
		Username: " carol ",
		Password: "secret123",
		Email:    "Carol@Example.com",
		Role:     models.RoleEditor,
	}, adminMeta())
	require.NoError(t, err)
	assert.Equal(t, "carol", user.Username)
	assert.Equal(t, "carol@example.com", user.Email)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret123")))
	assert.Contains(t, repo.users, user.ID)
	assert.Equal(t, []string{models.AuditActionUserCreate}, audit.actions())
}

func TestUserServiceCreateConflict(t *testing.T) {
	svc, repo, _, _ := newUserServiceFixture()
	repo.conflicts.Username = true

	_, err := svc.Create(context.Background(), models.CreateUserRequest{
		Username: "carol",
		Password: "secret123",
		Email:    "carol@example.com",
		Role:     models.RoleUser,
	}, adminMeta())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusConflict, appErr.Status)
}

func TestUserServiceCreateValidation(t *testing.T) {
	svc, _, _, _ := newUserServiceFixture()

	_, err := svc.Create(context.Background(), models.CreateUserRequest{Username: "x", Password: "1", Email: "nope", Role: "ROOT"}, adminMeta())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestUserServiceGetNotFound(t *testing.T) {
	svc, _, _, _ := newUserServiceFixture()

	_, err := svc.Get(context.Background(), uuid.NewString())
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusNotFound, appErr.Status)

	_, err = svc.Get(context.Background(), "not-a-uuid")
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusNotFound, appErr.Status)
}

func TestUserServiceList(t *testing.T) {
	editor := &models.User{ID: uuid.NewString(), Username: "ed", Role: models.RoleEditor, Active: true}
	reader := &models.User{ID: uuid.NewString(), Username: "rd", Role: models.RoleUser, Active: true}
	svc, _, _, _ := newUserServiceFixture(editor, reader)

	role := models.RoleEditor
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Role: &role})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "ed", users[0].Username)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestUserServiceUpdatePasswordRevokesSessions(t *testing.T) {
	user := &models.User{ID: uuid.NewString(), Username: "dave", Email: "dave@example.com", PasswordHash: "old", Role: models.RoleUser, Active: true}
	svc, _, revoker, audit := newUserServiceFixture(user)

	password := "brand-new-pass"
	updated, err := svc.Update(context.Background(), user.ID, models.UpdateUserRequest{Password: &password}, models.RequestMeta{ActorID: user.ID, ActorRole: models.RoleUser})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte(password)))
	assert.Equal(t, []string{user.ID}, revoker.subjects)
	assert.Equal(t, []string{models.AuditActionUserUpdate}, audit.actions())
}

func TestUserServiceUpdatePasswordSurfacesStoreOutage(t *testing.T) {
	user := &models.User{ID: uuid.NewString(), Username: "dora", Email: "dora@example.com", PasswordHash: "old", Role: models.RoleUser, Active: true}
	svc, _, revoker, _ := newUserServiceFixture(user)
	revoker.err = fmt.Errorf("%w: delete_all: LOADING", repository.ErrStoreUnavailable)

	password := "brand-new-pass"
	_, err := svc.Update(context.Background(), user.ID, models.UpdateUserRequest{Password: &password}, adminMeta())
	assertAppError(t, err, appErrors.ErrAuthUnavailable)
	assert.Equal(t, []string{user.ID}, revoker.subjects)
}

func TestUserServiceUpdateProfileKeepsSessions(t *testing.T) {
	user := &models.User{ID: uuid.NewString(), Username: "erin", Email: "erin@example.com", Role: models.RoleUser, Active: true}
	svc, _, revoker, _ := newUserServiceFixture(user)

	age := 41
	email := "Erin@Example.org"
	updated, err := svc.Update(context.Background(), user.ID, models.UpdateUserRequest{Age: &age, Email: &email}, models.RequestMeta{ActorID: user.ID, ActorRole: models.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, "erin@example.org", updated.Email)
	require.NotNil(t, updated.Age)
	assert.Equal(t, 41, *updated.Age)
	assert.Empty(t, revoker.subjects)
}

func TestUserServiceUpdateRoleRequiresAdmin(t *testing.T) {
	user := &models.User{ID: uuid.NewString(), Username: "frank", Role: models.RoleUser, Active: true}
	svc, _, _, _ := newUserServiceFixture(user)

	role := models.RoleAdmin
	_, err := svc.Update(context.Background(), user.ID, models.UpdateUserRequest{Role: &role}, models.RequestMeta{ActorID: user.ID, ActorRole: models.RoleUser})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusForbidden, appErr.Status)

	updated, err := svc.Update(context.Background(), user.ID, models.UpdateUserRequest{Role: &role}, adminMeta())
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, updated.Role)
}

func TestUserServiceDeactivateRevokesSessions(t *testing.T) {
	user := &models.User{ID: uuid.NewString(), Username: "gina", Role: models.RoleUser, Active: true}
	svc, _, revoker, _ := newUserServiceFixture(user)

	inactive := false
	_, err := svc.Update(context.Background(), user.ID, models.UpdateUserRequest{Active: &inactive}, adminMeta())
	require.NoError(t, err)
	assert.Equal(t, []string{user.ID}, revoker.subjects)
}

func TestUserServiceDeactivateToleratesStoreOutage(t *testing.T) {
	user := &models.User{ID: uuid.NewString(), Username: "gus", Role: models.RoleUser, Active: true}
	svc, _, revoker, _ := newUserServiceFixture(user)
	revoker.err = fmt.Errorf("%w: delete_all: LOADING", repository.ErrStoreUnavailable)

	inactive := false
	updated, err := svc.Update(context.Background(), user.ID, models.UpdateUserRequest{Active: &inactive}, adminMeta())
	require.NoError(t, err)
	assert.False(t, updated.Active)
}

func TestUserServiceDelete(t *testing.T) {
	user := &models.User{ID: uuid.NewString(), Username: "hank", Role: models.RoleUser, Active: true}
	svc, repo, revoker, audit := newUserServiceFixture(user)
	revoker.err = errors.New("redis down")

	require.NoError(t, svc.Delete(context.Background(), user.ID, adminMeta()))
	assert.Equal(t, []string{user.ID}, repo.deleted)
	assert.False(t, repo.users[user.ID].Active)
	assert.Equal(t, []string{user.ID}, revoker.subjects)
	assert.Equal(t, []string{models.AuditActionUserDelete}, audit.actions())
}

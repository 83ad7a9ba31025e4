package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voice-news-api/internal/models"
	appErrors "github.com/noah-isme/voice-news-api/pkg/errors"
)

type memoryAuditRepo struct {
	mu      sync.Mutex
	entries []models.AuditLog
	listErr error
	filter  models.AuditFilter
}

func (r *memoryAuditRepo) Create(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *log)
	return nil
}

func (r *memoryAuditRepo) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	r.filter = filter
	if r.listErr != nil {
		return nil, 0, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AuditLog(nil), r.entries...), len(r.entries), nil
}

func (r *memoryAuditRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func TestAuditServiceWritesThroughQueue(t *testing.T) {
	repo := &memoryAuditRepo{}
	svc := NewAuditService(repo, nil, AuditServiceConfig{Workers: 1, BufferSize: 4})
	svc.Start(context.Background())

	svc.Record(context.Background(), models.AuditLog{Action: models.AuditActionLogin, Resource: "auth"})
	svc.Stop()

	require.Equal(t, 1, repo.count())
	entry := repo.entries[0]
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Equal(t, models.AuditActionLogin, entry.Action)
}

func TestAuditServiceWritesInlineWhenNotStarted(t *testing.T) {
	repo := &memoryAuditRepo{}
	svc := NewAuditService(repo, nil, AuditServiceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Record(ctx, models.AuditLog{Action: models.AuditActionLogout, CreatedAt: time.Unix(0, 0)})

	require.Equal(t, 1, repo.count())
	assert.True(t, repo.entries[0].CreatedAt.Equal(time.Unix(0, 0)))
}

func TestAuditServiceNilIsNoop(t *testing.T) {
	var svc *AuditService
	assert.NotPanics(t, func() { svc.Record(context.Background(), models.AuditLog{}) })
}

func TestAuditServiceListPagination(t *testing.T) {
	repo := &memoryAuditRepo{}
	svc := NewAuditService(repo, nil, AuditServiceConfig{})

	_, page, err := svc.List(context.Background(), models.AuditFilter{Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)

	repo.listErr = errors.New("db down")
	_, _, err = svc.List(context.Background(), models.AuditFilter{})
	assertAppError(t, err, appErrors.ErrInternal)
}

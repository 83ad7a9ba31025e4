package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voice-news-api/internal/middleware"
	"github.com/noah-isme/voice-news-api/internal/models"
	"github.com/noah-isme/voice-news-api/internal/service"
	appErrors "github.com/noah-isme/voice-news-api/pkg/errors"
)

type newsServiceMock struct {
	filter     models.NewsFilter
	listCalls  int
	latestHit  bool
	batch      models.BatchDeleteNewsRequest
	batchMeta  models.RequestMeta
	batchErr   error
	exportFmt  string
	created    *models.NewsRequest
	createMeta models.RequestMeta
}

func (m *newsServiceMock) List(ctx context.Context, filter models.NewsFilter) ([]models.News, *models.Pagination, error) {
	m.listCalls++
	m.filter = filter
	return []models.News{{ID: 1, Title: "Budget passes"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (m *newsServiceMock) Latest(ctx context.Context, limit int) ([]models.News, bool, error) {
	return []models.News{{ID: 2, Title: "Fresh"}}, m.latestHit, nil
}

func (m *newsServiceMock) Get(ctx context.Context, id int64) (*models.News, error) {
	if id == 404 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "news not found with id: 404")
	}
	return &models.News{ID: id, Title: "Found"}, nil
}

func (m *newsServiceMock) Create(ctx context.Context, req models.NewsRequest, meta models.RequestMeta) (*models.News, error) {
	m.created = &req
	m.createMeta = meta
	return &models.News{ID: 10, Title: req.Title}, nil
}

func (m *newsServiceMock) Update(ctx context.Context, id int64, req models.NewsRequest, meta models.RequestMeta) (*models.News, error) {
	return &models.News{ID: id, Title: req.Title}, nil
}

func (m *newsServiceMock) Delete(ctx context.Context, id int64, meta models.RequestMeta) error {
	return nil
}

func (m *newsServiceMock) DeleteBatch(ctx context.Context, req models.BatchDeleteNewsRequest, meta models.RequestMeta) (int, error) {
	m.batch = req
	m.batchMeta = meta
	if m.batchErr != nil {
		return 0, m.batchErr
	}
	return len(req.IDs), nil
}

func (m *newsServiceMock) Export(ctx context.Context, filter models.NewsFilter, format string) (*service.NewsExport, error) {
	m.exportFmt = format
	return &service.NewsExport{Filename: "news-20250301-090000.csv", ContentType: "text/csv", Body: []byte("id,title\n")}, nil
}

func TestNewsHandlerListParsesFilters(t *testing.T) {
	svc := &newsServiceMock{}
	h := NewNewsHandler(svc)
	c, w := jsonContext(t, http.MethodGet, "/news?tag=politics&keyword=budget&startDate=2025-01-01%2000:00:00&endDate=2025-01-31%2023:59:59&page=2&page_size=5", nil)

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "politics", svc.filter.Tag)
	assert.Equal(t, "budget", svc.filter.Keyword)
	assert.Equal(t, 2, svc.filter.Page)
	assert.Equal(t, 5, svc.filter.PageSize)
	require.NotNil(t, svc.filter.From)
	require.NotNil(t, svc.filter.To)
	assert.True(t, svc.filter.From.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.NotNil(t, decodeEnvelope(t, w)["pagination"])
}

func TestNewsHandlerListRejectsBadDate(t *testing.T) {
	svc := &newsServiceMock{}
	h := NewNewsHandler(svc)
	c, w := jsonContext(t, http.MethodGet, "/news?startDate=yesterday", nil)

	h.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, svc.listCalls)
}

func TestNewsHandlerRequiredFilters(t *testing.T) {
	cases := []struct {
		name   string
		target string
		call   func(h *NewsHandler, c *gin.Context)
		status int
	}{
		{name: "tag missing", target: "/news/by-tag", call: (*NewsHandler).ByTag, status: http.StatusBadRequest},
		{name: "tag present", target: "/news/by-tag?tag=sport", call: (*NewsHandler).ByTag, status: http.StatusOK},
		{name: "keyword blank", target: "/news/search?keyword=%20", call: (*NewsHandler).Search, status: http.StatusBadRequest},
		{name: "source present", target: "/news/by-source?source=Reuters", call: (*NewsHandler).BySource, status: http.StatusOK},
		{name: "range missing end", target: "/news/by-date-range?startDate=2025-01-01%2000:00:00", call: (*NewsHandler).ByDateRange, status: http.StatusBadRequest},
		{name: "range complete", target: "/news/by-date-range?startDate=2025-01-01%2000:00:00&endDate=2025-01-02%2000:00:00", call: (*NewsHandler).ByDateRange, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewNewsHandler(&newsServiceMock{})
			c, w := jsonContext(t, http.MethodGet, tc.target, nil)
			tc.call(h, c)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestNewsHandlerLatestReportsCacheHit(t *testing.T) {
	h := NewNewsHandler(&newsServiceMock{latestHit: true})
	c, w := jsonContext(t, http.MethodGet, "/news/latest", nil)
	middleware.WithResponseMeta()(c)

	h.Latest(c)

	require.Equal(t, http.StatusOK, w.Code)
	meta, ok := decodeEnvelope(t, w)["meta"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, meta["cache_hit"])
}

func TestNewsHandlerGetValidatesID(t *testing.T) {
	h := NewNewsHandler(&newsServiceMock{})

	c, w := jsonContext(t, http.MethodGet, "/news/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	h.Get(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = jsonContext(t, http.MethodGet, "/news/404", nil)
	c.Params = gin.Params{{Key: "id", Value: "404"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}

func TestNewsHandlerCreateCarriesActor(t *testing.T) {
	svc := &newsServiceMock{}
	h := NewNewsHandler(svc)
	c, w := jsonContext(t, http.MethodPost, "/news", models.NewsRequest{Title: "Launch"})
	c.Set(middleware.ContextUserKey, &models.Principal{UserID: "editor-1", Role: models.RoleEditor})

	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Launch", svc.created.Title)
	assert.Equal(t, "editor-1", svc.createMeta.ActorID)
	assert.Equal(t, models.RoleEditor, svc.createMeta.ActorRole)
}

func TestNewsHandlerDeleteBatchAcceptsBothShapes(t *testing.T) {
	for name, body := range map[string]string{
		"array":  `[3, 1, 2]`,
		"object": `{"ids": [3, 1, 2]}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc := &newsServiceMock{}
			h := NewNewsHandler(svc)
			c, w := jsonContext(t, http.MethodDelete, "/news/batch", body)

			h.DeleteBatch(c)
			c.Writer.WriteHeaderNow()

			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, []int64{3, 1, 2}, svc.batch.IDs)
		})
	}
}

func TestNewsHandlerDeleteBatchErrors(t *testing.T) {
	h := NewNewsHandler(&newsServiceMock{})
	c, w := jsonContext(t, http.MethodDelete, "/news/batch", `{"ids": "nope"}`)
	h.DeleteBatch(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h = NewNewsHandler(&newsServiceMock{batchErr: appErrors.Clone(appErrors.ErrNotFound, "news not found with ids: [9]")})
	c, w = jsonContext(t, http.MethodDelete, "/news/batch", `[9]`)
	h.DeleteBatch(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewsHandlerExportAttachment(t *testing.T) {
	svc := &newsServiceMock{}
	h := NewNewsHandler(svc)
	c, w := jsonContext(t, http.MethodGet, "/news/export?tag=sport", nil)

	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", svc.exportFmt)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "news-20250301-090000.csv")
	assert.Equal(t, "id,title\n", w.Body.String())
}

package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/voice-news-api/internal/models"
	appErrors "github.com/noah-isme/voice-news-api/pkg/errors"
	"github.com/noah-isme/voice-news-api/pkg/export"
)

const (
	latestCachePattern = "news:latest:*"
	defaultLatestLimit = 10
	maxLatestLimit     = 100
)

type newsRepository interface {
	List(ctx context.Context, filter models.NewsFilter) ([]models.News, int, error)
	Export(ctx context.Context, filter models.NewsFilter) ([]models.News, error)
	Latest(ctx context.Context, limit int) ([]models.News, error)
	FindByID(ctx context.Context, id int64) (*models.News, error)
	Create(ctx context.Context, item *models.News) error
	Update(ctx context.Context, item *models.News) error
	Delete(ctx context.Context, id int64) error
	DeleteBatch(ctx context.Context, ids []int64) ([]int64, error)
}

// NewsServiceConfig tunes the latest feed.
type NewsServiceConfig struct {
	CacheTTL    time.Duration
	LatestLimit int
}

// NewsExport is a rendered export ready to stream.
type NewsExport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// NewsService exposes news reads to everyone and writes to editors.
type NewsService struct {
	repo      newsRepository
	cache     *CacheService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	config    NewsServiceConfig
	now       func() time.Time
}

// NewNewsService constructs a NewsService. cache and audit may be nil.
func NewNewsService(repo newsRepository, cache *CacheService, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, config NewsServiceConfig) *NewsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &NewsService{repo: repo, cache: cache, audit: audit, validator: validate, logger: logger, config: config, now: time.Now}
}

// ParseNewsRange parses optional yyyy-MM-dd HH:mm:ss bounds and checks their order.
func ParseNewsRange(start, end string) (*time.Time, *time.Time, error) {
	parse := func(field, raw string) (*time.Time, error) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil, nil
		}
		ts, err := time.ParseInLocation(models.NewsTimeLayout, raw, time.UTC)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must use format yyyy-MM-dd HH:mm:ss", field))
		}
		return &ts, nil
	}
	from, err := parse("startDate", start)
	if err != nil {
		return nil, nil, err
	}
	to, err := parse("endDate", end)
	if err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "startDate must not be after endDate")
	}
	return from, to, nil
}

// List returns a page of articles matching the filter.
func (s *NewsService) List(ctx context.Context, filter models.NewsFilter) ([]models.News, *models.Pagination, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "startDate must not be after endDate")
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list news")
	}
	if items == nil {
		items = []models.News{}
	}
	page, pageSize := pageDefaults(filter.Page, filter.PageSize)
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Latest returns the newest articles. Results are cached per limit; the bool reports a cache hit.
func (s *NewsService) Latest(ctx context.Context, limit int) ([]models.News, bool, error) {
	if limit <= 0 {
		limit = s.config.LatestLimit
	}
	if limit <= 0 {
		limit = defaultLatestLimit
	}
	if limit > maxLatestLimit {
		limit = maxLatestLimit
	}

	var cached []models.News
	value, hit, err := s.cache.Remember(ctx, "news:latest:"+strconv.Itoa(limit), s.config.CacheTTL, &cached, func(ctx context.Context) (interface{}, error) {
		items, err := s.repo.Latest(ctx, limit)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []models.News{}
		}
		return items, nil
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest news")
	}
	if hit {
		return cached, true, nil
	}
	return value.([]models.News), false, nil
}

// Get returns a single article.
func (s *NewsService) Get(ctx context.Context, id int64) (*models.News, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newsNotFound(id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load news")
	}
	return item, nil
}

// Create stores a new article.
func (s *NewsService) Create(ctx context.Context, req models.NewsRequest, meta models.RequestMeta) (*models.News, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	item := &models.News{CreatedAt: s.now().UTC()}
	applyNewsRequest(item, req)
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create news")
	}

	s.invalidate(ctx)
	payload, _ := json.Marshal(item)
	s.record(ctx, meta, models.AuditActionNewsCreate, item.ID, nil, payload)
	return item, nil
}

// Update replaces an article. A body id, when present, must equal the path id.
func (s *NewsService) Update(ctx context.Context, id int64, req models.NewsRequest, meta models.RequestMeta) (*models.News, error) {
	if req.ID != nil && *req.ID != id {
		return nil, appErrors.Clone(appErrors.ErrValidation, "news id in path and body must match")
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldPayload, _ := json.Marshal(existing)

	item := &models.News{ID: id, CreatedAt: existing.CreatedAt}
	applyNewsRequest(item, req)
	if err := s.repo.Update(ctx, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, newsNotFound(id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update news")
	}

	s.invalidate(ctx)
	newPayload, _ := json.Marshal(item)
	s.record(ctx, meta, models.AuditActionNewsUpdate, id, oldPayload, newPayload)
	return item, nil
}

// Delete removes an article.
func (s *NewsService) Delete(ctx context.Context, id int64, meta models.RequestMeta) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return newsNotFound(id)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete news")
	}
	s.invalidate(ctx)
	s.record(ctx, meta, models.AuditActionNewsDelete, id, nil, nil)
	return nil
}

// DeleteBatch removes all listed articles, or none when any id is unknown.
func (s *NewsService) DeleteBatch(ctx context.Context, req models.BatchDeleteNewsRequest, meta models.RequestMeta) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "ids must be a non-empty list of positive integers")
	}
	ids := uniqueIDs(req.IDs)

	missing, err := s.repo.DeleteBatch(ctx, ids)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete news")
	}
	if len(missing) > 0 {
		parts := make([]string, len(missing))
		for i, id := range missing {
			parts[i] = strconv.FormatInt(id, 10)
		}
		return 0, appErrors.Clone(appErrors.ErrNotFound, "news not found with id: "+strings.Join(parts, ", "))
	}

	s.invalidate(ctx)
	payload, _ := json.Marshal(map[string]interface{}{"ids": ids})
	s.record(ctx, meta, models.AuditActionNewsDelete, 0, payload, nil)
	return len(ids), nil
}

// Export renders every article matching the filter as CSV or PDF.
func (s *NewsService) Export(ctx context.Context, filter models.NewsFilter, format string) (*NewsExport, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}
	items, err := s.repo.Export(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export news")
	}

	data := export.Dataset{
		Title:   "News",
		Headers: []string{"id", "title", "tags", "source", "url", "published_at", "created_at"},
		Rows:    make([][]string, 0, len(items)),
	}
	for _, item := range items {
		published := ""
		if item.PublishedAt != nil {
			published = item.PublishedAt.UTC().Format(models.NewsTimeLayout)
		}
		data.Rows = append(data.Rows, []string{
			strconv.FormatInt(item.ID, 10),
			item.Title,
			deref(item.Tags),
			deref(item.Source),
			deref(item.URL),
			published,
			item.CreatedAt.UTC().Format(models.NewsTimeLayout),
		})
	}

	body, err := renderer.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &NewsExport{
		Filename:    fmt.Sprintf("news-%s.%s", s.now().UTC().Format("20060102-150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

func (s *NewsService) validate(req *models.NewsRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	if req.Tags != nil {
		tags := normaliseTags(*req.Tags)
		req.Tags = &tags
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid news payload")
	}
	return nil
}

func (s *NewsService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, latestCachePattern); err != nil {
		s.logger.Warn("failed to invalidate latest news cache", zap.Error(err))
	}
}

func (s *NewsService) record(ctx context.Context, meta models.RequestMeta, action string, id int64, oldValues, newValues []byte) {
	if s.audit == nil {
		return
	}
	entry := models.AuditLog{
		Action:    action,
		Resource:  "news",
		OldValues: oldValues,
		NewValues: newValues,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	if id > 0 {
		resourceID := strconv.FormatInt(id, 10)
		entry.ResourceID = &resourceID
	}
	if meta.ActorID != "" {
		actor := meta.ActorID
		entry.UserID = &actor
	}
	s.audit.Record(ctx, entry)
}

func applyNewsRequest(item *models.News, req models.NewsRequest) {
	item.Title = req.Title
	item.Summary = req.Summary
	item.Content = req.Content
	item.Tags = req.Tags
	item.Source = req.Source
	item.URL = req.URL
	item.PublishedAt = req.PublishedAt
}

// normaliseTags trims entries and drops empty ones: " tech, ,AI " becomes "tech,AI".
func normaliseTags(raw string) string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func newsNotFound(id int64) error {
	return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("news not found with id: %d", id))
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/voice-news-api/internal/middleware"
	"github.com/noah-isme/voice-news-api/internal/models"
	"github.com/noah-isme/voice-news-api/internal/service"
	appErrors "github.com/noah-isme/voice-news-api/pkg/errors"
	"github.com/noah-isme/voice-news-api/pkg/response"
)

type newsService interface {
	List(ctx context.Context, filter models.NewsFilter) ([]models.News, *models.Pagination, error)
	Latest(ctx context.Context, limit int) ([]models.News, bool, error)
	Get(ctx context.Context, id int64) (*models.News, error)
	Create(ctx context.Context, req models.NewsRequest, meta models.RequestMeta) (*models.News, error)
	Update(ctx context.Context, id int64, req models.NewsRequest, meta models.RequestMeta) (*models.News, error)
	Delete(ctx context.Context, id int64, meta models.RequestMeta) error
	DeleteBatch(ctx context.Context, req models.BatchDeleteNewsRequest, meta models.RequestMeta) (int, error)
	Export(ctx context.Context, filter models.NewsFilter, format string) (*service.NewsExport, error)
}

// NewsHandler exposes the news endpoints.
type NewsHandler struct {
	service newsService
}

// NewNewsHandler constructs a NewsHandler.
func NewNewsHandler(svc newsService) *NewsHandler {
	return &NewsHandler{service: svc}
}

// List godoc
// @Summary List news
// @Description Paginated news, newest first. All filters are optional and combine.
// @Tags News
// @Produce json
// @Param tag query string false "Tag"
// @Param keyword query string false "Title keyword"
// @Param source query string false "Source"
// @Param startDate query string false "Published at or after (yyyy-MM-dd HH:mm:ss)"
// @Param endDate query string false "Published at or before (yyyy-MM-dd HH:mm:ss)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /news [get]
func (h *NewsHandler) List(c *gin.Context) {
	filter, err := newsFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondList(c, filter)
}

// Latest godoc
// @Summary Latest news
// @Tags News
// @Produce json
// @Param limit query int false "Number of articles (default 10, max 100)"
// @Success 200 {object} response.Envelope
// @Router /news/latest [get]
func (h *NewsHandler) Latest(c *gin.Context) {
	items, hit, err := h.service.Latest(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, items, nil, middleware.ExtractMeta(c))
}

// ByTag godoc
// @Summary News by tag
// @Tags News
// @Produce json
// @Param tag query string true "Tag"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /news/by-tag [get]
func (h *NewsHandler) ByTag(c *gin.Context) {
	h.requiredFilter(c, "tag", func(f *models.NewsFilter, v string) { f.Tag = v })
}

// Search godoc
// @Summary Search news titles
// @Tags News
// @Produce json
// @Param keyword query string true "Keyword"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /news/search [get]
func (h *NewsHandler) Search(c *gin.Context) {
	h.requiredFilter(c, "keyword", func(f *models.NewsFilter, v string) { f.Keyword = v })
}

// BySource godoc
// @Summary News by source
// @Tags News
// @Produce json
// @Param source query string true "Source"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /news/by-source [get]
func (h *NewsHandler) BySource(c *gin.Context) {
	h.requiredFilter(c, "source", func(f *models.NewsFilter, v string) { f.Source = v })
}

// ByDateRange godoc
// @Summary News by publication window
// @Tags News
// @Produce json
// @Param startDate query string true "Start (yyyy-MM-dd HH:mm:ss)"
// @Param endDate query string true "End (yyyy-MM-dd HH:mm:ss)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /news/by-date-range [get]
func (h *NewsHandler) ByDateRange(c *gin.Context) {
	if strings.TrimSpace(c.Query("startDate")) == "" || strings.TrimSpace(c.Query("endDate")) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "startDate and endDate are required"))
		return
	}
	filter, err := newsFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respondList(c, filter)
}

// Export godoc
// @Summary Export news
// @Description Download matching news as CSV or PDF
// @Tags News
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param tag query string false "Tag"
// @Param keyword query string false "Title keyword"
// @Param source query string false "Source"
// @Param startDate query string false "Start (yyyy-MM-dd HH:mm:ss)"
// @Param endDate query string false "End (yyyy-MM-dd HH:mm:ss)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /news/export [get]
func (h *NewsHandler) Export(c *gin.Context) {
	filter, err := newsFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	out, err := h.service.Export(c.Request.Context(), filter, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, out.Filename, out.ContentType, out.Body)
}

// Get godoc
// @Summary Get news
// @Tags News
// @Produce json
// @Param id path int true "News ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /news/{id} [get]
func (h *NewsHandler) Get(c *gin.Context) {
	id, ok := newsID(c)
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create news
// @Tags News
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.NewsRequest true "News payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /news [post]
func (h *NewsHandler) Create(c *gin.Context) {
	var req models.NewsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid news payload"))
		return
	}
	item, err := h.service.Create(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update news
// @Description Replace an article. An id in the body must match the path.
// @Tags News
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "News ID"
// @Param payload body models.NewsRequest true "News payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /news/{id} [put]
func (h *NewsHandler) Update(c *gin.Context) {
	id, ok := newsID(c)
	if !ok {
		return
	}
	var req models.NewsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid news payload"))
		return
	}
	item, err := h.service.Update(c.Request.Context(), id, req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete news
// @Tags News
// @Security BearerAuth
// @Param id path int true "News ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /news/{id} [delete]
func (h *NewsHandler) Delete(c *gin.Context) {
	id, ok := newsID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteBatch godoc
// @Summary Delete several news
// @Description Accepts either a bare JSON array of ids or {"ids": [...]}. Nothing is deleted unless every id exists.
// @Tags News
// @Accept json
// @Security BearerAuth
// @Param payload body models.BatchDeleteNewsRequest true "Ids"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /news/batch [delete]
func (h *NewsHandler) DeleteBatch(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, invalidPayload(err, "invalid batch payload"))
		return
	}

	var req models.BatchDeleteNewsRequest
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &req.IDs)
	} else {
		err = json.Unmarshal(trimmed, &req)
	}
	if err != nil {
		response.Error(c, invalidPayload(err, "invalid batch payload"))
		return
	}

	if _, err := h.service.DeleteBatch(c.Request.Context(), req, requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *NewsHandler) requiredFilter(c *gin.Context, param string, apply func(*models.NewsFilter, string)) {
	value := strings.TrimSpace(c.Query(param))
	if value == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, param+" is required"))
		return
	}
	filter := models.NewsFilter{Page: queryInt(c, "page", 1), PageSize: queryInt(c, "page_size", 20)}
	apply(&filter, value)
	h.respondList(c, filter)
}

func (h *NewsHandler) respondList(c *gin.Context, filter models.NewsFilter) {
	items, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

func newsFilterFromQuery(c *gin.Context) (models.NewsFilter, error) {
	from, to, err := service.ParseNewsRange(c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		return models.NewsFilter{}, err
	}
	return models.NewsFilter{
		Tag:      c.Query("tag"),
		Keyword:  c.Query("keyword"),
		Source:   c.Query("source"),
		From:     from,
		To:       to,
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}, nil
}

func newsID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "news id must be a positive integer"))
		return 0, false
	}
	return id, true
}

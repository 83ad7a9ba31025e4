package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/voice-news-api/internal/models"
)

const newsColumns = `id, title, summary, content, tags, source, url, published_at, created_at`

// maxExportRows bounds a single export so a broad filter cannot stream the whole table.
const maxExportRows = 5000

// NewsRepository provides persistence for news articles.
type NewsRepository struct {
	db *sqlx.DB
}

// NewNewsRepository creates the repository.
func NewNewsRepository(db *sqlx.DB) *NewsRepository {
	return &NewsRepository{db: db}
}

// List returns articles matching the filter, newest publication first, with the total count.
func (r *NewsRepository) List(ctx context.Context, filter models.NewsFilter) ([]models.News, int, error) {
	whereClause, args := newsConditions(filter)
	page, pageSize := normalisePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf(`SELECT %s FROM news WHERE %s ORDER BY published_at DESC NULLS LAST, id DESC LIMIT %d OFFSET %d`,
		newsColumns, whereClause, pageSize, (page-1)*pageSize)
	var items []models.News
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list news: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM news WHERE %s", whereClause), args...); err != nil {
		return nil, 0, fmt.Errorf("count news: %w", err)
	}
	return items, total, nil
}

// Export returns up to maxExportRows articles matching the filter, ignoring pagination.
func (r *NewsRepository) Export(ctx context.Context, filter models.NewsFilter) ([]models.News, error) {
	whereClause, args := newsConditions(filter)
	query := fmt.Sprintf(`SELECT %s FROM news WHERE %s ORDER BY published_at DESC NULLS LAST, id DESC LIMIT %d`,
		newsColumns, whereClause, maxExportRows)
	var items []models.News
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("export news: %w", err)
	}
	return items, nil
}

// Latest returns the most recently published articles.
func (r *NewsRepository) Latest(ctx context.Context, limit int) ([]models.News, error) {
	const query = `SELECT ` + newsColumns + ` FROM news ORDER BY published_at DESC NULLS LAST, id DESC LIMIT $1`
	var items []models.News
	if err := r.db.SelectContext(ctx, &items, query, limit); err != nil {
		return nil, fmt.Errorf("latest news: %w", err)
	}
	return items, nil
}

// FindByID returns an article by identifier. sql.ErrNoRows is returned unwrapped.
func (r *NewsRepository) FindByID(ctx context.Context, id int64) (*models.News, error) {
	const query = `SELECT ` + newsColumns + ` FROM news WHERE id = $1`
	var item models.News
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find news: %w", err)
	}
	return &item, nil
}

// Create inserts an article and populates its generated id.
func (r *NewsRepository) Create(ctx context.Context, item *models.News) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO news (title, summary, content, tags, source, url, published_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	row := r.db.QueryRowxContext(ctx, query, item.Title, item.Summary, item.Content, item.Tags, item.Source, item.URL, item.PublishedAt, item.CreatedAt)
	if err := row.Scan(&item.ID); err != nil {
		return fmt.Errorf("create news: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an article. created_at is preserved.
// It returns sql.ErrNoRows when the article does not exist.
func (r *NewsRepository) Update(ctx context.Context, item *models.News) error {
	const query = `UPDATE news SET title = $2, summary = $3, content = $4, tags = $5, source = $6, url = $7, published_at = $8
WHERE id = $1 RETURNING created_at`
	row := r.db.QueryRowxContext(ctx, query, item.ID, item.Title, item.Summary, item.Content, item.Tags, item.Source, item.URL, item.PublishedAt)
	if err := row.Scan(&item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("update news: %w", err)
	}
	return nil
}

// Delete removes an article. It returns sql.ErrNoRows when nothing was deleted.
func (r *NewsRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM news WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete news: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete news rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteBatch removes every listed article or none of them. When some ids do not
// exist it returns them and deletes nothing.
func (r *NewsRepository) DeleteBatch(ctx context.Context, ids []int64) ([]int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing []int64
	if err := tx.SelectContext(ctx, &existing, `SELECT id FROM news WHERE id = ANY($1) FOR UPDATE`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lock news for delete: %w", err)
	}

	found := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		found[id] = struct{}{}
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return missing, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM news WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("batch delete news: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch delete: %w", err)
	}
	return nil, nil
}

func newsConditions(filter models.NewsFilter) (string, []interface{}) {
	conditions := []string{"1=1"}
	var args []interface{}

	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		// tags is a comma separated list; match whole entries only.
		conditions = append(conditions, fmt.Sprintf("(',' || REPLACE(COALESCE(tags, ''), ' ', '') || ',') LIKE $%d", len(args)+1))
		args = append(args, "%,"+escapeLike(strings.ReplaceAll(tag, " ", ""))+",%")
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", len(args)+1))
		args = append(args, "%"+escapeLike(keyword)+"%")
	}
	if source := strings.TrimSpace(filter.Source); source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", len(args)+1))
		args = append(args, source)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("published_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("published_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	return strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}

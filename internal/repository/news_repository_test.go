package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voice-news-api/internal/models"
)

var newsRowColumns = []string{"id", "title", "summary", "content", "tags", "source", "url", "published_at", "created_at"}

func TestNewsListCombinesFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNewsRepository(db)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
	now := time.Now()

	rows := sqlmock.NewRows(newsRowColumns).
		AddRow(int64(7), "AI weekly", "sum", "body", "tech,AI", "wire", "https://example.com/7", from, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, summary, content, tags, source, url, published_at, created_at FROM news WHERE 1=1 AND (',' || REPLACE(COALESCE(tags, ''), ' ', '') || ',') LIKE $1 AND title ILIKE $2 AND published_at >= $3 AND published_at <= $4 ORDER BY published_at DESC NULLS LAST, id DESC LIMIT 5 OFFSET 5")).
		WithArgs("%,AI,%", `%50\%%`, from, to).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM news WHERE 1=1 AND")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))

	items, total, err := repo.List(context.Background(), models.NewsFilter{Tag: " AI ", Keyword: "50%", From: &from, To: &to, Page: 2, PageSize: 5})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(7), items[0].ID)
	require.NotNil(t, items[0].Tags)
	assert.Equal(t, "tech,AI", *items[0].Tags)
	assert.Equal(t, 6, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewsLatest(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNewsRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(newsRowColumns).
		AddRow(int64(2), "second", nil, nil, nil, nil, nil, now, now).
		AddRow(int64(1), "first", nil, nil, nil, nil, nil, nil, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM news ORDER BY published_at DESC NULLS LAST, id DESC LIMIT $1")).
		WithArgs(10).
		WillReturnRows(rows)

	items, err := repo.Latest(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Nil(t, items[1].PublishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewsFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNewsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM news WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 99)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewsCreateReturnsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNewsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO news")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	item := &models.News{Title: "hello"}
	require.NoError(t, repo.Create(context.Background(), item))
	assert.Equal(t, int64(42), item.ID)
	assert.False(t, item.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewsUpdateMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNewsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE news SET")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	err := repo.Update(context.Background(), &models.News{ID: 5, Title: "x"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewsDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNewsRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM news WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM news WHERE id = $1")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), 3))
	assert.ErrorIs(t, repo.Delete(context.Background(), 4), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewsDeleteBatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNewsRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM news WHERE id = ANY($1) FOR UPDATE")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM news WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	missing, err := repo.DeleteBatch(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewsDeleteBatchAllOrNothing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNewsRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM news WHERE id = ANY($1) FOR UPDATE")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectRollback()

	missing, err := repo.DeleteBatch(context.Background(), []int64{1, 8, 9})
	require.NoError(t, err)
	assert.Equal(t, []int64{8, 9}, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

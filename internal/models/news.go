package models

import "time"

// NewsTimeLayout is the wire format for published-at range queries.
const NewsTimeLayout = "2006-01-02 15:04:05"

// News is a single article stored in the news table.
type News struct {
	ID          int64      `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Summary     *string    `db:"summary" json:"summary,omitempty"`
	Content     *string    `db:"content" json:"content,omitempty"`
	Tags        *string    `db:"tags" json:"tags,omitempty"`
	Source      *string    `db:"source" json:"source,omitempty"`
	URL         *string    `db:"url" json:"url,omitempty"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// NewsFilter narrows paginated news listings. Empty fields are ignored.
type NewsFilter struct {
	Tag      string
	Keyword  string
	Source   string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// NewsRequest is the payload for creating or updating an article.
type NewsRequest struct {
	ID          *int64     `json:"id,omitempty"`
	Title       string     `json:"title" validate:"required,max=500"`
	Summary     *string    `json:"summary"`
	Content     *string    `json:"content"`
	Tags        *string    `json:"tags" validate:"omitempty,max=200"`
	Source      *string    `json:"source" validate:"omitempty,max=200"`
	URL         *string    `json:"url" validate:"omitempty,url,max=500"`
	PublishedAt *time.Time `json:"published_at"`
}

// BatchDeleteNewsRequest lists article ids to delete together.
type BatchDeleteNewsRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

// NewsExportFormat enumerates supported export encodings.
type NewsExportFormat string

const (
	NewsExportCSV NewsExportFormat = "csv"
	NewsExportPDF NewsExportFormat = "pdf"
)

package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "News export",
		Headers: []string{"id", "title", "source"},
		Rows: [][]string{
			{"1", "Markets rally, again", "wire"},
			{"2", strings.Repeat("long ", 40), "desk"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,title,source", lines[0])
	assert.Equal(t, `1,"Markets rally, again",wire`, lines[1])
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestRenderRejectsRaggedRows(t *testing.T) {
	data := Dataset{Headers: []string{"a", "b"}, Rows: [][]string{{"only one"}}}
	_, err := NewCSVExporter().Render(data)
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(data)
	assert.Error(t, err)

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestForFormat(t *testing.T) {
	r, err := ForFormat("PDF")
	require.NoError(t, err)
	assert.Equal(t, "pdf", r.Extension())

	r, err = ForFormat("")
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", r.ContentType())

	_, err = ForFormat("xlsx")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b", truncate("a \n b", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

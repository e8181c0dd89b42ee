package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterDataset() Dataset {
	return Dataset{
		Title:   "Enrollment roster",
		Notes:   []string{"Course: Algebra"},
		Headers: []string{"name", "status"},
		Rows: []map[string]string{
			{"name": "Ada, L.", "status": "active"},
			{"name": "Alan", "status": "completed"},
		},
	}
}

func TestRenderCSV(t *testing.T) {
	doc, err := Render("CSV", "roster", rosterDataset())
	require.NoError(t, err)
	assert.Equal(t, "roster.csv", doc.Filename)
	assert.Equal(t, "text/csv", doc.ContentType)
	assert.Equal(t, "# Course: Algebra\nname,status\n\"Ada, L.\",active\nAlan,completed\n", string(doc.Data))
}

func TestRenderPDF(t *testing.T) {
	doc, err := Render(FormatPDF, "roster", rosterDataset())
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF")))
}

func TestRenderRejectsUnknownFormatAndEmptyHeaders(t *testing.T) {
	_, err := Render("xlsx", "roster", rosterDataset())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Render(FormatCSV, "roster", Dataset{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupportedFormat)
}

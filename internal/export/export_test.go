package export

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"todoapi/internal/domain/errors"
	"todoapi/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		token string
		want  struct {
			format Format
			err    error
		}
	}{
		{token: "json", want: struct {
			format Format
			err    error
		}{format: JSON}},
		{token: "csv", want: struct {
			format Format
			err    error
		}{format: CSV}},
		{token: "xml", want: struct {
			format Format
			err    error
		}{err: errors.ErrInvalidExportFormat}},
		{token: "JSON", want: struct {
			format Format
			err    error
		}{err: errors.ErrInvalidExportFormat}},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			format, err := ParseFormat(tt.token)
			if tt.want.err != nil {
				assert.ErrorIs(t, err, tt.want.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.format, format)
		})
	}
}

func TestFormatHeaders(t *testing.T) {
	assert.Equal(t, "attachment; filename=todos.json", JSON.ContentDisposition())
	assert.Equal(t, "attachment; filename=todos.csv", CSV.ContentDisposition())
	assert.Equal(t, "application/json", JSON.ContentType())
	assert.Equal(t, "text/csv", CSV.ContentType())
}

func TestRenderEmpty(t *testing.T) {
	file, err := Render(JSON, nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(file.Data))

	file, err = Render(CSV, nil)
	require.NoError(t, err)
	assert.Equal(t, "ID,Title,Description,Completed,Created At,Updated At\n", string(file.Data))
}

func sampleTasks() []models.Task {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	updated := created.Add(90 * time.Minute)
	description := "2 litres, semi-skimmed"
	return []models.Task{
		{ID: "t1", Title: "Buy milk", Description: &description, Completed: true, UserID: "u1", CreatedAt: created, UpdatedAt: &updated},
		{ID: "t2", Title: "Call \"Bob\"", UserID: "u1", CreatedAt: created},
	}
}

func TestRenderJSON(t *testing.T) {
	file, err := Render(JSON, sampleTasks())
	require.NoError(t, err)
	assert.Equal(t, JSON, file.Format)
	assert.True(t, strings.HasPrefix(string(file.Data), "[\n  {\n    \"id\": \"t1\""))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(file.Data, &decoded))
	require.Len(t, decoded, 2)

	assert.Equal(t, "Buy milk", decoded[0]["title"])
	assert.Equal(t, "2024-03-01T09:30:00Z", decoded[0]["created_at"])
	assert.Equal(t, "2024-03-01T11:00:00Z", decoded[0]["updated_at"])
	assert.Equal(t, true, decoded[0]["completed"])
	assert.Equal(t, "u1", decoded[0]["user_id"])
	assert.Nil(t, decoded[1]["description"])
	assert.Nil(t, decoded[1]["updated_at"])
}

func TestRenderCSV(t *testing.T) {
	file, err := Render(CSV, sampleTasks())
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(file.Data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"t1", "Buy milk", "2 litres, semi-skimmed", "true", "2024-03-01T09:30:00Z", "2024-03-01T11:00:00Z"}, records[1])
	assert.Equal(t, []string{"t2", "Call \"Bob\"", "", "false", "2024-03-01T09:30:00Z", ""}, records[2])
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := Render(Format("yaml"), sampleTasks())
	assert.ErrorIs(t, err, errors.ErrInvalidExportFormat)
}

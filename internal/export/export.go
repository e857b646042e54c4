// Package export renders a task collection as a downloadable payload.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"todoapi/internal/domain/errors"
	"todoapi/internal/domain/models"
)

type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
)

// TimeLayout is the textual timestamp format of every export.
const TimeLayout = time.RFC3339Nano

var csvHeader = []string{"ID", "Title", "Description", "Completed", "Created At", "Updated At"}

// ParseFormat validates a format token. Unknown tokens are a client error.
func ParseFormat(token string) (Format, error) {
	switch Format(token) {
	case JSON, CSV:
		return Format(token), nil
	}
	return "", errors.ErrInvalidExportFormat
}

func (f Format) ContentType() string {
	if f == CSV {
		return "text/csv"
	}
	return "application/json"
}

func (f Format) Filename() string {
	return "todos." + string(f)
}

// ContentDisposition marks the payload as a save-as download.
func (f Format) ContentDisposition() string {
	return "attachment; filename=" + f.Filename()
}

// File is a rendered export.
type File struct {
	Format Format
	Data   []byte
}

func Render(format Format, tasks []models.Task) (*File, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case JSON:
		data, err = renderJSON(tasks)
	case CSV:
		data, err = renderCSV(tasks)
	default:
		return nil, errors.ErrInvalidExportFormat
	}
	if err != nil {
		return nil, fmt.Errorf("render %s export: %w", format, err)
	}
	return &File{Format: format, Data: data}, nil
}

type jsonTask struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Completed   bool    `json:"completed"`
	UserID      string  `json:"user_id"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   *string `json:"updated_at"`
}

func renderJSON(tasks []models.Task) ([]byte, error) {
	rows := make([]jsonTask, 0, len(tasks))
	for _, t := range tasks {
		row := jsonTask{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Completed:   t.Completed,
			UserID:      t.UserID,
			CreatedAt:   formatTime(t.CreatedAt),
		}
		if t.UpdatedAt != nil {
			updated := formatTime(*t.UpdatedAt)
			row.UpdatedAt = &updated
		}
		rows = append(rows, row)
	}
	return json.MarshalIndent(rows, "", "  ")
}

func renderCSV(tasks []models.Task) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, t := range tasks {
		description := ""
		if t.Description != nil {
			description = *t.Description
		}
		updated := ""
		if t.UpdatedAt != nil {
			updated = formatTime(*t.UpdatedAt)
		}
		record := []string{
			t.ID,
			t.Title,
			description,
			strconv.FormatBool(t.Completed),
			formatTime(t.CreatedAt),
			updated,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

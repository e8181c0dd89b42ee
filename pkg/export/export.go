package export

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat is returned by Render for a format it cannot produce.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Supported export formats.
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

// Dataset defines tabular export content.
type Dataset struct {
	Title   string
	Notes   []string
	Headers []string
	Rows    []map[string]string
}

// Document is a rendered export ready to be streamed.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Render dispatches to the renderer for format and names the output after base.
func Render(format, base string, data Dataset) (*Document, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatCSV
	}
	switch format {
	case FormatCSV:
		payload, err := NewCSVExporter().Render(data)
		if err != nil {
			return nil, fmt.Errorf("render csv: %w", err)
		}
		return &Document{Filename: base + ".csv", ContentType: "text/csv", Data: payload}, nil
	case FormatPDF:
		payload, err := NewPDFExporter().Render(data)
		if err != nil {
			return nil, fmt.Errorf("render pdf: %w", err)
		}
		return &Document{Filename: base + ".pdf", ContentType: "application/pdf", Data: payload}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}
}

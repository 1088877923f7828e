// Package render encodes report data as CSV, JSON or PDF files.
package render

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/pulse/domain/export"
	"github.com/artpar/pulse/domain/report"
	"github.com/artpar/pulse/ports"
)

// ForFormat returns the renderer of f.
func ForFormat(f export.Format) (ports.Renderer, error) {
	switch f {
	case export.FormatCSV:
		return CSV{}, nil
	case export.FormatJSON:
		return JSON{}, nil
	case export.FormatPDF:
		return PDF{}, nil
	}
	return nil, fmt.Errorf("%w: %q", export.ErrUnsupportedFormat, f)
}

// All returns one renderer per supported format.
func All() map[export.Format]ports.Renderer {
	return map[export.Format]ports.Renderer{
		export.FormatCSV:  CSV{},
		export.FormatJSON: JSON{},
		export.FormatPDF:  PDF{},
	}
}

// CSV writes the report table with a header row.
type CSV struct{}

func (CSV) Format() export.Format { return export.FormatCSV }

func (CSV) Render(data any, tmpl report.Template, _ report.Meta) ([]byte, error) {
	t, err := tmpl.Table(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Headers); err != nil {
		return nil, err
	}
	for _, row := range t.Rows {
		if err := w.Write(escapeRow(row)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// escapeRow neutralises cells a spreadsheet would evaluate as formulas.
func escapeRow(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		if cell != "" && strings.ContainsRune("=+@", rune(cell[0])) {
			cell = "'" + cell
		}
		out[i] = cell
	}
	return out
}

// JSON writes the raw report data with export metadata.
type JSON struct{}

type jsonEnvelope struct {
	ProjectID   string    `json:"projectId"`
	ReportType  string    `json:"reportType"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	GeneratedAt time.Time `json:"generatedAt"`
	Data        any       `json:"data"`
}

func (JSON) Format() export.Format { return export.FormatJSON }

func (JSON) Render(data any, _ report.Template, meta report.Meta) ([]byte, error) {
	return json.MarshalIndent(jsonEnvelope{
		ProjectID:   meta.ProjectID,
		ReportType:  string(meta.ReportType),
		Start:       meta.Range.Start,
		End:         meta.Range.End,
		GeneratedAt: meta.GeneratedAt,
		Data:        data,
	}, "", "  ")
}

// Interface compliance checks.
var (
	_ ports.Renderer = CSV{}
	_ ports.Renderer = JSON{}
	_ ports.Renderer = PDF{}
)

// Package report turns analytics results into renderer-neutral shapes: a
// table for tabular formats and a titled, sectioned document for paged
// formats. Each report type registers one template pair.
package report

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/artpar/pulse/domain/analytics"
	"github.com/artpar/pulse/domain/export"
)

// ErrDataType is returned when a template receives data of the wrong type.
var ErrDataType = errors.New("unexpected report data type")

// Table is a header row plus data rows.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Section is one titled block of a document. Fields are label/value pairs
// rendered before the optional table.
type Section struct {
	Heading string
	Fields  [][2]string
	Table   *Table
}

// Document is a titled, sectioned report.
type Document struct {
	Title    string
	Subtitle string
	Sections []Section
}

// Meta describes the export a document belongs to.
type Meta struct {
	ProjectID   string
	ReportType  export.ReportType
	Range       analytics.Range
	GeneratedAt time.Time
}

// Template is the renderer pair of a report type.
type Template struct {
	Table    func(data any) (Table, error)
	Document func(data any, meta Meta) (Document, error)
}

func newTemplate[T any](table func(T) Table, doc func(T, Meta) Document) Template {
	cast := func(data any) (T, error) {
		v, ok := data.(T)
		if !ok {
			var zero T
			return zero, fmt.Errorf("%w: %T, want %T", ErrDataType, data, zero)
		}
		return v, nil
	}
	return Template{
		Table: func(data any) (Table, error) {
			v, err := cast(data)
			if err != nil {
				return Table{}, err
			}
			return table(v), nil
		},
		Document: func(data any, meta Meta) (Document, error) {
			v, err := cast(data)
			if err != nil {
				return Document{}, err
			}
			return doc(v, meta), nil
		},
	}
}

var templates = map[export.ReportType]Template{
	export.ReportOverview:  newTemplate(overviewTable, overviewDocument),
	export.ReportEvents:    newTemplate(eventsTable, eventsDocument),
	export.ReportUsers:     newTemplate(usersTable, usersDocument),
	export.ReportRetention: newTemplate(retentionTable, retentionDocument),
	export.ReportFunnel:    newTemplate(funnelTable, funnelDocument),
	export.ReportSessions:  newTemplate(sessionsTable, sessionsDocument),
	export.ReportScreens:   newTemplate(screensTable, screensDocument),
}

// Lookup returns the template of a report type.
func Lookup(rt export.ReportType) (Template, bool) {
	t, ok := templates[rt]
	return t, ok
}

// Types returns every report type with a template.
func Types() []export.ReportType {
	out := make([]export.ReportType, 0, len(templates))
	for rt := range templates {
		out = append(out, rt)
	}
	return out
}

func header(title string, meta Meta) Document {
	return Document{
		Title: title,
		Subtitle: fmt.Sprintf("Project %s | %s to %s | generated %s",
			meta.ProjectID,
			meta.Range.Start.Format("2006-01-02"),
			meta.Range.End.Format("2006-01-02"),
			meta.GeneratedAt.UTC().Format(time.RFC3339)),
	}
}

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }

func day(t time.Time) string { return t.UTC().Format("2006-01-02") }

func countsTable(nameHeader string, counts []analytics.NamedCount) *Table {
	t := &Table{Headers: []string{nameHeader, "Count"}}
	for _, c := range counts {
		t.Rows = append(t.Rows, []string{c.Name, itoa(c.Count)})
	}
	return t
}

func seriesTable(points []analytics.Point, valueHeader string) *Table {
	t := &Table{Headers: []string{"Period", valueHeader}}
	for _, p := range points {
		t.Rows = append(t.Rows, []string{p.Time.UTC().Format(time.RFC3339), itoa(p.Value)})
	}
	return t
}

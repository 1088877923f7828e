package render_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/artpar/pulse/adapters/render"
	"github.com/artpar/pulse/domain/analytics"
	"github.com/artpar/pulse/domain/export"
	"github.com/artpar/pulse/domain/report"
)

var baseTime = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func overview() analytics.Overview {
	return analytics.Overview{
		DAU:        analytics.NewTrend(120, 100),
		MAU:        analytics.NewTrend(900, 900),
		TopScreens: []analytics.NamedCount{{Name: "=Home", Count: 40}},
	}
}

func meta() report.Meta {
	return report.Meta{
		ProjectID:   "proj-1",
		ReportType:  export.ReportOverview,
		Range:       analytics.Range{Start: baseTime.AddDate(0, 0, -7), End: baseTime},
		GeneratedAt: baseTime,
	}
}

func template(t *testing.T) report.Template {
	t.Helper()
	tmpl, ok := report.Lookup(export.ReportOverview)
	if !ok {
		t.Fatal("overview template missing")
	}
	return tmpl
}

func TestCSV(t *testing.T) {
	out, err := render.CSV{}.Render(overview(), template(t), meta())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if lines[0] != "Metric,Current,Previous,Change %" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "dau,120.00,100.00,20.00" {
		t.Errorf("dau row = %q", lines[1])
	}
}

func TestCSV_WrongData(t *testing.T) {
	_, err := render.CSV{}.Render("nope", template(t), meta())
	if !errors.Is(err, report.ErrDataType) {
		t.Errorf("err = %v, want ErrDataType", err)
	}
}

func TestJSON(t *testing.T) {
	out, err := render.JSON{}.Render(overview(), template(t), meta())
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	var got struct {
		ProjectID  string `json:"projectId"`
		ReportType string `json:"reportType"`
		Data       struct {
			DAU analytics.Trend `json:"dau"`
		} `json:"data"`
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ProjectID != "proj-1" || got.ReportType != "overview" {
		t.Errorf("envelope = %+v", got)
	}
	if got.Data.DAU.Current != 120 {
		t.Errorf("dau = %v, want 120", got.Data.DAU.Current)
	}
}

func TestPDF(t *testing.T) {
	out, err := render.PDF{}.Render(overview(), template(t), meta())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Errorf("output does not look like a PDF: %q", out[:min(len(out), 16)])
	}
}

func TestForFormat(t *testing.T) {
	for _, f := range []export.Format{export.FormatCSV, export.FormatJSON, export.FormatPDF} {
		r, err := render.ForFormat(f)
		if err != nil {
			t.Fatalf("ForFormat(%s): %v", f, err)
		}
		if r.Format() != f {
			t.Errorf("Format() = %s, want %s", r.Format(), f)
		}
	}
	if _, err := render.ForFormat("xlsx"); !errors.Is(err, export.ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

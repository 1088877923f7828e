package render

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/artpar/pulse/domain/export"
	"github.com/artpar/pulse/domain/report"
)

const (
	pageWidth  = 210.0
	margin     = 15.0
	lineHeight = 6.0
	fontFamily = "Helvetica"
)

// PDF lays the report document out on A4 pages.
type PDF struct{}

func (PDF) Format() export.Format { return export.FormatPDF }

func (PDF) Render(data any, tmpl report.Template, meta report.Meta) ([]byte, error) {
	doc, err := tmpl.Document(data, meta)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetCreationDate(meta.GeneratedAt)
	pdf.SetModificationDate(meta.GeneratedAt)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(doc.Title), false)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-margin)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.CellFormat(0, lineHeight, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 18)
	pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, lineHeight, tr(doc.Subtitle), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	for _, s := range doc.Sections {
		writeSection(pdf, tr, s)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSection(pdf *fpdf.Fpdf, tr func(string) string, s report.Section) {
	pdf.SetFont(fontFamily, "B", 13)
	pdf.CellFormat(0, 8, tr(s.Heading), "", 1, "L", false, 0, "")

	pdf.SetFont(fontFamily, "", 10)
	for _, f := range s.Fields {
		pdf.SetFont(fontFamily, "B", 10)
		pdf.CellFormat(60, lineHeight, tr(f[0]), "", 0, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 10)
		pdf.CellFormat(0, lineHeight, tr(f[1]), "", 1, "L", false, 0, "")
	}

	if s.Table != nil && len(s.Table.Headers) > 0 {
		writeTable(pdf, tr, s.Table)
	}
	pdf.Ln(4)
}

func writeTable(pdf *fpdf.Fpdf, tr func(string) string, t *report.Table) {
	width := (pageWidth - 2*margin) / float64(len(t.Headers))

	pdf.SetFont(fontFamily, "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, h := range t.Headers {
		pdf.CellFormat(width, lineHeight+1, tr(h), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(fontFamily, "", 9)
	if len(t.Rows) == 0 {
		pdf.CellFormat(width*float64(len(t.Headers)), lineHeight, "No data", "1", 1, "C", false, 0, "")
		return
	}
	for _, row := range t.Rows {
		for i := range t.Headers {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			pdf.CellFormat(width, lineHeight, tr(cell), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

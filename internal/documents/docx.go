package documents

import (
	"bytes"
	"fmt"

	"github.com/fumiama/go-docx"
)

const ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// usable width of an A4 page with 1in margins, in twips
const tableWidthTwips = 9026

// run sizes in half-points
const (
	titleSize    = "40"
	heading1Size = "32"
	heading2Size = "26"
)

// WriteDOCX serialises d as a WordprocessingML package.
func WriteDOCX(d *Doc) ([]byte, error) {
	w := docx.New().WithDefaultTheme()
	w.AddParagraph().Justification("center").AddText(d.Title).Bold().Size(titleSize)
	for _, b := range d.Blocks {
		switch b.Kind {
		case BlockHeading:
			size := heading1Size
			if b.Level >= 2 {
				size = heading2Size
			}
			w.AddParagraph().AddText(b.Text).Bold().Size(size)
		case BlockParagraph:
			w.AddParagraph().AddText(b.Text)
		case BlockBullet:
			w.AddParagraph().AddText("• " + b.Text)
		case BlockTable:
			addTable(w, b.Header, b.Rows)
		}
	}
	// section properties close the body
	w.WithA4Page()

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("docx write: %w", err)
	}
	return buf.Bytes(), nil
}

// addTable writes a bold header row and one row per entry. Short rows are
// padded with empty cells; every cell carries a paragraph.
func addTable(w *docx.Docx, header []string, rows [][]string) {
	if len(header) == 0 {
		return
	}
	tbl := w.AddTable(len(rows)+1, len(header), tableWidthTwips, nil)
	for j, h := range header {
		tbl.TableRows[0].TableCells[j].AddParagraph().AddText(h).Bold()
	}
	for i, r := range rows {
		for j := range header {
			text := ""
			if j < len(r) {
				text = r[j]
			}
			tbl.TableRows[i+1].TableCells[j].AddParagraph().AddText(text)
		}
	}
	// Word requires a paragraph between a table and what follows.
	w.AddParagraph()
}

package documents

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fumiama/go-docx"
	"github.com/google/uuid"

	types "github.com/yungbote/quoteflow-backend/internal/domain"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/pricing"
	"github.com/yungbote/quoteflow-backend/internal/requirements"
)

func testInput(t *testing.T) Input {
	t.Helper()
	tree, err := requirements.Parse([]byte(`{
		"customer_pain_points": ["人工上下料太慢"],
		"workpiece": {"weight_range": "2-5kg", "material": "鋁", "dimensions": null},
		"process": {"count": 3, "needs_flip": true},
		"constraints": {"budget": "300萬"},
		"open_questions": ["節拍目標？"]
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	industry := "汽車零件"
	c := &types.Case{ID: uuid.New(), Title: "CNC 上下料", Industry: &industry, CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	run := &types.ExtractionRun{ID: uuid.New(), CaseID: c.ID}
	long := strings.Repeat("重", 120)
	return Input{
		Case:         c,
		RequestedRun: &run.ID,
		Run:          run,
		Requirements: &tree,
		Evidence: []*types.Evidence{
			{FieldPath: "workpiece.weight_range", Snippet: "大概兩到五公斤"},
			{FieldPath: "workpiece.material", Snippet: long},
		},
	}
}

func withPlans(t *testing.T, in Input) Input {
	t.Helper()
	e := pricing.NewEngine(pricing.LoadCatalog("", logger.Nop()), logger.Nop())
	items, err := e.QuoteItems(pricing.PlanP1)
	if err != nil {
		t.Fatalf("QuoteItems: %v", err)
	}
	p := &types.Plan{PlanCode: pricing.PlanP1, Name: "基本方案", Items: items}
	in.Plans = []QuotePlan{{Plan: p, Totals: pricing.ComputeTotals(items, 10, 5)}}
	return in
}

func texts(d *Doc) []string {
	var out []string
	for _, b := range d.Blocks {
		if b.Kind != BlockTable {
			out = append(out, b.Text)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func TestBuildSpec(t *testing.T) {
	d, err := Build("spec", testInput(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if d.Title != "需求規格書" {
		t.Fatalf("title=%q", d.Title)
	}
	got := texts(d)
	for _, want := range []string{"案件名稱：CNC 上下料", "產業別：汽車零件", "人工上下料太慢", "weight_range：2-5kg", "count：3", "needs_flip：是", "budget：300萬", "節拍目標？"} {
		if !contains(got, want) {
			t.Fatalf("missing %q in %v", want, got)
		}
	}
	for _, s := range got {
		if strings.HasPrefix(s, "dimensions") {
			t.Fatalf("null field rendered: %q", s)
		}
	}
}

func TestBuildReportTable(t *testing.T) {
	d, err := Build("report", testInput(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var tbl *Block
	for i := range d.Blocks {
		if d.Blocks[i].Kind == BlockTable {
			tbl = &d.Blocks[i]
		}
	}
	if tbl == nil {
		t.Fatalf("no table")
	}
	rows := map[string][]string{}
	for _, r := range tbl.Rows {
		rows[r[0]] = r
	}
	if r := rows["workpiece.weight_range"]; r[1] != "2-5kg" || r[2] != "大概兩到五公斤" {
		t.Fatalf("weight_range row=%v", r)
	}
	if r := rows["workpiece.dimensions"]; r[1] != "N/A" {
		t.Fatalf("dimensions row=%v", r)
	}
	if r := rows["workpiece.material"]; len([]rune(r[2])) != 103 || !strings.HasSuffix(r[2], "...") {
		t.Fatalf("evidence not truncated: %d runes", len([]rune(r[2])))
	}
	if _, ok := rows["process.needs_flip"]; !ok {
		t.Fatalf("process rows missing")
	}
}

func TestBuildQuote(t *testing.T) {
	in := withPlans(t, testInput(t))
	d, err := Build("quote", in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := texts(d)
	if !contains(got, "日期：2026-03-01") {
		t.Fatalf("missing date in %v", got)
	}
	if !contains(got, "P1 - 基本方案") {
		t.Fatalf("missing plan heading in %v", got)
	}
	var sawTax bool
	for _, s := range got {
		if strings.HasPrefix(s, "營業稅（5%）") {
			sawTax = true
		}
	}
	if !sawTax {
		t.Fatalf("missing tax line in %v", got)
	}
}

func TestBuildMissingInput(t *testing.T) {
	in := testInput(t)
	if _, err := Build("quote", in); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("quote without plans: %v", err)
	}
	in.Requirements = nil
	if _, err := Build("spec", in); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("spec without requirements: %v", err)
	}
	if _, err := Build("memo", testInput(t)); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0"},
		{999, "$999"},
		{1234567.4, "$1,234,567"},
		{1200000, "$1,200,000"},
	}
	for _, tc := range tests {
		if got := money(tc.in); got != tc.want {
			t.Fatalf("money(%v)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestWriteDOCX(t *testing.T) {
	d, err := Build("spec", testInput(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d.para(`A & B <c>`)
	b, err := WriteDOCX(d)
	if err != nil {
		t.Fatalf("WriteDOCX: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	parts := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		parts[f.Name] = string(data)
	}
	for _, name := range []string{"[Content_Types].xml", "_rels/.rels", "word/document.xml", "word/styles.xml"} {
		if _, ok := parts[name]; !ok {
			t.Fatalf("missing part %s", name)
		}
	}
	doc := parts["word/document.xml"]
	if !strings.Contains(doc, "需求規格書") || !strings.Contains(doc, "A &amp; B &lt;c&gt;") {
		t.Fatalf("document.xml content unexpected")
	}

	parsed, err := docx.Parse(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		t.Fatalf("docx.Parse: %v", err)
	}
	var tables int
	for _, it := range parsed.Document.Body.Items {
		if _, ok := it.(*docx.Table); ok {
			tables++
		}
	}
	var wantTables int
	for _, blk := range d.Blocks {
		if blk.Kind == BlockTable && len(blk.Header) > 0 {
			wantTables++
		}
	}
	if tables != wantTables {
		t.Fatalf("tables: got %d want %d", tables, wantTables)
	}
}

func TestMarkdownAndPreview(t *testing.T) {
	d, err := Build("report", testInput(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d.para("<script>x</script>")
	out := Markdown(d)
	if !strings.HasPrefix(out, "# 需求報告表\n") {
		t.Fatalf("markdown head: %q", out[:40])
	}
	if !strings.Contains(out, "| 欄位 | 內容 | 證據 |") {
		t.Fatalf("markdown table missing")
	}
	html, err := PreviewHTML(d)
	if err != nil {
		t.Fatalf("PreviewHTML: %v", err)
	}
	if !strings.Contains(html, "<table>") || !strings.Contains(html, "<h1") {
		t.Fatalf("preview html missing table or heading: %s", html)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("raw html passed through")
	}
}

func TestRendererFilenames(t *testing.T) {
	r := NewRenderer(logger.Nop())
	in := testInput(t)
	for _, format := range []string{"docx", "pdf"} {
		out, err := r.Render(in, "spec", format)
		if err != nil {
			t.Fatalf("Render %s: %v", format, err)
		}
		want := "spec_" + in.Case.ID.String() + "_" + in.Run.ID.String() + ".docx"
		if out.Filename != want || out.ContentType != ContentTypeDOCX {
			t.Fatalf("%s: filename=%q ct=%q", format, out.Filename, out.ContentType)
		}
		if len(out.Bytes) == 0 {
			t.Fatalf("%s: empty bytes", format)
		}
	}
	if _, err := r.Render(in, "spec", "odt"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if got := Filename("quote", in.Case.ID, nil); got != "quote_"+in.Case.ID.String()+"_latest.docx" {
		t.Fatalf("Filename=%q", got)
	}
}

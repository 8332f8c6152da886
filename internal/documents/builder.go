package documents

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	types "github.com/yungbote/quoteflow-backend/internal/domain"
	docdomain "github.com/yungbote/quoteflow-backend/internal/domain/documents"
	"github.com/yungbote/quoteflow-backend/internal/pricing"
	"github.com/yungbote/quoteflow-backend/internal/requirements"
)

// ErrMissingInput means the case lacks what a document type needs:
// requirements for spec and report, plans for quote.
var ErrMissingInput = errors.New("document input missing")

const evidenceSnippetRunes = 100

type QuotePlan struct {
	Plan   *types.Plan
	Totals pricing.Totals
}

type Input struct {
	Case *types.Case
	// RequestedRun is the run the caller named; nil means latest.
	RequestedRun *uuid.UUID
	Run          *types.ExtractionRun
	Requirements *requirements.Tree
	Evidence     []*types.Evidence
	Plans        []QuotePlan
}

// Build assembles the block model for docType.
func Build(docType string, in Input) (*Doc, error) {
	if in.Case == nil {
		return nil, fmt.Errorf("%w: case", ErrMissingInput)
	}
	switch docType {
	case docdomain.TypeSpec:
		return buildSpec(in)
	case docdomain.TypeReport:
		return buildReport(in)
	case docdomain.TypeQuote:
		return buildQuote(in)
	default:
		return nil, fmt.Errorf("unknown document type %q", docType)
	}
}

func buildSpec(in Input) (*Doc, error) {
	if in.Requirements == nil {
		return nil, fmt.Errorf("%w: requirements", ErrMissingInput)
	}
	tree := *in.Requirements
	d := newDoc("需求規格書")
	d.heading(1, "案件資訊")
	d.para("案件名稱：" + in.Case.Title)
	if in.Case.Industry != nil && *in.Case.Industry != "" {
		d.para("產業別：" + *in.Case.Industry)
	}
	d.heading(1, "需求內容")

	if len(tree.CustomerPainPoints) > 0 {
		d.heading(2, "客戶痛點")
		for _, p := range tree.CustomerPainPoints {
			if s := p.String(); s != "" {
				d.bullet(s)
			}
		}
	}
	sections := []struct {
		title string
		v     any
	}{
		{"工件資訊", &tree.Workpiece},
		{"製程資訊", &tree.Process},
		{"限制條件", &tree.Constraints},
	}
	for _, sec := range sections {
		entries := populated(sectionEntries(sec.v))
		if len(entries) == 0 {
			continue
		}
		d.heading(2, sec.title)
		for _, e := range entries {
			d.para(e.key + "：" + e.value.String())
		}
	}
	if len(tree.OpenQuestions) > 0 {
		d.heading(2, "開放問題")
		for _, q := range tree.OpenQuestions {
			d.bullet(q)
		}
	}
	return d, nil
}

func buildReport(in Input) (*Doc, error) {
	if in.Requirements == nil {
		return nil, fmt.Errorf("%w: requirements", ErrMissingInput)
	}
	tree := *in.Requirements
	d := newDoc("需求報告表")
	var rows [][]string
	add := func(prefix string, v any) {
		for _, e := range sectionEntries(v) {
			path := prefix + "." + e.key
			content := "N/A"
			if !isFalsy(e.value.Any()) {
				content = e.value.String()
			}
			rows = append(rows, []string{path, content, evidenceFor(in.Evidence, path)})
		}
	}
	add(requirements.SectionWorkpiece, &tree.Workpiece)
	add(requirements.SectionProcess, &tree.Process)
	d.table([]string{"欄位", "內容", "證據"}, rows)
	return d, nil
}

func buildQuote(in Input) (*Doc, error) {
	if len(in.Plans) == 0 {
		return nil, fmt.Errorf("%w: plans", ErrMissingInput)
	}
	d := newDoc("報價單")
	d.para("案件名稱：" + in.Case.Title)
	d.para("日期：" + in.Case.CreatedAt.Format("2006-01-02"))
	for _, qp := range in.Plans {
		p := qp.Plan
		if p == nil {
			continue
		}
		d.heading(1, p.PlanCode+" - "+p.Name)
		rows := make([][]string, 0, len(p.Items))
		for _, it := range p.Items {
			rows = append(rows, []string{
				it.Category,
				it.ItemName,
				it.Spec,
				formatQty(it.Qty) + " " + it.Unit,
				moneyRange(it.UnitPriceLow, it.UnitPriceHigh),
				moneyRange(it.SubtotalLow, it.SubtotalHigh),
			})
		}
		d.table([]string{"類別", "項目名稱", "規格", "數量", "單價（低-高）", "小計（低-高）"}, rows)
		t := qp.Totals
		d.para("小計：" + moneyRange(t.TotalLow, t.TotalHigh))
		d.para(fmt.Sprintf("預備費（%s%%）：%s", formatQty(t.ContingencyPercent), money(t.Contingency)))
		d.para("合計：" + moneyRange(t.GrandLow, t.GrandHigh))
		if t.TaxPercent > 0 {
			d.para(fmt.Sprintf("營業稅（%s%%）：%s", formatQty(t.TaxPercent), moneyRange(t.TaxLow, t.TaxHigh)))
		}
	}
	return d, nil
}

type entry struct {
	key   string
	value requirements.Value
}

// sectionEntries lists a section's keys in serialised order: named fields
// first, then extension keys sorted by name.
func sectionEntries(section any) []entry {
	b, err := json.Marshal(section)
	if err != nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil
	}
	var out []entry
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return out
		}
		key, _ := kt.(string)
		var v requirements.Value
		if err := dec.Decode(&v); err != nil {
			return out
		}
		out = append(out, entry{key: key, value: v})
	}
	return out
}

func populated(entries []entry) []entry {
	out := entries[:0]
	for _, e := range entries {
		if !isFalsy(e.value.Any()) {
			out = append(out, e)
		}
	}
	return out
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func evidenceFor(ev []*types.Evidence, path string) string {
	for _, e := range ev {
		if e != nil && e.FieldPath == path {
			return truncateRunes(e.Snippet, evidenceSnippetRunes)
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func money(v float64) string {
	return "$" + humanize.Comma(int64(math.Round(v)))
}

func moneyRange(low, high float64) string {
	return money(low) + " - " + money(high)
}

func formatQty(v float64) string {
	return strings.TrimSuffix(strconv.FormatFloat(v, 'f', -1, 64), ".0")
}

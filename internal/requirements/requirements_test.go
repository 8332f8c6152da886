package requirements

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/transcript"
)

func TestValidateEmptyTree(t *testing.T) {
	tree, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res := Validate(tree)
	if res.Valid {
		t.Fatalf("empty tree should be invalid")
	}
	if len(res.MissingFields) != 4 || len(res.OpenQuestions) != 4 {
		t.Fatalf("expected 4 missing and 4 questions, got %v / %v", res.MissingFields, res.OpenQuestions)
	}
	if res.OpenQuestions[0] != "缺少必要欄位：workpiece.weight_range" {
		t.Fatalf("unexpected question text %q", res.OpenQuestions[0])
	}
}

func TestValidatePopulatedTree(t *testing.T) {
	tree, err := Parse([]byte(`{
		"workpiece": {"weight_range": "10-50kg"},
		"process": {"count": 3, "needs_flip": true},
		"machines": {"count": 2}
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res := Validate(tree)
	if !res.Valid || len(res.MissingFields) != 0 {
		t.Fatalf("expected valid, got %+v", res)
	}
}

func TestValidateFalsyValues(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{"false flip and zero count", `{"workpiece":{"weight_range":"x"},"process":{"count":0,"needs_flip":false},"machines":{"count":1}}`, []string{"process.count", "process.needs_flip"}},
		{"machines not a map", `{"workpiece":{"weight_range":"x"},"process":{"count":1,"needs_flip":true},"machines":[1,2]}`, []string{"machines.count"}},
		{"empty list and map", `{"workpiece":{"weight_range":[]},"process":{"count":{},"needs_flip":"yes"},"machines":{"count":"2"}}`, []string{"workpiece.weight_range", "process.count"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tree, err := Parse([]byte(tc.doc))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			res := Validate(tree)
			if len(res.MissingFields) != len(tc.want) {
				t.Fatalf("missing=%v want %v", res.MissingFields, tc.want)
			}
			for i := range tc.want {
				if res.MissingFields[i] != tc.want[i] {
					t.Fatalf("missing=%v want %v", res.MissingFields, tc.want)
				}
			}
		})
	}
}

func TestValidateDedupesQuestions(t *testing.T) {
	tree := Tree{OpenQuestions: []string{"缺少必要欄位：machines.count", "預算上限？"}}
	res := Validate(tree)
	count := 0
	for _, q := range res.OpenQuestions {
		if q == "缺少必要欄位：machines.count" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("question duplicated: %v", res.OpenQuestions)
	}
	if res.OpenQuestions[1] != "預算上限？" {
		t.Fatalf("existing questions should keep their order: %v", res.OpenQuestions)
	}
	if len(tree.OpenQuestions) != 2 {
		t.Fatalf("Validate must not modify its input")
	}
}

func TestTreeRoundTripKeepsUnknownKeys(t *testing.T) {
	in := `{"workpiece":{"weight_range":"10-50kg","surface":"oily"},"machines":{"count":2},"products":[{"name":"A"}],"open_questions":[{"question":"節拍？","priority":"high"},"預算？"]}`
	tree, err := Parse([]byte(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tree.Workpiece.WeightRange.String() != "10-50kg" {
		t.Fatalf("weight_range=%q", tree.Workpiece.WeightRange.String())
	}
	if len(tree.OpenQuestions) != 2 || tree.OpenQuestions[0] != "節拍？" {
		t.Fatalf("open questions=%v", tree.OpenQuestions)
	}
	m := tree.Map()
	if Lookup(m, "workpiece.surface") != "oily" {
		t.Fatalf("section extension lost: %v", m["workpiece"])
	}
	if Lookup(m, "machines.count") != float64(2) {
		t.Fatalf("top-level extension lost: %v", m["machines"])
	}
	if _, ok := m["products"].([]any); !ok {
		t.Fatalf("non-object section not preserved: %v", m["products"])
	}

	again, err := Parse(mustJSON(t, tree))
	if err != nil {
		t.Fatalf("re-Parse: %v", err)
	}
	if string(mustJSON(t, again)) != string(mustJSON(t, tree)) {
		t.Fatalf("round trip changed the document")
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

type fakeLLM struct {
	resp  map[string]any
	err   error
	calls int
	user  string
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user string) (map[string]any, error) {
	f.calls++
	f.user = user
	return f.resp, f.err
}
func (f *fakeLLM) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", nil
}
func (f *fakeLLM) Model() string { return "fake-model" }

func TestExtractAlignsEvidence(t *testing.T) {
	text := "客戶提到需要自動化生產線\n工件重量範圍：10-50kg\n需要翻轉工序\n"
	segs := transcript.Split(text)
	llm := &fakeLLM{resp: map[string]any{
		"requirements": map[string]any{
			"workpiece": map[string]any{"weight_range": "10-50kg"},
		},
		"confidence": map[string]any{"workpiece": 0.9, "process": "1.4"},
		"evidence": []any{
			map[string]any{"field_path": "workpiece.weight_range", "snippet": "10-50KG", "start_char": 20.0, "end_char": 27.0, "segment_idx": 99.0},
			map[string]any{"field_path": "process.needs_flip", "snippet": "not in transcript"},
		},
	}}
	out, err := NewExtractor(llm, logger.Nop()).Extract(context.Background(), text, segs)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if llm.calls != 1 {
		t.Fatalf("expected exactly one model call, got %d", llm.calls)
	}
	if out.PromptHash != PromptHash(llm.user) || len(out.PromptHash) != 64 {
		t.Fatalf("prompt hash mismatch")
	}
	if out.Model != "fake-model" {
		t.Fatalf("model=%q", out.Model)
	}
	if out.Evidence[0].SegmentIdx == nil || *out.Evidence[0].SegmentIdx != 1 {
		t.Fatalf("evidence not aligned locally: %v", out.Evidence[0].SegmentIdx)
	}
	if out.Evidence[1].SegmentIdx != nil {
		t.Fatalf("unmatched snippet should stay unresolved")
	}
	if out.Confidence["process"] != 1 || out.Confidence["workpiece"] != 0.9 {
		t.Fatalf("confidence=%v", out.Confidence)
	}
}

func TestExtractContractFailures(t *testing.T) {
	tests := []struct {
		name string
		resp map[string]any
	}{
		{"missing evidence", map[string]any{"requirements": map[string]any{}, "confidence": map[string]any{}}},
		{"requirements not object", map[string]any{"requirements": "text", "confidence": map[string]any{}, "evidence": []any{}}},
		{"evidence not list", map[string]any{"requirements": map[string]any{}, "confidence": map[string]any{}, "evidence": "none"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewExtractor(&fakeLLM{resp: tc.resp}, logger.Nop()).Extract(context.Background(), "x", nil)
			if !errors.Is(err, ErrContract) {
				t.Fatalf("expected ErrContract, got %v", err)
			}
		})
	}
}

func TestExtractPropagatesCallError(t *testing.T) {
	boom := errors.New("timeout")
	_, err := NewExtractor(&fakeLLM{err: boom}, logger.Nop()).Extract(context.Background(), "x", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped call error, got %v", err)
	}
}

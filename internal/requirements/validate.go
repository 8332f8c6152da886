package requirements

import (
	"fmt"
	"strings"
)

// RequiredFields are the dot paths a requirements tree must populate
// before plans can be trusted.
var RequiredFields = []string{
	"workpiece.weight_range",
	"process.count",
	"process.needs_flip",
	"machines.count",
}

// MissingFieldQuestion is the open question recorded for an unpopulated required field.
func MissingFieldQuestion(path string) string {
	return fmt.Sprintf("缺少必要欄位：%s", path)
}

type ValidationResult struct {
	Valid         bool     `json:"valid"`
	MissingFields []string `json:"missing_fields"`
	OpenQuestions []string `json:"open_questions"`
}

// Validate checks t against RequiredFields. It never fails: missing fields
// produce open questions appended to t's existing ones, deduplicated by
// exact text. t is not modified.
func Validate(t Tree) ValidationResult {
	return ValidateMap(t.Map(), t.OpenQuestions)
}

// ValidateMap is Validate over a generic decoded document.
func ValidateMap(doc map[string]any, existing []string) ValidationResult {
	res := ValidationResult{
		MissingFields: []string{},
		OpenQuestions: make([]string, 0, len(existing)+len(RequiredFields)),
	}
	seen := make(map[string]bool, len(existing))
	for _, q := range existing {
		if seen[q] {
			continue
		}
		seen[q] = true
		res.OpenQuestions = append(res.OpenQuestions, q)
	}
	for _, path := range RequiredFields {
		if !isEmpty(Lookup(doc, path)) {
			continue
		}
		res.MissingFields = append(res.MissingFields, path)
		q := MissingFieldQuestion(path)
		if !seen[q] {
			seen[q] = true
			res.OpenQuestions = append(res.OpenQuestions, q)
		}
	}
	res.Valid = len(res.MissingFields) == 0
	return res
}

// Lookup walks a dot path through nested maps. Any missing or non-map
// intermediate yields nil.
func Lookup(doc map[string]any, path string) any {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

// isEmpty treats null, "", empty list, empty map, false and numeric zero as missing.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case int:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

package requirements

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value holds one leaf of the requirements tree as decoded from JSON. The
// model answers with strings, numbers, booleans or small objects for the
// same field, so leaves keep the decoded value and expose typed readers.
type Value struct {
	v any
}

// V wraps a Go value.
func V(x any) Value { return Value{v: x} }

func (v Value) Any() any { return v.v }

// IsNull reports an absent or JSON-null value.
func (v Value) IsNull() bool { return v.v == nil }

// String renders the value for display. Null renders as "".
func (v Value) String() string {
	switch t := v.v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "是"
		}
		return "否"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(t))
		for _, x := range t {
			if s := V(x).String(); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "、")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Bool reads booleans and common yes/no spellings.
func (v Value) Bool() (bool, bool) {
	switch t := v.v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "是", "需要", "有":
			return true, true
		case "false", "no", "n", "否", "不需要", "無":
			return false, true
		}
	case float64:
		return t != 0, true
	}
	return false, false
}

// Int reads numbers and numeric strings.
func (v Value) Int() (int, bool) {
	switch t := v.v.(type) {
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.v)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		v.v = nil
		return nil
	}
	var x any
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}
	v.v = x
	return nil
}

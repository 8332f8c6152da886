package requirements

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Section names, in document order.
const (
	SectionCustomerPainPoints = "customer_pain_points"
	SectionProducts           = "products"
	SectionWorkpiece          = "workpiece"
	SectionProcess            = "process"
	SectionCycleTime          = "cycle_time"
	SectionLayout             = "layout"
	SectionConstraints        = "constraints"
	SectionOptions            = "options"
	SectionAcceptance         = "acceptance"
	SectionOpenQuestions      = "open_questions"
)

var SectionNames = []string{
	SectionCustomerPainPoints,
	SectionProducts,
	SectionWorkpiece,
	SectionProcess,
	SectionCycleTime,
	SectionLayout,
	SectionConstraints,
	SectionOptions,
	SectionAcceptance,
	SectionOpenQuestions,
}

// Tree is the structured requirements document for one extraction run.
// Each section has named fields; keys the model adds beyond them are kept
// in the section's Extra map, and unknown top-level sections (for example
// "machines") in Tree.Extra, so nothing is lost across a round trip.
type Tree struct {
	CustomerPainPoints []Value
	Products           Products
	Workpiece          Workpiece
	Process            Process
	CycleTime          CycleTime
	Layout             Layout
	Constraints        Constraints
	Options            Options
	Acceptance         Acceptance
	OpenQuestions      []string
	Extra              map[string]json.RawMessage
}

type Products struct {
	Name       Value
	Material   Value
	Dimensions Value
	Variety    Value
	Extra      map[string]json.RawMessage
	raw        json.RawMessage
}

type Workpiece struct {
	WeightRange Value
	Dimensions  Value
	Material    Value
	Shape       Value
	Extra       map[string]json.RawMessage
	raw         json.RawMessage
}

type Process struct {
	Count         Value
	Steps         Value
	NeedsFlip     Value
	CurrentMethod Value
	Extra         map[string]json.RawMessage
	raw           json.RawMessage
}

type CycleTime struct {
	Current Value
	Target  Value
	Unit    Value
	Extra   map[string]json.RawMessage
	raw     json.RawMessage
}

type Layout struct {
	SpaceConstraints  Value
	ExistingEquipment Value
	FloorArea         Value
	Extra             map[string]json.RawMessage
	raw               json.RawMessage
}

type Constraints struct {
	Budget    Value
	Timeline  Value
	Technical Value
	Safety    Value
	Extra     map[string]json.RawMessage
	raw       json.RawMessage
}

type Options struct {
	RobotType       Value
	AutomationLevel Value
	Vision          Value
	Scheduler       Value
	Extra           map[string]json.RawMessage
	raw             json.RawMessage
}

type Acceptance struct {
	Criteria Value
	Tests    Value
	Extra    map[string]json.RawMessage
	raw      json.RawMessage
}

type field struct {
	key string
	v   *Value
}

func (s *Products) fields() []field {
	return []field{{"name", &s.Name}, {"material", &s.Material}, {"dimensions", &s.Dimensions}, {"variety", &s.Variety}}
}
func (s *Workpiece) fields() []field {
	return []field{{"weight_range", &s.WeightRange}, {"dimensions", &s.Dimensions}, {"material", &s.Material}, {"shape", &s.Shape}}
}
func (s *Process) fields() []field {
	return []field{{"count", &s.Count}, {"steps", &s.Steps}, {"needs_flip", &s.NeedsFlip}, {"current_method", &s.CurrentMethod}}
}
func (s *CycleTime) fields() []field {
	return []field{{"current", &s.Current}, {"target", &s.Target}, {"unit", &s.Unit}}
}
func (s *Layout) fields() []field {
	return []field{{"space_constraints", &s.SpaceConstraints}, {"existing_equipment", &s.ExistingEquipment}, {"floor_area", &s.FloorArea}}
}
func (s *Constraints) fields() []field {
	return []field{{"budget", &s.Budget}, {"timeline", &s.Timeline}, {"technical", &s.Technical}, {"safety", &s.Safety}}
}
func (s *Options) fields() []field {
	return []field{{"robot_type", &s.RobotType}, {"automation_level", &s.AutomationLevel}, {"vision", &s.Vision}, {"scheduler", &s.Scheduler}}
}
func (s *Acceptance) fields() []field {
	return []field{{"criteria", &s.Criteria}, {"tests", &s.Tests}}
}

func (s *Products) MarshalJSON() ([]byte, error)  { return marshalSection(s.fields(), s.Extra, s.raw) }
func (s *Workpiece) MarshalJSON() ([]byte, error) { return marshalSection(s.fields(), s.Extra, s.raw) }
func (s *Process) MarshalJSON() ([]byte, error)   { return marshalSection(s.fields(), s.Extra, s.raw) }
func (s *CycleTime) MarshalJSON() ([]byte, error) { return marshalSection(s.fields(), s.Extra, s.raw) }
func (s *Layout) MarshalJSON() ([]byte, error)    { return marshalSection(s.fields(), s.Extra, s.raw) }
func (s *Constraints) MarshalJSON() ([]byte, error) {
	return marshalSection(s.fields(), s.Extra, s.raw)
}
func (s *Options) MarshalJSON() ([]byte, error)    { return marshalSection(s.fields(), s.Extra, s.raw) }
func (s *Acceptance) MarshalJSON() ([]byte, error) { return marshalSection(s.fields(), s.Extra, s.raw) }

func (s *Products) UnmarshalJSON(b []byte) error {
	return unmarshalSection(b, s.fields(), &s.Extra, &s.raw)
}
func (s *Workpiece) UnmarshalJSON(b []byte) error {
	return unmarshalSection(b, s.fields(), &s.Extra, &s.raw)
}
func (s *Process) UnmarshalJSON(b []byte) error {
	return unmarshalSection(b, s.fields(), &s.Extra, &s.raw)
}
func (s *CycleTime) UnmarshalJSON(b []byte) error {
	return unmarshalSection(b, s.fields(), &s.Extra, &s.raw)
}
func (s *Layout) UnmarshalJSON(b []byte) error {
	return unmarshalSection(b, s.fields(), &s.Extra, &s.raw)
}
func (s *Constraints) UnmarshalJSON(b []byte) error {
	return unmarshalSection(b, s.fields(), &s.Extra, &s.raw)
}
func (s *Options) UnmarshalJSON(b []byte) error {
	return unmarshalSection(b, s.fields(), &s.Extra, &s.raw)
}
func (s *Acceptance) UnmarshalJSON(b []byte) error {
	return unmarshalSection(b, s.fields(), &s.Extra, &s.raw)
}

// marshalSection writes known fields in declaration order followed by
// extension keys sorted by name. A section that arrived as a non-object
// (the model sometimes answers with a list) is written back verbatim.
func marshalSection(fields []field, extra map[string]json.RawMessage, raw json.RawMessage) ([]byte, error) {
	if len(raw) > 0 {
		return raw, nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(k string, v []byte) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(v)
	}
	for _, f := range fields {
		b, err := json.Marshal(f.v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.key, err)
		}
		write(f.key, b)
	}
	for _, k := range sortedKeys(extra) {
		write(k, extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func unmarshalSection(b []byte, fields []field, extra *map[string]json.RawMessage, raw *json.RawMessage) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		*raw = append(json.RawMessage(nil), trimmed...)
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	for _, f := range fields {
		if rv, ok := m[f.key]; ok {
			if err := json.Unmarshal(rv, f.v); err != nil {
				return fmt.Errorf("field %s: %w", f.key, err)
			}
			delete(m, f.key)
		}
	}
	if len(m) > 0 {
		*extra = m
	}
	return nil
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t Tree) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(i int, k string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("section %s: %w", k, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(b)
		return nil
	}
	pains := t.CustomerPainPoints
	if pains == nil {
		pains = []Value{}
	}
	questions := t.OpenQuestions
	if questions == nil {
		questions = []string{}
	}
	sections := []any{
		pains,
		&t.Products,
		&t.Workpiece,
		&t.Process,
		&t.CycleTime,
		&t.Layout,
		&t.Constraints,
		&t.Options,
		&t.Acceptance,
		questions,
	}
	for i, name := range SectionNames {
		if err := write(i, name, sections[i]); err != nil {
			return nil, err
		}
	}
	for _, k := range sortedKeys(t.Extra) {
		buf.WriteByte(',')
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(t.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *Tree) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*t = Tree{}
	targets := map[string]any{
		SectionProducts:    &t.Products,
		SectionWorkpiece:   &t.Workpiece,
		SectionProcess:     &t.Process,
		SectionCycleTime:   &t.CycleTime,
		SectionLayout:      &t.Layout,
		SectionConstraints: &t.Constraints,
		SectionOptions:     &t.Options,
		SectionAcceptance:  &t.Acceptance,
	}
	for k, target := range targets {
		if rv, ok := m[k]; ok {
			if err := json.Unmarshal(rv, target); err != nil {
				return fmt.Errorf("section %s: %w", k, err)
			}
			delete(m, k)
		}
	}
	if rv, ok := m[SectionCustomerPainPoints]; ok {
		t.CustomerPainPoints = decodeList(rv)
		delete(m, SectionCustomerPainPoints)
	}
	if rv, ok := m[SectionOpenQuestions]; ok {
		t.OpenQuestions = decodeQuestions(rv)
		delete(m, SectionOpenQuestions)
	}
	if len(m) > 0 {
		t.Extra = m
	}
	return nil
}

// decodeList accepts a list or a single scalar.
func decodeList(raw json.RawMessage) []Value {
	var list []Value
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var one Value
	if err := json.Unmarshal(raw, &one); err == nil && !one.IsNull() {
		return []Value{one}
	}
	return nil
}

// decodeQuestions accepts strings or {"question": ..., "priority": ...} objects.
func decodeQuestions(raw json.RawMessage) []string {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		var one string
		if json.Unmarshal(raw, &one) == nil && strings.TrimSpace(one) != "" {
			return []string{strings.TrimSpace(one)}
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch q := it.(type) {
		case string:
			if s := strings.TrimSpace(q); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			for _, key := range []string{"question", "text", "content"} {
				if s, ok := q[key].(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
					break
				}
			}
		}
	}
	return out
}

// Parse decodes a stored or model-produced requirements document.
func Parse(b []byte) (Tree, error) {
	var t Tree
	if len(bytes.TrimSpace(b)) == 0 {
		return t, nil
	}
	err := json.Unmarshal(b, &t)
	return t, err
}

// Map renders the tree as generic nested maps, the shape path lookups use.
func (t Tree) Map() map[string]any {
	b, err := json.Marshal(t)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}
	return m
}

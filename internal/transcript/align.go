package transcript

import "strings"

// Align returns the idx of the first segment whose text contains snippet,
// compared case-insensitively after trimming. Empty snippets and snippets
// that span segments resolve to nil.
func Align(snippet string, segs []Segment) *int {
	needle := strings.ToLower(strings.TrimSpace(snippet))
	if needle == "" {
		return nil
	}
	for _, s := range segs {
		if strings.Contains(strings.ToLower(s.Text), needle) {
			idx := s.Idx
			return &idx
		}
	}
	return nil
}

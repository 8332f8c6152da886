package transcript

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitOffsets(t *testing.T) {
	text := "客戶提到需要自動化生產線\n工件重量範圍：10-50kg\n需要翻轉工序\n"
	segs := Split(text)
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	wantStart := []int{0, 13, 28}
	for i, s := range segs {
		if s.Idx != i {
			t.Fatalf("seg %d idx=%d", i, s.Idx)
		}
		if s.StartChar != wantStart[i] {
			t.Fatalf("seg %d start=%d want %d", i, s.StartChar, wantStart[i])
		}
		runes := []rune(text)
		if got := string(runes[s.StartChar:s.EndChar]); got != s.Text {
			t.Fatalf("seg %d offsets select %q, text is %q", i, got, s.Text)
		}
	}
	if segs[1].Speaker != nil {
		t.Fatalf("field-style line must not be a speaker turn: %q", *segs[1].Speaker)
	}
}

func TestSplitBlankLinesAndWhitespace(t *testing.T) {
	text := "\n  業務：請問產能？ \r\n\n\n客戶A：每小時 120 件\n   \n"
	segs := Split(text)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	runes := []rune(text)
	for i, s := range segs {
		if s.Idx != i {
			t.Fatalf("idx gap at %d: %d", i, s.Idx)
		}
		if string(runes[s.StartChar:s.EndChar]) != s.Text {
			t.Fatalf("seg %d offsets drifted: %q vs %q", i, string(runes[s.StartChar:s.EndChar]), s.Text)
		}
	}
	if segs[0].Speaker == nil || *segs[0].Speaker != "業務" {
		t.Fatalf("speaker not detected: %v", segs[0].Speaker)
	}
	if segs[1].Speaker == nil || *segs[1].Speaker != "客戶A" {
		t.Fatalf("speaker not detected: %v", segs[1].Speaker)
	}
	if segs[0].Text != "業務：請問產能？" {
		t.Fatalf("text should keep the speaker prefix: %q", segs[0].Text)
	}
}

func TestSplitOffsetsIndexRawBytes(t *testing.T) {
	text := "\uFEFF業務：請問產能？\r\n\r\n客戶A：每小時 120 件\r舊機台\r\n"
	segs := Split(text)
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	runes := []rune(text)
	for i, s := range segs {
		if got := string(runes[s.StartChar:s.EndChar]); got != s.Text {
			t.Fatalf("seg %d offsets select %q, text is %q", i, got, s.Text)
		}
	}
	if segs[0].StartChar != 1 || segs[0].Text != "業務：請問產能？" {
		t.Fatalf("byte order mark should be skipped, not kept: %+v", segs[0])
	}
	if segs[2].Text != "舊機台" {
		t.Fatalf("lone carriage return should end a line: %q", segs[2].Text)
	}
}

func TestSplitInvariants(t *testing.T) {
	inputs := []string{
		"",
		"single line",
		"a\nb\nc",
		"\n\n\nonly after blanks",
		"trailing\n\n\n",
		"  indented\n\tTabbed line\n",
	}
	for _, in := range inputs {
		segs := Split(in)
		prevEnd := -1
		for i, s := range segs {
			if s.Idx != i {
				t.Fatalf("%q: idx %d at position %d", in, s.Idx, i)
			}
			if s.StartChar < prevEnd || s.EndChar <= s.StartChar {
				t.Fatalf("%q: overlapping or empty range %d..%d after %d", in, s.StartChar, s.EndChar, prevEnd)
			}
			prevEnd = s.EndChar
		}
		if len(segs) > 0 && prevEnd > utf8.RuneCountInString(in) {
			t.Fatalf("%q: end %d beyond text", in, prevEnd)
		}
		var nonBlank int
		for _, line := range strings.Split(in, "\n") {
			if strings.TrimSpace(line) != "" {
				nonBlank++
			}
		}
		if nonBlank != len(segs) {
			t.Fatalf("%q: %d non-blank lines but %d segments", in, nonBlank, len(segs))
		}
	}
	if Split("") != nil {
		t.Fatalf("empty transcript should produce no segments")
	}
}

func TestAlign(t *testing.T) {
	segs := Split("Robot reach is 2m\n工件重量範圍：10-50kg\nrobot reach again\n")
	tests := []struct {
		name    string
		snippet string
		want    *int
	}{
		{"exact full text", "工件重量範圍：10-50kg", intp(1)},
		{"case insensitive", "ROBOT REACH", intp(0)},
		{"earliest wins", "reach", intp(0)},
		{"trimmed", "  10-50kg \n", intp(1)},
		{"absent", "vision system", nil},
		{"spans segments", "2m\n工件", nil},
		{"empty", "   ", nil},
	}
	for _, tc := range tests {
		got := Align(tc.snippet, segs)
		switch {
		case tc.want == nil && got != nil:
			t.Errorf("%s: expected nil, got %d", tc.name, *got)
		case tc.want != nil && (got == nil || *got != *tc.want):
			t.Errorf("%s: expected %d, got %v", tc.name, *tc.want, got)
		}
	}
}

func intp(v int) *int { return &v }

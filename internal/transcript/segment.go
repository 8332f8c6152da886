// Package transcript splits interview transcripts into offset-tracked
// segments and maps evidence snippets back onto them.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment is one non-blank line. StartChar/EndChar are rune offsets into the
// original text, end exclusive, bracketing the trimmed line.
type Segment struct {
	Idx       int     `json:"idx"`
	Speaker   *string `json:"speaker,omitempty"`
	Text      string  `json:"text"`
	StartChar int     `json:"start_char"`
	EndChar   int     `json:"end_char"`
}

const maxSpeakerRunes = 20

// Split segments text on line breaks (\n, \r\n or a lone \r). Blank lines
// produce no segment but still advance the cursor, so offsets always refer to
// the original text, including any leading byte order mark.
func Split(text string) []Segment {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var out []Segment
	emit := func(from, to int) {
		for from < to && isBlank(runes[from]) {
			from++
		}
		for to > from && isBlank(runes[to-1]) {
			to--
		}
		if from == to {
			return
		}
		seg := Segment{
			Idx:       len(out),
			Text:      string(runes[from:to]),
			StartChar: from,
			EndChar:   to,
		}
		if sp, ok := speakerOf(seg.Text); ok {
			seg.Speaker = &sp
		}
		out = append(out, seg)
	}
	lineStart := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\n':
			emit(lineStart, i)
			lineStart = i + 1
		case '\r':
			emit(lineStart, i)
			if i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			lineStart = i + 1
		}
	}
	emit(lineStart, len(runes))
	return out
}

func isBlank(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

var speakerRoles = []string{
	"客戶", "業務", "訪談者", "受訪者", "主持人", "工程師", "廠長", "經理",
	"customer", "client", "sales", "interviewer", "interviewee", "engineer", "speaker",
}

// speakerOf recognises "Role: text" and "Role：text" prefixes where the label
// starts with a known role word ("客戶A：", "Sales:", "Speaker 2:").
// Field-style lines such as "工件重量：10kg" are not speaker turns.
func speakerOf(line string) (string, bool) {
	cut := strings.IndexAny(line, ":：")
	if cut <= 0 {
		return "", false
	}
	name := strings.TrimSpace(line[:cut])
	_, size := utf8.DecodeRuneInString(line[cut:])
	if name == "" || strings.TrimSpace(line[cut+size:]) == "" {
		return "", false
	}
	if utf8.RuneCountInString(name) > maxSpeakerRunes {
		return "", false
	}
	lower := strings.ToLower(name)
	for _, role := range speakerRoles {
		if strings.HasPrefix(lower, role) {
			return name, true
		}
	}
	return "", false
}

package textextract

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"
)

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	doc := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractPlainIsVerbatim(t *testing.T) {
	raw := "\uFEFF客戶：你好\r\n業務：您好\r\n"
	text, kind, err := Extract("a.txt", "text/plain", []byte(raw))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if kind != KindPlain || text != raw {
		t.Fatalf("kind=%q text=%q", kind, text)
	}
}

func TestExtractDOCXParagraphs(t *testing.T) {
	data := buildDOCX(t, `<w:p><w:r><w:t>工件重量</w:t></w:r><w:r><w:t>：10kg</w:t></w:r></w:p><w:p><w:r><w:t>需要翻轉</w:t></w:r></w:p>`)
	text, kind, err := Extract("t.docx", "", data)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if kind != KindDOCX || text != "工件重量：10kg\n需要翻轉\n" {
		t.Fatalf("kind=%q text=%q", kind, text)
	}
}

func TestExtractRejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"fake pdf", "a.pdf", []byte{0x01, 0x02, 0x00, 0x03}},
		{"binary", "a.bin", []byte{0x00, 0xff, 0x00}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Extract(tc.file, "", tc.data); !errors.Is(err, ErrUnsupported) {
				t.Fatalf("expected ErrUnsupported, got %v", err)
			}
		})
	}
	if _, _, err := Extract("empty.txt", "", nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

package textextract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dslipak/pdf"
)

const (
	KindPlain = "plain"
	KindDOCX  = "docx"
	KindPDF   = "pdf"
)

var ErrUnsupported = errors.New("unsupported transcript format")

// Extract returns the transcript text of data together with the detected
// kind. Line structure is kept: segmentation depends on it.
func Extract(filename, contentType string, data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("empty file: name=%s mime=%s", filename, contentType)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	mt := strings.ToLower(strings.TrimSpace(contentType))

	switch {
	case isPDF(data):
		text, err := extractPDF(data)
		return text, KindPDF, err
	case isZip(data):
		text, err := extractDOCX(data)
		return text, KindDOCX, err
	case isProbablyText(data):
		// plain text is returned verbatim so segment offsets index the stored file
		return string(data), KindPlain, nil
	case mt == "application/pdf" || ext == ".pdf":
		return "", "", fmt.Errorf("%w: file claims pdf but missing %%PDF header (name=%s)", ErrUnsupported, filename)
	case ext == ".docx":
		return "", "", fmt.Errorf("%w: file claims docx but is not a zip container (name=%s)", ErrUnsupported, filename)
	default:
		return "", "", fmt.Errorf("%w: name=%s ext=%s mime=%s", ErrUnsupported, filename, ext, contentType)
	}
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func isProbablyText(b []byte) bool {
	sample := b[:min(len(b), 4096)]
	if bytes.IndexByte(sample, 0) >= 0 {
		return false
	}
	// a multi-byte rune may be cut at the sample edge
	for i := 0; i < 3 && len(sample) > 0 && !utf8.Valid(sample); i++ {
		sample = sample[:len(sample)-1]
	}
	return utf8.Valid(sample)
}

func normalizeNewlines(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return normalizeNewlines(string(b)), nil
}

// extractDOCX reads word/document.xml and emits one line per paragraph.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("docx zip: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("%w: zip is not a docx (missing word/document.xml)", ErrUnsupported)
	}
	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var out strings.Builder
	var para strings.Builder
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx xml: %w", err)
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "t":
				var v string
				if err := dec.DecodeElement(&v, &se); err == nil {
					para.WriteString(v)
				}
			case "tab":
				para.WriteByte('\t')
			case "br":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			if se.Name.Local == "p" {
				out.WriteString(para.String())
				out.WriteByte('\n')
				para.Reset()
			}
		}
	}
	if para.Len() > 0 {
		out.WriteString(para.String())
		out.WriteByte('\n')
	}
	text := out.String()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("no text extracted from docx")
	}
	return text, nil
}

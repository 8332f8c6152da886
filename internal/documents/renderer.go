package documents

import (
	"fmt"

	"github.com/google/uuid"

	docdomain "github.com/yungbote/quoteflow-backend/internal/domain/documents"
	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

type Rendered struct {
	Bytes       []byte
	Filename    string
	ContentType string
}

// Renderer turns case content into document files. The pdf format is
// served as DOCX and keeps the .docx filename.
type Renderer interface {
	Render(in Input, docType, format string) (*Rendered, error)
	Preview(in Input, docType string) (string, error)
}

type renderer struct {
	log *logger.Logger
}

func NewRenderer(baseLog *logger.Logger) Renderer {
	return &renderer{log: baseLog.With("component", "DocumentRenderer")}
}

// Filename is <type>_<case>_<run or latest>.docx.
func Filename(docType string, caseID uuid.UUID, runID *uuid.UUID) string {
	run := "latest"
	if runID != nil {
		run = runID.String()
	}
	return fmt.Sprintf("%s_%s_%s.docx", docType, caseID, run)
}

func (r *renderer) Render(in Input, docType, format string) (*Rendered, error) {
	if !docdomain.ValidType(docType) {
		return nil, fmt.Errorf("unknown document type %q", docType)
	}
	if !docdomain.ValidFormat(format) {
		return nil, fmt.Errorf("unknown document format %q", format)
	}
	d, err := Build(docType, in)
	if err != nil {
		return nil, err
	}
	b, err := WriteDOCX(d)
	if err != nil {
		return nil, err
	}
	if format == docdomain.FormatPDF {
		r.log.Debug("pdf requested; serving docx", "doc_type", docType)
	}
	return &Rendered{
		Bytes:       b,
		Filename:    Filename(docType, in.Case.ID, in.RequestedRun),
		ContentType: ContentTypeDOCX,
	}, nil
}

func (r *renderer) Preview(in Input, docType string) (string, error) {
	if !docdomain.ValidType(docType) {
		return "", fmt.Errorf("unknown document type %q", docType)
	}
	d, err := Build(docType, in)
	if err != nil {
		return "", err
	}
	return PreviewHTML(d)
}

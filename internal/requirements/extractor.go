package requirements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
	"github.com/yungbote/quoteflow-backend/internal/platform/openai"
	"github.com/yungbote/quoteflow-backend/internal/transcript"
)

// ErrContract marks a model response that does not match the extraction
// contract: not an object, or missing requirements/confidence/evidence.
var ErrContract = errors.New("extraction response violates contract")

// Evidence is one supporting snippet. SegmentIdx is always computed locally
// by aligning Snippet against the transcript segments.
type Evidence struct {
	FieldPath  string `json:"field_path"`
	Snippet    string `json:"snippet"`
	StartChar  *int   `json:"start_char"`
	EndChar    *int   `json:"end_char"`
	SegmentIdx *int   `json:"segment_idx"`
}

type Output struct {
	Requirements Tree               `json:"requirements"`
	Confidence   map[string]float64 `json:"confidence"`
	Evidence     []Evidence         `json:"evidence"`
	PromptHash   string             `json:"prompt_hash"`
	Model        string             `json:"model"`
}

type Extractor struct {
	client openai.Client
	log    *logger.Logger
}

func NewExtractor(client openai.Client, baseLog *logger.Logger) *Extractor {
	return &Extractor{client: client, log: baseLog.With("component", "RequirementsExtractor")}
}

// Extract issues exactly one structured model call for the transcript and
// returns the parsed requirements with evidence aligned to segs.
func (e *Extractor) Extract(ctx context.Context, text string, segs []transcript.Segment) (*Output, error) {
	if e == nil || e.client == nil {
		return nil, errors.New("extractor not configured")
	}
	user := UserPrompt(text)
	out := &Output{
		PromptHash: PromptHash(user),
		Model:      e.client.Model(),
	}

	obj, err := e.client.GenerateJSON(ctx, SystemPrompt(), user)
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}
	if err := decodeResponse(obj, out); err != nil {
		return nil, err
	}
	for i := range out.Evidence {
		out.Evidence[i].SegmentIdx = transcript.Align(out.Evidence[i].Snippet, segs)
	}
	e.log.Debug("extraction parsed",
		"prompt_hash", out.PromptHash,
		"evidence", len(out.Evidence),
		"open_questions", len(out.Requirements.OpenQuestions),
	)
	return out, nil
}

func decodeResponse(obj map[string]any, out *Output) error {
	for _, key := range []string{"requirements", "confidence", "evidence"} {
		if _, ok := obj[key]; !ok {
			return fmt.Errorf("%w: missing %q", ErrContract, key)
		}
	}

	reqRaw, ok := obj["requirements"].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: requirements is not an object", ErrContract)
	}
	b, err := json.Marshal(reqRaw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrContract, err)
	}
	tree, err := Parse(b)
	if err != nil {
		return fmt.Errorf("%w: requirements: %v", ErrContract, err)
	}
	out.Requirements = tree

	confRaw, ok := obj["confidence"].(map[string]any)
	if !ok && obj["confidence"] != nil {
		return fmt.Errorf("%w: confidence is not an object", ErrContract)
	}
	out.Confidence = decodeConfidence(confRaw)

	evRaw, ok := obj["evidence"].([]any)
	if !ok && obj["evidence"] != nil {
		return fmt.Errorf("%w: evidence is not a list", ErrContract)
	}
	out.Evidence = decodeEvidence(evRaw)
	return nil
}

// decodeConfidence keeps numeric scores clamped to [0,1]; other values are dropped.
func decodeConfidence(raw map[string]any) map[string]float64 {
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		var f float64
		switch t := v.(type) {
		case float64:
			f = t
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				continue
			}
			f = parsed
		default:
			continue
		}
		if math.IsNaN(f) {
			continue
		}
		out[k] = math.Max(0, math.Min(1, f))
	}
	return out
}

func decodeEvidence(raw []any) []Evidence {
	out := make([]Evidence, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		snippet, _ := m["snippet"].(string)
		path, _ := m["field_path"].(string)
		if strings.TrimSpace(snippet) == "" && strings.TrimSpace(path) == "" {
			continue
		}
		out = append(out, Evidence{
			FieldPath: strings.TrimSpace(path),
			Snippet:   snippet,
			StartChar: intField(m["start_char"]),
			EndChar:   intField(m["end_char"]),
		})
	}
	return out
}

func intField(v any) *int {
	f, ok := v.(float64)
	if !ok || f < 0 {
		return nil
	}
	n := int(f)
	return &n
}

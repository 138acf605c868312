package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bracketlabs/bracket/internal/model"
)

// strictReminder is appended to the prompt on the recovery attempt.
const strictReminder = `Your previous response could not be parsed. Respond with ONLY a single JSON object matching the requested schema. No prose, no markdown fences, no trailing commentary.`

// response is implemented by every structured response shape.
type response interface {
	validate() error
}

// decodeStrict extracts the JSON object from raw model output and
// unmarshals it into out, then runs shape validation. Unknown fields
// are rejected so drifted schemas fail fast.
func decodeStrict(raw string, out response) error {
	block, err := extractJSONBlock(raw)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(strings.NewReader(block))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return out.validate()
}

// extractJSONBlock finds the outermost JSON object in model output,
// tolerating markdown fences and surrounding prose.
func extractJSONBlock(raw string) (string, error) {
	text := strings.TrimSpace(raw)

	// Strip markdown code fences if present
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return text[start : end+1], nil
}

// identifyResponse is the schema for the identification call.
type identifyResponse struct {
	Candidates []identifyCandidate `json:"candidates"`
}

type identifyCandidate struct {
	FrameTop      string  `json:"frame_top"`
	FrameBottom   string  `json:"frame_bottom"`
	Bounded       string  `json:"bounded"`
	StructureType string  `json:"structure_type"`
	Confidence    float64 `json:"confidence"`
	Rationale     string  `json:"rationale"`
}

func (r *identifyResponse) validate() error {
	for i, c := range r.Candidates {
		if c.FrameTop == "" || c.FrameBottom == "" || c.Bounded == "" {
			return fmt.Errorf("candidate %d: frame_top, frame_bottom and bounded are required", i)
		}
		if c.StructureType == "" {
			return fmt.Errorf("candidate %d: structure_type is required", i)
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return fmt.Errorf("candidate %d: confidence %.3f outside [0,1]", i, c.Confidence)
		}
	}
	return nil
}

func (r *identifyResponse) toCandidates() []model.Candidate {
	out := make([]model.Candidate, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		out = append(out, model.Candidate{
			FrameTop:      strings.TrimSpace(c.FrameTop),
			FrameBottom:   strings.TrimSpace(c.FrameBottom),
			Bounded:       strings.TrimSpace(c.Bounded),
			StructureType: strings.TrimSpace(c.StructureType),
			Confidence:    c.Confidence,
			Rationale:     strings.TrimSpace(c.Rationale),
		})
	}
	return out
}

// assembleResponse is the schema for the assembly call.
type assembleResponse struct {
	Name                string `json:"name"`
	Description         string `json:"description"`
	ContainmentArgument string `json:"containment_argument"`
	Commentary          string `json:"commentary"`
}

func (r *assembleResponse) validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.Description == "" {
		return fmt.Errorf("description is required")
	}
	if r.ContainmentArgument == "" {
		return fmt.Errorf("containment_argument is required")
	}
	return nil
}

const maxSnippetLen = 500

func (r *assembleResponse) toArtifact(cand model.Candidate, sourceText string) *model.AssembledArtifact {
	snippet := sourceText
	if len(snippet) > maxSnippetLen {
		snippet = snippet[:maxSnippetLen]
	}
	return &model.AssembledArtifact{
		Name:                strings.TrimSpace(r.Name),
		Description:         strings.TrimSpace(r.Description),
		ContainmentArgument: strings.TrimSpace(r.ContainmentArgument),
		Commentary:          strings.TrimSpace(r.Commentary),
		SourceSnippet:       snippet,
		Candidate:           cand,
	}
}

// judgeResponse is the schema for the judgment call.
type judgeResponse struct {
	FrameCompatibility float64 `json:"frame_compatibility"`
	Containment        float64 `json:"containment"`
	Rationale          string  `json:"rationale"`
}

func (r *judgeResponse) validate() error {
	if r.FrameCompatibility < 0 || r.FrameCompatibility > 1 {
		return fmt.Errorf("frame_compatibility %.3f outside [0,1]", r.FrameCompatibility)
	}
	if r.Containment < 0 || r.Containment > 1 {
		return fmt.Errorf("containment %.3f outside [0,1]", r.Containment)
	}
	return nil
}

func (r *judgeResponse) toJudgment() *Judgment {
	return &Judgment{
		FrameCompatibility: r.FrameCompatibility,
		Containment:        r.Containment,
		Rationale:          strings.TrimSpace(r.Rationale),
	}
}

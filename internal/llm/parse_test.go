package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/bracketlabs/bracket/internal/errs"
	"github.com/bracketlabs/bracket/internal/model"
)

func TestExtractJSONBlock(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`, false},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"fenced no lang", "```\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"surrounding prose", `Here you go: {"a": 1} hope that helps!`, `{"a": 1}`, false},
		{"no object", "sorry, I cannot do that", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONBlock(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeStrict_IdentifyResponse(t *testing.T) {
	raw := `{"candidates": [{"frame_top": "upper bound", "frame_bottom": "lower bound", "bounded": "limit value", "structure_type": "bound", "confidence": 0.9, "rationale": "squeeze"}]}`

	var resp identifyResponse
	if err := decodeStrict(raw, &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cands := resp.toCandidates()
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	if cands[0].Bounded != "limit value" || cands[0].Confidence != 0.9 {
		t.Errorf("unexpected candidate: %+v", cands[0])
	}
}

func TestDecodeStrict_RejectsBadShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"confidence out of range", `{"candidates": [{"frame_top": "a", "frame_bottom": "b", "bounded": "c", "structure_type": "bound", "confidence": 1.5}]}`},
		{"missing bounded", `{"candidates": [{"frame_top": "a", "frame_bottom": "b", "structure_type": "bound", "confidence": 0.5}]}`},
		{"unknown field", `{"candidates": [], "extra": true}`},
		{"not json", `the content has no brackets`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp identifyResponse
			if err := decodeStrict(tt.raw, &resp); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestDecodeStrict_JudgeResponse(t *testing.T) {
	var resp judgeResponse
	raw := `{"frame_compatibility": 0.8, "containment": 0.7, "rationale": "coherent axis"}`
	if err := decodeStrict(raw, &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	j := resp.toJudgment()
	if j.FrameCompatibility != 0.8 || j.Containment != 0.7 {
		t.Errorf("unexpected judgment: %+v", j)
	}

	var bad judgeResponse
	if err := decodeStrict(`{"frame_compatibility": -0.1, "containment": 0.5}`, &bad); err == nil {
		t.Error("expected range error")
	}
}

// scriptedCompleter returns canned responses in order.
type scriptedCompleter struct {
	responses []string
	prompts   []string
}

func (s *scriptedCompleter) Name() string { return "scripted" }

func (s *scriptedCompleter) IsAvailable(ctx context.Context) bool { return true }

func (s *scriptedCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.responses) == 0 {
		return "", nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func TestCompleteStructured_RecoversOnSecondAttempt(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		"I think the scores are high!",
		`{"frame_compatibility": 0.9, "containment": 0.8, "rationale": "ok"}`,
	}}
	client := NewClient(completer)

	j, err := client.JudgeArtifact(context.Background(), &model.AssembledArtifact{Name: "x"}, "source")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.FrameCompatibility != 0.9 {
		t.Errorf("unexpected judgment: %+v", j)
	}

	if len(completer.prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(completer.prompts))
	}
	if !strings.Contains(completer.prompts[1], strictReminder) {
		t.Error("recovery prompt should carry the strict schema reminder")
	}
}

func TestCompleteStructured_ParseErrorAfterTwoFailures(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		"nope",
		"still nope",
	}}
	client := NewClient(completer)

	_, err := client.JudgeArtifact(context.Background(), &model.AssembledArtifact{Name: "x"}, "source")
	if !errs.IsParse(err) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestGenerateCuriosity_TakesFirstLine(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		"\"What lies between laminar and turbulent flow?\"\nSome extra chatter.",
	}}
	client := NewClient(completer)

	q, err := client.GenerateCuriosity(context.Background(), []string{"entropy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q != "What lies between laminar and turbulent flow?" {
		t.Errorf("unexpected curiosity: %q", q)
	}
	if !strings.Contains(completer.prompts[0], "entropy") {
		t.Error("recent topics should appear in the prompt")
	}
}

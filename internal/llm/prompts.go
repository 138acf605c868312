package llm

import (
	"fmt"
	"strings"

	"github.com/bracketlabs/bracket/internal/model"
)

const curiositySystem = `You generate short exploration queries for a research agent that hunts for concepts bounded between two framing concepts.`

func buildCuriosityPrompt(recentTopics []string) string {
	var sb strings.Builder
	sb.WriteString("Generate ONE single-sentence search query pointing at technical or scientific material likely to contain a concept squeezed between two bounding concepts (for example a quantity between an upper and a lower bound, a method between two extremes, a state between two phases).\n")
	if len(recentTopics) > 0 {
		sb.WriteString("\nAvoid topics close to these recently explored ones:\n")
		for i, topic := range recentTopics {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&sb, "- %s\n", topic)
		}
	}
	sb.WriteString("\nRespond with the query sentence only.")
	return sb.String()
}

const identifySystem = `You extract "bracket" structures from text: a bounded concept meaningfully constrained between two frame concepts. You respond only in JSON.`

func buildIdentifyPrompt(content string) string {
	return fmt.Sprintf(`Read the following content and identify up to 5 bracket structures. Each has:
- frame_top: the first bounding concept
- frame_bottom: the second bounding concept
- bounded: the concept constrained between them
- structure_type: one of "bound", "interpolation", "tension", "gradient", "containment", "mediation", "transition", "tradeoff", "synthesis", "hierarchy"
- confidence: how confident you are this is a genuine bracket, 0.0-1.0
- rationale: one sentence on why

Respond with JSON only:
{"candidates": [{"frame_top": "...", "frame_bottom": "...", "bounded": "...", "structure_type": "...", "confidence": 0.0, "rationale": "..."}]}

Return {"candidates": []} if the content contains no genuine bracket structure.

CONTENT:
%s`, content)
}

const assembleSystem = `You turn a raw bracket candidate into a polished, named artifact. You respond only in JSON.`

func buildAssemblePrompt(cand model.Candidate, sourceText string) string {
	excerpt := sourceText
	if len(excerpt) > 2000 {
		excerpt = excerpt[:2000]
	}
	return fmt.Sprintf(`Candidate bracket:
- frame_top: %s
- frame_bottom: %s
- bounded: %s
- structure_type: %s

Source excerpt:
%s

Produce the finished artifact as JSON only:
{"name": "a short memorable name", "description": "2-3 sentences describing the structure", "containment_argument": "why the bounded concept is genuinely constrained by both frames", "commentary": "one reflective remark on what makes this bracket interesting"}`,
		cand.FrameTop, cand.FrameBottom, cand.Bounded, cand.StructureType, excerpt)
}

const judgeSystem = `You are a strict reviewer of bracket artifacts. You respond only in JSON.`

func buildJudgePrompt(art *model.AssembledArtifact, sourceText string) string {
	excerpt := sourceText
	if len(excerpt) > 2000 {
		excerpt = excerpt[:2000]
	}
	return fmt.Sprintf(`Artifact under review:
- name: %s
- frame_top: %s
- frame_bottom: %s
- bounded: %s
- containment argument: %s

Source excerpt:
%s

Score two dimensions from 0.0 to 1.0:
- frame_compatibility: do the two frames belong to a shared conceptual axis, making the pairing coherent?
- containment: is the bounded concept genuinely and meaningfully constrained by BOTH frames, per the source?

Respond with JSON only:
{"frame_compatibility": 0.0, "containment": 0.0, "rationale": "one or two sentences"}`,
		art.Name, art.Candidate.FrameTop, art.Candidate.FrameBottom, art.Candidate.Bounded,
		art.ContainmentArgument, excerpt)
}

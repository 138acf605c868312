package analysis

import (
	"fmt"

	"github.com/bracketlabs/bracket/internal/model"
)

// CorpusMetrics summarizes the corpus for the analyze command.
type CorpusMetrics struct {
	TotalArtifacts      int     `json:"total_artifacts"`
	UniqueIngredients   int     `json:"unique_ingredients"`
	IngredientDiversity float64 `json:"ingredient_diversity"` // unique ingredients per artifact
	TypesUsed           int     `json:"types_used"`
	TotalTypes          int     `json:"total_types"`
	StructuralCoverage  float64 `json:"structural_coverage"` // types used / taxonomy size
	MeanValidity        float64 `json:"mean_validity"`
	MeanNovelty         float64 `json:"mean_novelty"`
	Relations           int     `json:"relations"`
	Clusters            int     `json:"clusters"`
}

// String renders the metrics as a short multi-line report.
func (m *CorpusMetrics) String() string {
	return fmt.Sprintf(
		"artifacts: %d\ningredients: %d (%.2f per artifact)\ntype coverage: %d/%d (%.0f%%)\nmean validity: %.3f\nmean novelty: %.3f\nrelations: %d\nclusters: %d",
		m.TotalArtifacts, m.UniqueIngredients, m.IngredientDiversity,
		m.TypesUsed, m.TotalTypes, m.StructuralCoverage*100,
		m.MeanValidity, m.MeanNovelty, m.Relations, m.Clusters)
}

// ComputeMetrics derives corpus metrics from the artifact list.
func ComputeMetrics(artifacts []*model.StoredArtifact, uniqueIngredients, totalTypes, relations, clusters int) *CorpusMetrics {
	m := &CorpusMetrics{
		TotalArtifacts:    len(artifacts),
		UniqueIngredients: uniqueIngredients,
		TotalTypes:        totalTypes,
		Relations:         relations,
		Clusters:          clusters,
	}

	typesUsed := make(map[string]struct{})
	var validitySum, noveltySum float64
	for _, art := range artifacts {
		typesUsed[art.StructureType] = struct{}{}
		validitySum += art.Validation.OverallScore
		noveltySum += art.Validation.Novelty
	}
	m.TypesUsed = len(typesUsed)

	if len(artifacts) > 0 {
		m.IngredientDiversity = float64(uniqueIngredients) / float64(len(artifacts))
		m.MeanValidity = validitySum / float64(len(artifacts))
		m.MeanNovelty = noveltySum / float64(len(artifacts))
	}
	if totalTypes > 0 {
		m.StructuralCoverage = float64(m.TypesUsed) / float64(totalTypes)
	}
	return m
}

package analysis

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/bracketlabs/bracket/internal/model"
	"github.com/bracketlabs/bracket/internal/worker"
)

// CorpusStore is the persistence surface the analyzer reads and writes.
// It only ever touches derived fields.
type CorpusStore interface {
	ListArtifacts(ctx context.Context) ([]*model.StoredArtifact, error)
	SaveRelation(ctx context.Context, rel *model.Relation) error
	UpdateClusterIDs(ctx context.Context, assignments map[uuid.UUID]int) error
	ListTaxonomy(ctx context.Context) ([]model.StructureTypeEntry, error)
	IngredientCount(ctx context.Context) (int, error)
	RelationCount(ctx context.Context) (int, error)
}

// Analyzer runs the full out-of-band pass: relation detection across
// all artifact pairs, threshold clustering, and corpus metrics.
type Analyzer struct {
	store CorpusStore
	cfg   model.AnalysisConfig
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(store CorpusStore, cfg model.AnalysisConfig) *Analyzer {
	return &Analyzer{store: store, cfg: cfg}
}

// Run analyzes the whole corpus and returns its metrics. Relation
// detection fans out across the configured worker count; each artifact
// is compared only against later artifacts so every pair is visited
// once.
func (a *Analyzer) Run(ctx context.Context) (*CorpusMetrics, error) {
	artifacts, err := a.store.ListArtifacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	indices := make([]int, len(artifacts))
	for i := range indices {
		indices[i] = i
	}
	batches := worker.Map(ctx, a.cfg.Workers, indices, func(ctx context.Context, i int) []model.Relation {
		return DetectRelations(artifacts[i], artifacts[i+1:], a.cfg.RelationSimilarityThreshold)
	})

	saved := 0
	for _, batch := range batches {
		for i := range batch {
			if err := a.store.SaveRelation(ctx, &batch[i]); err != nil {
				return nil, fmt.Errorf("save relation: %w", err)
			}
			saved++
		}
	}
	log.Printf("analysis: saved %d relations across %d artifacts", saved, len(artifacts))

	assignments := Cluster(artifacts, a.cfg.ClusterSimilarityThreshold, a.cfg.MinClusterSize)
	if len(assignments) > 0 {
		if err := a.store.UpdateClusterIDs(ctx, assignments); err != nil {
			return nil, fmt.Errorf("update clusters: %w", err)
		}
	}
	clusters := countClusters(assignments)

	taxonomy, err := a.store.ListTaxonomy(ctx)
	if err != nil {
		return nil, fmt.Errorf("list taxonomy: %w", err)
	}
	ingredients, err := a.store.IngredientCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count ingredients: %w", err)
	}
	relations, err := a.store.RelationCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count relations: %w", err)
	}

	return ComputeMetrics(artifacts, ingredients, len(taxonomy), relations, clusters), nil
}

func countClusters(assignments map[uuid.UUID]int) int {
	seen := make(map[int]struct{})
	for _, id := range assignments {
		seen[id] = struct{}{}
	}
	return len(seen)
}

package analysis

import (
	"github.com/google/uuid"

	"github.com/bracketlabs/bracket/internal/corpus"
	"github.com/bracketlabs/bracket/internal/model"
)

// Cluster groups artifacts by greedy threshold clustering: each
// artifact joins the first cluster whose centroid is at least
// threshold-similar, otherwise it opens a new cluster. Clusters smaller
// than minSize are treated as noise and excluded from the result.
// Deterministic for a fixed artifact order.
func Cluster(artifacts []*model.StoredArtifact, threshold float64, minSize int) map[uuid.UUID]int {
	type cluster struct {
		centroid []float32
		members  []uuid.UUID
	}
	var clusters []*cluster

	for _, art := range artifacts {
		emb := art.Embeddings.Artifact
		if len(emb) == 0 {
			continue
		}

		bestIdx := -1
		bestSim := 0.0
		for i, c := range clusters {
			if sim := corpus.CosineSimilarity(emb, c.centroid); sim >= threshold && sim > bestSim {
				bestIdx, bestSim = i, sim
			}
		}

		if bestIdx >= 0 {
			c := clusters[bestIdx]
			c.members = append(c.members, art.ID)
			c.centroid = updateCentroid(c.centroid, emb, len(c.members))
		} else {
			clusters = append(clusters, &cluster{
				centroid: append([]float32(nil), emb...),
				members:  []uuid.UUID{art.ID},
			})
		}
	}

	assignments := make(map[uuid.UUID]int)
	clusterID := 0
	for _, c := range clusters {
		if len(c.members) < minSize {
			continue
		}
		for _, id := range c.members {
			assignments[id] = clusterID
		}
		clusterID++
	}
	return assignments
}

// updateCentroid folds a new member into the running mean.
func updateCentroid(centroid, emb []float32, n int) []float32 {
	out := make([]float32, len(centroid))
	for i := range centroid {
		if i < len(emb) {
			out[i] = centroid[i] + (emb[i]-centroid[i])/float32(n)
		} else {
			out[i] = centroid[i]
		}
	}
	return out
}

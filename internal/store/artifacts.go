package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bracketlabs/bracket/internal/corpus"
	"github.com/bracketlabs/bracket/internal/model"
)

// SaveArtifact commits an artifact and its ingredient uses as one
// transaction: the artifact row, ingredient upserts, join rows, and
// usage counters move together or not at all. Idempotent on the
// artifact id — replaying a committed save is a no-op, so checkpoint
// recovery can always retry it safely.
func (s *Store) SaveArtifact(ctx context.Context, art *model.StoredArtifact, uses []*model.IngredientUse) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyStoreErr("begin artifact tx", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM artifacts WHERE id = ?`, art.ID.String()).Scan(&exists)
	if err != nil {
		return classifyStoreErr("check artifact", err)
	}
	if exists > 0 {
		return nil
	}

	topVec, err := s.vectorToString(art.Embeddings.FrameTop)
	if err != nil {
		return fmt.Errorf("frame top embedding: %w", err)
	}
	bottomVec, err := s.vectorToString(art.Embeddings.FrameBottom)
	if err != nil {
		return fmt.Errorf("frame bottom embedding: %w", err)
	}
	boundedVec, err := s.vectorToString(art.Embeddings.Bounded)
	if err != nil {
		return fmt.Errorf("bounded embedding: %w", err)
	}
	artVec, err := s.vectorToString(art.Embeddings.Artifact)
	if err != nil {
		return fmt.Errorf("artifact embedding: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO artifacts (
			id, name, description, frame_top, frame_bottom, bounded, structure_type,
			containment_argument, commentary, source_name, source_url, source_snippet,
			frame_top_embedding, frame_bottom_embedding, bounded_embedding, artifact_embedding,
			frame_compatibility, containment, non_triviality, novelty, overall_score,
			validation_rationale, recommendation, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, vector32(?), vector32(?), vector32(?), vector32(?), ?, ?, ?, ?, ?, ?, ?, ?)`,
		art.ID.String(), art.Name, art.Description, art.FrameTop, art.FrameBottom, art.Bounded, art.StructureType,
		art.ContainmentArgument, art.Commentary, art.SourceName, art.SourceURL, art.SourceSnippet,
		topVec, bottomVec, boundedVec, artVec,
		art.Validation.FrameCompatibility, art.Validation.Containment, art.Validation.NonTriviality,
		art.Validation.Novelty, art.Validation.OverallScore,
		art.Validation.Rationale, string(art.Validation.Recommendation), art.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return classifyStoreErr("insert artifact", err)
	}

	for _, use := range uses {
		if err := s.saveIngredientUse(ctx, tx, art.ID, use); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return classifyStoreErr("commit artifact", err)
	}
	return nil
}

func (s *Store) saveIngredientUse(ctx context.Context, tx *sql.Tx, artifactID uuid.UUID, use *model.IngredientUse) error {
	ing := use.Ingredient
	if use.Reused {
		_, err := tx.ExecContext(ctx,
			`UPDATE ingredients SET usage_count = usage_count + 1 WHERE id = ?`, ing.ID.String())
		if err != nil {
			return classifyStoreErr("bump ingredient", err)
		}
	} else {
		vec, err := s.vectorToString(ing.Embedding)
		if err != nil {
			return fmt.Errorf("ingredient embedding: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ingredients (id, text, kind, embedding, usage_count, first_artifact_id, first_seen_at)
			 VALUES (?, ?, ?, vector32(?), 1, ?, ?)`,
			ing.ID.String(), ing.Text, string(ing.Kind), vec,
			ing.FirstArtifactID.String(), ing.FirstSeenAt.Format(time.RFC3339Nano))
		if err != nil {
			return classifyStoreErr("insert ingredient", err)
		}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO artifact_ingredients (artifact_id, ingredient_id, role) VALUES (?, ?, ?)`,
		artifactID.String(), ing.ID.String(), string(use.Role))
	if err != nil {
		return classifyStoreErr("insert ingredient join", err)
	}
	return nil
}

// LoadCorpus builds the in-memory corpus view: every artifact embedding
// with its type, and every ingredient.
func (s *Store) LoadCorpus(ctx context.Context) (*corpus.Index, error) {
	ix := corpus.NewIndex()

	rows, err := s.db.QueryContext(ctx, `SELECT artifact_embedding, structure_type FROM artifacts`)
	if err != nil {
		return nil, classifyStoreErr("load artifacts", err)
	}
	defer rows.Close()
	for rows.Next() {
		var blob []byte
		var structureType string
		if err := rows.Scan(&blob, &structureType); err != nil {
			return nil, fmt.Errorf("scan artifact row: %w", err)
		}
		vec, err := s.extractVector(blob)
		if err != nil {
			return nil, err
		}
		ix.AddArtifact(vec, structureType)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreErr("iterate artifacts", err)
	}

	ingRows, err := s.db.QueryContext(ctx,
		`SELECT id, text, kind, embedding, usage_count, first_artifact_id, first_seen_at FROM ingredients`)
	if err != nil {
		return nil, classifyStoreErr("load ingredients", err)
	}
	defer ingRows.Close()
	for ingRows.Next() {
		ing, err := s.scanIngredient(ingRows)
		if err != nil {
			return nil, err
		}
		ix.AddIngredient(ing)
	}
	return ix, ingRows.Err()
}

func (s *Store) scanIngredient(rows *sql.Rows) (*model.Ingredient, error) {
	var ing model.Ingredient
	var id, firstArtifact, kind, firstSeen string
	var blob []byte
	if err := rows.Scan(&id, &ing.Text, &kind, &blob, &ing.UsageCount, &firstArtifact, &firstSeen); err != nil {
		return nil, fmt.Errorf("scan ingredient row: %w", err)
	}

	var err error
	if ing.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("ingredient id: %w", err)
	}
	if ing.FirstArtifactID, err = uuid.Parse(firstArtifact); err != nil {
		return nil, fmt.Errorf("ingredient provenance id: %w", err)
	}
	if ing.FirstSeenAt, err = time.Parse(time.RFC3339Nano, firstSeen); err != nil {
		return nil, fmt.Errorf("ingredient first seen: %w", err)
	}
	ing.Kind = model.IngredientKind(kind)
	if ing.Embedding, err = s.extractVector(blob); err != nil {
		return nil, err
	}
	return &ing, nil
}

// MaxSimilarity returns the highest cosine similarity between vec and
// any stored artifact embedding, preferring the vector index and
// falling back to a full scan when vector_top_k is unavailable.
func (s *Store) MaxSimilarity(ctx context.Context, vec []float32) (float64, error) {
	vs, err := s.vectorToString(vec)
	if err != nil {
		return 0, err
	}

	var distance float64
	err = s.db.QueryRowContext(ctx, `
		SELECT vector_distance_cos(a.artifact_embedding, vector32(?)) AS distance
		FROM vector_top_k('idx_artifacts_vector', vector32(?), 1) AS v
		JOIN artifacts a ON a.rowid = v.id`, vs, vs).Scan(&distance)
	switch {
	case err == sql.ErrNoRows:
		return 0, nil
	case err != nil && strings.Contains(strings.ToLower(err.Error()), "no such function: vector_top_k"):
		return s.maxSimilarityScan(ctx, vs)
	case err != nil:
		return 0, classifyStoreErr("vector search", err)
	}
	return 1.0 - distance, nil
}

func (s *Store) maxSimilarityScan(ctx context.Context, vs string) (float64, error) {
	var distance float64
	err := s.db.QueryRowContext(ctx, `
		SELECT vector_distance_cos(artifact_embedding, vector32(?)) AS distance
		FROM artifacts
		ORDER BY distance ASC
		LIMIT 1`, vs).Scan(&distance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, classifyStoreErr("vector scan", err)
	}
	return 1.0 - distance, nil
}

// ArtifactCount returns the corpus size.
func (s *Store) ArtifactCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM artifacts`).Scan(&n)
	if err != nil {
		return 0, classifyStoreErr("count artifacts", err)
	}
	return n, nil
}

// ListArtifacts returns every stored artifact with embeddings decoded,
// in creation order. Used by out-of-band analysis.
func (s *Store) ListArtifacts(ctx context.Context) ([]*model.StoredArtifact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
			id, name, description, frame_top, frame_bottom, bounded, structure_type,
			containment_argument, commentary, source_name, source_url, source_snippet,
			frame_top_embedding, frame_bottom_embedding, bounded_embedding, artifact_embedding,
			frame_compatibility, containment, non_triviality, novelty, overall_score,
			validation_rationale, recommendation, cluster_id, created_at
		FROM artifacts ORDER BY created_at ASC`)
	if err != nil {
		return nil, classifyStoreErr("list artifacts", err)
	}
	defer rows.Close()

	var out []*model.StoredArtifact
	for rows.Next() {
		art, err := s.scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, art)
	}
	return out, rows.Err()
}

func (s *Store) scanArtifact(rows *sql.Rows) (*model.StoredArtifact, error) {
	var art model.StoredArtifact
	var id, recommendation, createdAt string
	var topBlob, bottomBlob, boundedBlob, artBlob []byte
	var clusterID sql.NullInt64

	err := rows.Scan(
		&id, &art.Name, &art.Description, &art.FrameTop, &art.FrameBottom, &art.Bounded, &art.StructureType,
		&art.ContainmentArgument, &art.Commentary, &art.SourceName, &art.SourceURL, &art.SourceSnippet,
		&topBlob, &bottomBlob, &boundedBlob, &artBlob,
		&art.Validation.FrameCompatibility, &art.Validation.Containment, &art.Validation.NonTriviality,
		&art.Validation.Novelty, &art.Validation.OverallScore,
		&art.Validation.Rationale, &recommendation, &clusterID, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan artifact row: %w", err)
	}

	if art.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("artifact id: %w", err)
	}
	art.Validation.Recommendation = model.Recommendation(recommendation)
	if art.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("artifact created at: %w", err)
	}
	if clusterID.Valid {
		n := int(clusterID.Int64)
		art.ClusterID = &n
	}
	if art.Embeddings.FrameTop, err = s.extractVector(topBlob); err != nil {
		return nil, err
	}
	if art.Embeddings.FrameBottom, err = s.extractVector(bottomBlob); err != nil {
		return nil, err
	}
	if art.Embeddings.Bounded, err = s.extractVector(boundedBlob); err != nil {
		return nil, err
	}
	if art.Embeddings.Artifact, err = s.extractVector(artBlob); err != nil {
		return nil, err
	}
	return &art, nil
}

// UpdateClusterIDs upserts the derived cluster assignment for a batch
// of artifacts. Core fields are never touched.
func (s *Store) UpdateClusterIDs(ctx context.Context, assignments map[uuid.UUID]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyStoreErr("begin cluster tx", err)
	}
	defer tx.Rollback()

	for id, cluster := range assignments {
		if _, err := tx.ExecContext(ctx,
			`UPDATE artifacts SET cluster_id = ? WHERE id = ?`, cluster, id.String()); err != nil {
			return classifyStoreErr("update cluster", err)
		}
	}
	return tx.Commit()
}

// SaveRelation upserts a typed edge between two artifacts; replaying
// the same (a, b, type) edge refreshes its similarity.
func (s *Store) SaveRelation(ctx context.Context, rel *model.Relation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relations (id, artifact_a, artifact_b, type, similarity, rationale, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (artifact_a, artifact_b, type)
		DO UPDATE SET similarity = excluded.similarity, rationale = excluded.rationale`,
		rel.ID.String(), rel.ArtifactA.String(), rel.ArtifactB.String(), string(rel.Type),
		rel.Similarity, rel.Rationale, rel.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return classifyStoreErr("save relation", err)
	}
	return nil
}

// IngredientCount returns the number of unique ingredients.
func (s *Store) IngredientCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM ingredients`).Scan(&n)
	if err != nil {
		return 0, classifyStoreErr("count ingredients", err)
	}
	return n, nil
}

// RelationCount returns the number of stored relations.
func (s *Store) RelationCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM relations`).Scan(&n)
	if err != nil {
		return 0, classifyStoreErr("count relations", err)
	}
	return n, nil
}

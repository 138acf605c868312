package model

import (
	"time"

	"github.com/google/uuid"
)

// Candidate is an extraction hypothesis produced by the identification call.
// It is ephemeral: consumed by the selector and discarded after assembly.
type Candidate struct {
	FrameTop      string  `json:"frame_top"`      // First bounding concept
	FrameBottom   string  `json:"frame_bottom"`   // Second bounding concept
	Bounded       string  `json:"bounded"`        // Concept constrained between the frames
	StructureType string  `json:"structure_type"` // Declared taxonomy type
	Confidence    float64 `json:"confidence"`     // Extraction confidence in [0,1]
	Rationale     string  `json:"rationale"`      // Free-text extraction rationale
}

// AssembledArtifact is a candidate elevated to a named, described unit.
// It exists only in-flight until validated.
type AssembledArtifact struct {
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	ContainmentArgument string    `json:"containment_argument"`
	Commentary          string    `json:"commentary"`
	SourceSnippet       string    `json:"source_snippet"`
	Candidate           Candidate `json:"candidate"`
}

// Recommendation is the validator's verdict band.
type Recommendation string

const (
	RecommendAccept Recommendation = "accept"
	RecommendReview Recommendation = "review"
	RecommendReject Recommendation = "reject"
)

// ValidationResult holds the four component scores, the weighted overall
// score, and the recommendation. Immutable once computed.
type ValidationResult struct {
	FrameCompatibility float64        `json:"frame_compatibility"` // Judged
	Containment        float64        `json:"containment"`         // Judged
	NonTriviality      float64        `json:"non_triviality"`      // Computed from embeddings
	Novelty            float64        `json:"novelty"`             // Computed against the corpus
	OverallScore       float64        `json:"overall_score"`
	Rationale          string         `json:"rationale"`
	Recommendation     Recommendation `json:"recommendation"`
}

// ArtifactEmbeddings are the four vectors stored per artifact.
type ArtifactEmbeddings struct {
	FrameTop    []float32 `json:"frame_top"`
	FrameBottom []float32 `json:"frame_bottom"`
	Bounded     []float32 `json:"bounded"`
	Artifact    []float32 `json:"artifact"` // Whole-artifact embedding
}

// StoredArtifact is the durable corpus record. Created only by successful
// pipeline completion; core fields are never mutated afterwards. Derived
// fields (cluster assignment, relations) are attached by out-of-band
// analysis.
type StoredArtifact struct {
	ID                  uuid.UUID          `json:"id"`
	Name                string             `json:"name"`
	Description         string             `json:"description"`
	FrameTop            string             `json:"frame_top"`
	FrameBottom         string             `json:"frame_bottom"`
	Bounded             string             `json:"bounded"`
	StructureType       string             `json:"structure_type"`
	ContainmentArgument string             `json:"containment_argument"`
	Commentary          string             `json:"commentary"`
	SourceName          string             `json:"source_name"`
	SourceURL           string             `json:"source_url,omitempty"`
	SourceSnippet       string             `json:"source_snippet,omitempty"`
	Embeddings          ArtifactEmbeddings `json:"embeddings"`
	Validation          ValidationResult   `json:"validation"`
	ClusterID           *int               `json:"cluster_id,omitempty"` // Derived, nil until clustered
	CreatedAt           time.Time          `json:"created_at"`
}

// IngredientKind distinguishes the two ingredient positions.
type IngredientKind string

const (
	IngredientFrame   IngredientKind = "frame"
	IngredientBounded IngredientKind = "bounded"
)

// IngredientRole tags an artifact↔ingredient join row with the position
// the ingredient occupies in that artifact.
type IngredientRole string

const (
	RoleFrameTop    IngredientRole = "frame_top"
	RoleFrameBottom IngredientRole = "frame_bottom"
	RoleBounded     IngredientRole = "bounded"
)

// Ingredient is a canonical sub-concept shared across artifacts.
// UsageCount equals the number of join rows referencing it. FirstArtifactID
// and FirstSeenAt are provenance: set on creation, immutable afterwards.
type Ingredient struct {
	ID              uuid.UUID      `json:"id"`
	Text            string         `json:"text"`
	Kind            IngredientKind `json:"kind"`
	Embedding       []float32      `json:"embedding,omitempty"`
	UsageCount      int            `json:"usage_count"`
	FirstArtifactID uuid.UUID      `json:"first_artifact_id"`
	FirstSeenAt     time.Time      `json:"first_seen_at"`
}

// IngredientUse binds a resolved ingredient to the role it plays in one
// artifact. Reused marks resolutions that matched an existing ingredient.
type IngredientUse struct {
	Ingredient *Ingredient    `json:"ingredient"`
	Role       IngredientRole `json:"role"`
	Reused     bool           `json:"reused"`
}

// RelationType classifies a typed edge between two stored artifacts.
type RelationType string

const (
	RelationSimilar        RelationType = "similar"
	RelationSharesFrame    RelationType = "shares_frame"
	RelationInverse        RelationType = "inverse"
	RelationDomainTransfer RelationType = "domain_transfer"
)

// Relation is a typed edge between two stored artifacts, created by
// post-hoc analysis, never by the pipeline directly.
type Relation struct {
	ID         uuid.UUID    `json:"id"`
	ArtifactA  uuid.UUID    `json:"artifact_a"`
	ArtifactB  uuid.UUID    `json:"artifact_b"`
	Type       RelationType `json:"type"`
	Similarity float64      `json:"similarity"`
	Rationale  string       `json:"rationale,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// StructureTypeEntry is a taxonomy entry. Seeded once at initialization;
// curated additions carry IsProposed until reviewed.
type StructureTypeEntry struct {
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	Parent            string     `json:"parent,omitempty"`
	ExampleArtifactID *uuid.UUID `json:"example_artifact_id,omitempty"`
	IsProposed        bool       `json:"is_proposed"`
}

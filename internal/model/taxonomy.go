package model

// SeedTaxonomy returns the built-in structure types. Seeded into the
// store once at initialization; later additions are curated and flagged
// IsProposed until reviewed.
func SeedTaxonomy() []StructureTypeEntry {
	return []StructureTypeEntry{
		{Name: "bound", Description: "A quantity or concept squeezed between an upper and a lower limit."},
		{Name: "interpolation", Description: "A value or method blending two endpoints."},
		{Name: "tension", Description: "A position held between two opposing forces or demands."},
		{Name: "gradient", Description: "A continuum between two extremes with the bounded concept at an intermediate point."},
		{Name: "containment", Description: "A concept enclosed by two structural boundaries."},
		{Name: "mediation", Description: "An intermediary that connects or translates between two parties."},
		{Name: "transition", Description: "A state between two phases or regimes."},
		{Name: "tradeoff", Description: "A choice constrained by two competing costs."},
		{Name: "synthesis", Description: "A resolution combining two opposing positions."},
		{Name: "hierarchy", Description: "A level sitting between a broader and a narrower category."},
	}
}

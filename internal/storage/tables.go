package storage

import (
	"fmt"
	"strings"

	"github.com/nidhogg/wormwood/internal/memory"
)

// Collection names double as table names and vector collection names.
const (
	CollExperiences = "experiences"
	CollFacts       = "knowledge_facts"
	CollSpatial     = "spatial_memories"
	CollStrategies  = "strategies"
	CollLinks       = "memory_links"
)

// CollectionNames lists the vector-searchable collections.
func CollectionNames() []string {
	return []string{CollExperiences, CollFacts, CollSpatial, CollStrategies}
}

// collectionSpec is the translation record between a memory type and its
// physical table: which column carries the query timestamp and which columns,
// if any, carry 3-D coordinates.
type collectionSpec struct {
	table    string
	tsColumn string
	coords   [3]string // zero value means the type has no location
}

func specFor(t memory.Type) (collectionSpec, error) {
	switch t {
	case memory.TypeEpisodic:
		return collectionSpec{
			table:    CollExperiences,
			tsColumn: "occurred_at",
			coords:   [3]string{"loc_x", "loc_y", "loc_z"},
		}, nil
	case memory.TypeSemantic:
		return collectionSpec{table: CollFacts, tsColumn: "last_updated"}, nil
	case memory.TypeSpatial:
		return collectionSpec{
			table:    CollSpatial,
			tsColumn: "last_visited",
			coords:   [3]string{"coord_x", "coord_y", "coord_z"},
		}, nil
	case memory.TypeProcedural:
		return collectionSpec{table: CollStrategies, tsColumn: "last_updated"}, nil
	default:
		return collectionSpec{}, fmt.Errorf("unknown memory type %q", t)
	}
}

// Embedding text composition per type. These strings are what similarity
// search actually matches against, so they concentrate the discriminative
// fields of each entity.

func experienceText(e *memory.Experience) string {
	return strings.TrimSpace(e.Goal + " " + string(e.Outcome) + " " + strings.Join(e.Tags, " "))
}

func factText(f *memory.KnowledgeFact) string {
	return strings.TrimSpace(f.FactType + " " + f.Content + " " + strings.Join(f.Tags, " "))
}

func spatialText(s *memory.SpatialMemory) string {
	return strings.TrimSpace(s.RegionType + " " + strings.Join(s.Tags, " "))
}

func strategyText(s *memory.Strategy) string {
	return strings.TrimSpace(s.Name + " " + s.Description + " " + strings.Join(s.Tags, " "))
}

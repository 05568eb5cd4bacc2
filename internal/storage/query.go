package storage

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/nidhogg/wormwood/internal/memory"
	"github.com/nidhogg/wormwood/internal/similarity"
)

const defaultQueryLimit = 10

// QueryByType executes one filtered, scored, sorted query against a single
// memory type. With query text and an available scorer, candidates are ranked
// by cosine similarity and cut at the minimum relevance; otherwise results
// come back in recency order. The limit is applied after sorting.
func (e *Engine) QueryByType(ctx context.Context, t memory.Type, q memory.Query) ([]memory.Match, error) {
	spec, err := specFor(t)
	if err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = defaultQueryLimit
	}

	if q.Text != "" && e.scorer.Available() {
		matches, serr := e.querySemantic(ctx, t, spec, q)
		if serr == nil {
			return matches, nil
		}
		// Scoring outage is a degradation, not a failure: fall back to the
		// recency path so the caller still gets filtered results.
		e.logger.Warn("semantic scoring failed, falling back to recency order",
			zap.String("collection", spec.table), zap.Error(serr))
	}
	return e.queryRecency(ctx, t, spec, q)
}

func (e *Engine) queryRecency(ctx context.Context, t memory.Type, spec collectionSpec, q memory.Query) ([]memory.Match, error) {
	b := filtersFor(spec, q)
	sql := fmt.Sprintf("%s %s ORDER BY %s DESC LIMIT %s",
		selectFor(t), b.Clause(), spec.tsColumn, b.bind(q.Limit))

	rows, err := e.db.Query(ctx, sql, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", spec.table, err)
	}
	defer rows.Close()

	var matches []memory.Match
	for rows.Next() {
		rec, err := scanFor(t, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", spec.table, err)
		}
		matches = append(matches, memory.Match{Type: t, Relevance: 1.0, Record: rec})
	}
	return matches, rows.Err()
}

func (e *Engine) querySemantic(ctx context.Context, t memory.Type, spec collectionSpec, q memory.Query) ([]memory.Match, error) {
	// Overfetch from the vector index: the SQL filters below may reject
	// candidates the index ranked highly.
	candidates := max(q.Limit*4, 20)
	scored, err := e.scorer.Score(ctx, spec.table, q.Text, q.AgentID, candidates)
	if err != nil {
		return nil, err
	}

	ids, relevance := rankScored(scored, q.MinRelevance)
	if len(ids) == 0 {
		return []memory.Match{}, nil
	}

	b := filtersFor(spec, q)
	b.IDIn(ids)
	sql := fmt.Sprintf("%s %s", selectFor(t), b.Clause())

	rows, err := e.db.Query(ctx, sql, b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", spec.table, err)
	}
	defer rows.Close()

	byID := make(map[string]memory.Record)
	for rows.Next() {
		rec, err := scanFor(t, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", spec.table, err)
		}
		byID[rec.RecordID()] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assembleScored(t, ids, relevance, byID, q.Limit), nil
}

// rankScored applies the minimum-relevance cut and orders the surviving
// candidate ids by similarity descending, regardless of the order the vector
// index returned them in.
func rankScored(scored []similarity.Scored, minRelevance float64) ([]string, map[string]float64) {
	relevance := make(map[string]float64, len(scored))
	ids := make([]string, 0, len(scored))
	for _, s := range scored {
		if s.Score < minRelevance {
			continue
		}
		relevance[s.ID] = s.Score
		ids = append(ids, s.ID)
	}
	sort.SliceStable(ids, func(i, j int) bool { return relevance[ids[i]] > relevance[ids[j]] })
	return ids, relevance
}

// assembleScored reorders SQL-filtered rows into similarity order. Ids the
// filters dropped are skipped; the limit is applied after ordering.
func assembleScored(t memory.Type, ids []string, relevance map[string]float64, byID map[string]memory.Record, limit int) []memory.Match {
	matches := make([]memory.Match, 0, len(byID))
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			continue
		}
		matches = append(matches, memory.Match{Type: t, Relevance: relevance[id], Record: rec})
		if len(matches) >= limit {
			break
		}
	}
	return matches
}

func selectFor(t memory.Type) string {
	switch t {
	case memory.TypeEpisodic:
		return selectExperiences
	case memory.TypeSemantic:
		return selectFacts
	case memory.TypeSpatial:
		return selectSpatial
	default:
		return selectStrategies
	}
}

func scanFor(t memory.Type, row scanRow) (memory.Record, error) {
	switch t {
	case memory.TypeEpisodic:
		return scanExperienceRow(row)
	case memory.TypeSemantic:
		return scanFactRow(row)
	case memory.TypeSpatial:
		return scanSpatialRow(row)
	default:
		return scanStrategyRow(row)
	}
}

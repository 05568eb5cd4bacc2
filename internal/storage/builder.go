package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/wormwood/internal/memory"
)

// whereBuilder translates typed memory filters into a parameterized SQL
// WHERE clause. The filter semantics (inclusive time range, tag-AND, spatial
// radius) are the stable contract; the SQL text is an implementation detail.
type whereBuilder struct {
	conds []string
	args  []any
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{}
}

// bind registers an argument and returns its placeholder.
func (b *whereBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// Equal adds an equality filter.
func (b *whereBuilder) Equal(column string, v any) *whereBuilder {
	b.conds = append(b.conds, fmt.Sprintf("%s = %s", column, b.bind(v)))
	return b
}

// TimeRange adds inclusive bounds on a timestamp column. Nil bounds are open.
func (b *whereBuilder) TimeRange(column string, since, until *time.Time) *whereBuilder {
	if since != nil {
		b.conds = append(b.conds, fmt.Sprintf("%s >= %s", column, b.bind(*since)))
	}
	if until != nil {
		b.conds = append(b.conds, fmt.Sprintf("%s <= %s", column, b.bind(*until)))
	}
	return b
}

// TagsAll requires every listed tag to be present (AND semantics).
func (b *whereBuilder) TagsAll(tags []string) *whereBuilder {
	if len(tags) > 0 {
		b.conds = append(b.conds, fmt.Sprintf("tags @> %s", b.bind(tags)))
	}
	return b
}

// WithinRadius constrains rows to Euclidean 3-D distance <= radius from loc.
func (b *whereBuilder) WithinRadius(coords [3]string, loc memory.Location, radius float64) *whereBuilder {
	b.conds = append(b.conds, fmt.Sprintf("%s <= %s",
		distanceExpr(b, coords, loc), b.bind(radius)))
	return b
}

// IDIn restricts rows to the given ids.
func (b *whereBuilder) IDIn(ids []string) *whereBuilder {
	b.conds = append(b.conds, fmt.Sprintf("id = ANY(%s)", b.bind(ids)))
	return b
}

// Clause renders the WHERE clause, or an empty string with no filters.
func (b *whereBuilder) Clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.conds, " AND ")
}

// Args returns the bound arguments in placeholder order.
func (b *whereBuilder) Args() []any {
	return b.args
}

// distanceExpr renders sqrt(Δx²+Δy²+Δz²) against bound query coordinates.
// No geodesic assumptions: the simulated world is flat Euclidean space.
func distanceExpr(b *whereBuilder, coords [3]string, loc memory.Location) string {
	return fmt.Sprintf(
		"sqrt(power(%s - %s, 2) + power(%s - %s, 2) + power(%s - %s, 2))",
		coords[0], b.bind(loc.X),
		coords[1], b.bind(loc.Y),
		coords[2], b.bind(loc.Z),
	)
}

// filtersFor applies every filter a Query carries that the collection
// supports. The spatial filter only applies to types with coordinates.
func filtersFor(spec collectionSpec, q memory.Query) *whereBuilder {
	b := newWhereBuilder()
	b.Equal("agent_id", q.AgentID)
	b.TimeRange(spec.tsColumn, q.Since, q.Until)
	b.TagsAll(q.Tags)
	if q.Location != nil && q.Radius > 0 && spec.coords[0] != "" {
		b.WithinRadius(spec.coords, *q.Location, q.Radius)
	}
	return b
}

package dbv

import (
	"strings"

	"github.com/pkg/errors"
)

type joinKind uint8

const (
	joinFrom joinKind = iota
	joinInner
	joinLeft
	joinCross
	joinLeftUnconnected
)

// joinEdge is a foreign key between two query tables, seen from table from.
type joinEdge struct {
	from, to       int
	fromCol, toCol string
}

func (e joinEdge) reversed() joinEdge {
	return joinEdge{from: e.to, to: e.from, fromCol: e.toCol, toCol: e.fromCol}
}

// joinStep places one table in the FROM clause. edges connect it to tables
// placed before it.
type joinStep struct {
	table int
	kind  joinKind
	edges []joinEdge
}

// queryGraph has one node per query table and one edge per usable foreign
// key between them, in both directions.
type queryGraph struct {
	tables []*queryTable
	adj    [][]joinEdge
}

func newQueryGraph(tables []*queryTable) (*queryGraph, error) {
	g := &queryGraph{tables: tables, adj: make([][]joinEdge, len(tables))}
	for i, a := range tables {
		for _, ci := range a.info.Columns {
			fk := ci.References
			if fk == nil || a.row.dbvTable().fkIgnored(ci.Name) {
				continue
			}
			for j, b := range tables {
				if i == j || !strings.EqualFold(b.info.Name, fk.Table) {
					continue
				}
				target, ok := b.info.Lookup(fk.Column)
				if !ok {
					return nil, errors.Wrapf(ErrBadForeignKey, "%s.%s references %s.%s",
						a.info.Name, ci.Name, b.info.Name, fk.Column)
				}
				e := joinEdge{from: i, to: j, fromCol: ci.Name, toCol: target.Name}
				g.adj[i] = append(g.adj[i], e)
				g.adj[j] = append(g.adj[j], e.reversed())
			}
		}
	}
	return g, nil
}

// connected reports whether every table can be reached from the first one.
func (g *queryGraph) connected() bool {
	if len(g.tables) == 0 {
		return true
	}
	seen := make([]bool, len(g.tables))
	seen[0] = true
	queue := []int{0}
	count := 1
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.adj[cur] {
			if !seen[e.to] {
				seen[e.to] = true
				count++
				queue = append(queue, e.to)
			}
		}
	}
	return count == len(g.tables)
}

// plan orders the tables so that each one joins onto tables already placed.
// Required tables come first, optional (outer joined) tables after them.
func (g *queryGraph) plan(cartesian bool) ([]joinStep, error) {
	placed := make([]bool, len(g.tables))
	steps := make([]joinStep, 0, len(g.tables))

	place := func(i int, kind joinKind) {
		var edges []joinEdge
		for _, e := range g.adj[i] {
			if placed[e.to] {
				edges = append(edges, e)
			}
		}
		placed[i] = true
		steps = append(steps, joinStep{table: i, kind: kind, edges: edges})
	}

	expand := func(optional bool) {
		queue := make([]int, 0, len(steps))
		for _, s := range steps {
			queue = append(queue, s.table)
		}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, e := range g.adj[cur] {
				next := g.tables[e.to]
				if placed[e.to] || next.optional != optional {
					continue
				}
				kind := joinInner
				if optional {
					kind = joinLeft
				}
				place(e.to, kind)
				queue = append(queue, e.to)
			}
		}
	}

	firstUnplaced := func(optional bool) int {
		for i, t := range g.tables {
			if !placed[i] && t.optional == optional {
				return i
			}
		}
		return -1
	}

	for {
		i := firstUnplaced(false)
		if i < 0 {
			break
		}
		if len(steps) == 0 {
			place(i, joinFrom)
		} else {
			if !cartesian {
				return nil, errors.Wrapf(ErrCartesianJoin, "table %s", g.tables[i].info.Name)
			}
			place(i, joinCross)
		}
		expand(false)
	}

	// A query made only of optional tables starts from the first of them.
	if len(steps) == 0 && len(g.tables) > 0 {
		place(0, joinFrom)
	}

	for {
		expand(true)
		i := firstUnplaced(true)
		if i < 0 {
			break
		}
		if !cartesian {
			return nil, errors.Wrapf(ErrCartesianJoin, "table %s", g.tables[i].info.Name)
		}
		place(i, joinLeftUnconnected)
	}
	return steps, nil
}

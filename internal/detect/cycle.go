package detect

import (
	"context"
	"sort"

	"github.com/opensource-finance/mulegraph/internal/domain"
	"github.com/opensource-finance/mulegraph/internal/graph"
)

// Cycles reports every simple directed cycle of length in
// [cfg.CycleMinLength, cfg.CycleMaxLength], one Finding per canonical
// cycle. A cycle is canonicalized by rotating to start at its
// lexicographically smallest member, so the same cycle discovered from
// different starting nodes collapses to a single finding.
func Cycles(ctx context.Context, g *graph.DirectedGraph, cfg domain.EngineConfig) ([]domain.Finding, error) {
	seen := make(map[string]domain.Finding)

	for _, start := range g.Order() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		path := []string{start}
		onPath := map[string]int{start: 0}
		walkCycles(g, start, start, path, onPath, cfg.CycleMinLength, cfg.CycleMaxLength, seen)
	}

	out := make([]domain.Finding, 0, len(seen))
	for _, f := range seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return lexLess(out[i].Members, out[j].Members)
	})
	return out, nil
}

func walkCycles(g *graph.DirectedGraph, origin, current string, path []string, onPath map[string]int, minLen, maxLen int, seen map[string]domain.Finding) {
	if len(path) > maxLen {
		return
	}
	node := g.Node(current)
	if node == nil {
		return
	}

	visitedNeighbor := make(map[string]bool, len(node.OutEdges))
	for _, e := range node.OutEdges {
		if visitedNeighbor[e.Neighbor] {
			continue
		}
		visitedNeighbor[e.Neighbor] = true

		if e.Neighbor == origin {
			if len(path) >= minLen && len(path) >= 3 {
				emitCycle(g, path, seen)
			}
			continue
		}
		if _, already := onPath[e.Neighbor]; already {
			continue
		}
		if len(path) == maxLen {
			continue
		}

		onPath[e.Neighbor] = len(path)
		walkCycles(g, origin, e.Neighbor, append(path, e.Neighbor), onPath, minLen, maxLen, seen)
		delete(onPath, e.Neighbor)
	}
}

func emitCycle(g *graph.DirectedGraph, path []string, seen map[string]domain.Finding) {
	canon := canonicalRotation(path)
	key := cycleKey(canon)
	if _, exists := seen[key]; exists {
		return
	}

	edges := make([]domain.Edge, 0, len(canon))
	for i := range canon {
		from := canon[i]
		to := canon[(i+1)%len(canon)]
		edge, ok := firstEdge(g, from, to)
		if !ok {
			continue
		}
		edges = append(edges, edge)
	}

	seen[key] = domain.Finding{
		Kind:    domain.KindCycle,
		Members: canon,
		Edges:   edges,
	}
}

// canonicalRotation rotates path so it begins at its lexicographically
// smallest member, preserving cycle direction.
func canonicalRotation(path []string) []string {
	minIdx := 0
	for i, v := range path {
		if v < path[minIdx] {
			minIdx = i
		}
	}
	out := make([]string, len(path))
	for i := range path {
		out[i] = path[(minIdx+i)%len(path)]
	}
	return out
}

func cycleKey(canon []string) string {
	key := ""
	for _, id := range canon {
		key += id + "\x00"
	}
	return key
}

func firstEdge(g *graph.DirectedGraph, from, to string) (domain.Edge, bool) {
	node := g.Node(from)
	if node == nil {
		return domain.Edge{}, false
	}
	for _, e := range node.OutEdges {
		if e.Neighbor == to {
			tx := g.Transactions[e.TxIndex]
			amt, _ := tx.Amount.Float64()
			return domain.Edge{From: from, To: to, Amount: amt, Timestamp: tx.Timestamp}, true
		}
	}
	return domain.Edge{}, false
}

func lexLess(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

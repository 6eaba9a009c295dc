package detect

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/mulegraph/internal/domain"
	"github.com/opensource-finance/mulegraph/internal/graph"
)

type chainCandidate struct {
	nodes []string
	edges []domain.Edge
}

// ShellChains reports linear flows of length >= cfg.ChainMinLength through
// low-activity intermediaries (tx_count <= cfg.ChainMaxIntermediateTx),
// with amounts within cfg.ChainAmountTolerance of the previous hop and
// non-decreasing timestamps. Only maximal chains survive: a chain whose
// node sequence is a strict contiguous sub-path of a longer retained chain
// is dropped.
func ShellChains(ctx context.Context, g *graph.DirectedGraph, cfg domain.EngineConfig) ([]domain.Finding, error) {
	maxDepth := cfg.ChainMinLength + 3
	var candidates []chainCandidate

	for _, start := range g.Order() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		node := g.Node(start)
		if node == nil || len(node.OutEdges) == 0 {
			continue
		}

		for _, e := range node.OutEdges {
			tx := g.Transactions[e.TxIndex]
			amt, _ := tx.Amount.Float64()
			onPath := map[string]bool{start: true, e.Neighbor: true}
			cand := chainCandidate{
				nodes: []string{start, e.Neighbor},
				edges: []domain.Edge{{From: start, To: e.Neighbor, Amount: amt, Timestamp: tx.Timestamp}},
			}
			walkChain(g, cfg, maxDepth, cand, tx.Timestamp, amt, onPath, &candidates)
		}
	}

	maximal := filterMaximalChains(candidates)

	sort.Slice(maximal, func(i, j int) bool {
		return lexLess(maximal[i].nodes, maximal[j].nodes)
	})

	out := make([]domain.Finding, 0, len(maximal))
	for _, c := range maximal {
		out = append(out, domain.Finding{
			Kind:        domain.KindShellChain,
			Members:     c.nodes,
			Edges:       c.edges,
			ChainLength: len(c.edges),
		})
	}
	return out, nil
}

func isShell(a *graph.Account, cfg domain.EngineConfig) bool {
	return a.TxCount <= cfg.ChainMaxIntermediateTx
}

// walkChain extends current by one more hop from its tail node, recording
// a candidate whenever the path reaches ChainMinLength edges and stopping
// exploration once it reaches a non-shell node (that node terminates the
// chain there; it is not explored further).
func walkChain(
	g *graph.DirectedGraph, cfg domain.EngineConfig, maxDepth int,
	current chainCandidate, lastTS time.Time, lastAmt float64,
	onPath map[string]bool, out *[]chainCandidate,
) {
	if len(current.edges) >= cfg.ChainMinLength {
		recorded := chainCandidate{
			nodes: append([]string(nil), current.nodes...),
			edges: append([]domain.Edge(nil), current.edges...),
		}
		*out = append(*out, recorded)
	}

	tail := current.nodes[len(current.nodes)-1]
	tailNode := g.Node(tail)
	if tailNode == nil || !isShell(tailNode, cfg) {
		// Endpoint already terminated the chain above; do not extend
		// through a non-shell node.
		return
	}
	if len(current.edges) >= maxDepth {
		return
	}

	for _, e := range tailNode.OutEdges {
		if onPath[e.Neighbor] {
			continue
		}
		tx := g.Transactions[e.TxIndex]
		if tx.Timestamp.Before(lastTS) {
			continue
		}
		amt, _ := tx.Amount.Float64()
		if lastAmt > 0 && math.Abs(amt-lastAmt)/lastAmt > cfg.ChainAmountTolerance {
			continue
		}

		onPath[e.Neighbor] = true
		next := chainCandidate{
			nodes: append(append([]string(nil), current.nodes...), e.Neighbor),
			edges: append(append([]domain.Edge(nil), current.edges...), domain.Edge{From: tail, To: e.Neighbor, Amount: amt, Timestamp: tx.Timestamp}),
		}
		walkChain(g, cfg, maxDepth, next, tx.Timestamp, amt, onPath, out)
		delete(onPath, e.Neighbor)
	}
}

// filterMaximalChains drops any candidate whose node sequence is a strict
// contiguous sub-path of a longer candidate.
func filterMaximalChains(candidates []chainCandidate) []chainCandidate {
	dedup := make(map[string]chainCandidate)
	for _, c := range candidates {
		dedup[chainKey(c.nodes)] = c
	}
	uniq := make([]chainCandidate, 0, len(dedup))
	for _, c := range dedup {
		uniq = append(uniq, c)
	}

	var maximal []chainCandidate
	for i, c := range uniq {
		subsumed := false
		for j, other := range uniq {
			if i == j || len(other.nodes) <= len(c.nodes) {
				continue
			}
			if isContiguousSubPath(c.nodes, other.nodes) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			maximal = append(maximal, c)
		}
	}
	return maximal
}

func isContiguousSubPath(sub, full []string) bool {
	if len(sub) > len(full) {
		return false
	}
	for start := 0; start+len(sub) <= len(full); start++ {
		match := true
		for k := range sub {
			if full[start+k] != sub[k] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func chainKey(nodes []string) string {
	key := ""
	for _, n := range nodes {
		key += n + "\x00"
	}
	return key
}

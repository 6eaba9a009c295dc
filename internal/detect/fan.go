package detect

import (
	"context"
	"sort"
	"time"

	"github.com/opensource-finance/mulegraph/internal/domain"
	"github.com/opensource-finance/mulegraph/internal/graph"
)

// timedEdge is a single incident transaction, sortable by timestamp, used
// by the two-pointer window scan in both fan-in and fan-out directions.
type timedEdge struct {
	counterparty string
	amount       float64
	timestamp    time.Time
	txIndex      int
}

// fanCandidate is a window that met the spoke-count and volume thresholds
// during the scan, pending the maximality filter.
type fanCandidate struct {
	spokes  map[string]struct{}
	finding domain.Finding
}

// Fans reports fan-in and fan-out findings for every account whose
// distinct-counterparty count within some FanWindow-wide sliding window
// reaches cfg.FanMinSpokes. Emits one finding per maximal, non-subsumed
// window per hub and direction.
func Fans(ctx context.Context, g *graph.DirectedGraph, cfg domain.EngineConfig) ([]domain.Finding, error) {
	var out []domain.Finding

	for _, hub := range g.Order() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		node := g.Node(hub)

		inEdges := collectTimed(g, node.InEdges)
		out = append(out, scanDirection(g, hub, inEdges, cfg, domain.KindFanIn)...)

		outEdges := collectTimed(g, node.OutEdges)
		out = append(out, scanDirection(g, hub, outEdges, cfg, domain.KindFanOut)...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Hub != out[j].Hub {
			return out[i].Hub < out[j].Hub
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

func collectTimed(g *graph.DirectedGraph, edges []graph.AdjEntry) []timedEdge {
	out := make([]timedEdge, 0, len(edges))
	for _, e := range edges {
		tx := g.Transactions[e.TxIndex]
		amt, _ := tx.Amount.Float64()
		out = append(out, timedEdge{counterparty: e.Neighbor, amount: amt, timestamp: tx.Timestamp, txIndex: e.TxIndex})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return g.Transactions[out[i].txIndex].Timestamp.Before(g.Transactions[out[j].txIndex].Timestamp)
	})
	return out
}

// scanDirection runs the two-pointer sliding window scan described in the
// fan detection algorithm: grow the right pointer, retire entries off the
// left pointer whose timestamp falls outside the window, and track every
// window whose distinct-counterparty count reaches the threshold.
func scanDirection(g *graph.DirectedGraph, hub string, edges []timedEdge, cfg domain.EngineConfig, kind domain.FindingKind) []domain.Finding {
	if len(edges) == 0 {
		return nil
	}

	var candidates []fanCandidate

	counts := make(map[string]int)
	left := 0

	for right := 0; right < len(edges); right++ {
		counts[edges[right].counterparty]++

		for left <= right && g.Transactions[edges[right].txIndex].Timestamp.Sub(g.Transactions[edges[left].txIndex].Timestamp) > cfg.FanWindow {
			cp := edges[left].counterparty
			counts[cp]--
			if counts[cp] == 0 {
				delete(counts, cp)
			}
			left++
		}

		if len(counts) < cfg.FanMinSpokes {
			continue
		}

		volume := 0.0
		spokes := make(map[string]struct{}, len(counts))
		for i := left; i <= right; i++ {
			volume += edges[i].amount
			spokes[edges[i].counterparty] = struct{}{}
		}
		if volume < cfg.FanMinVolume {
			continue
		}

		finding := buildFanFinding(g, hub, edges[left:right+1], kind, spokes)
		candidates = append(candidates, fanCandidate{spokes: spokes, finding: finding})
	}

	var emitted []domain.Finding
	for i, c := range candidates {
		if isSubsumedByAny(i, c.spokes, candidates) {
			continue
		}
		emitted = append(emitted, c.finding)
	}

	return emitted
}

// isSubsumedByAny reports whether the spoke set at index i is a (possibly
// equal) subset of some other candidate's spoke set in the same hub and
// direction, keeping only the maximal windows: a strict subset is always
// dropped, and of two candidates with identical spoke sets only the one
// discovered first during the scan survives.
func isSubsumedByAny(i int, spokes map[string]struct{}, candidates []fanCandidate) bool {
	for j, other := range candidates {
		if j == i {
			continue
		}
		if !isSubset(spokes, other.spokes) {
			continue
		}
		if len(spokes) < len(other.spokes) {
			return true
		}
		if len(spokes) == len(other.spokes) && j < i {
			return true
		}
	}
	return false
}

func isSubset(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func buildFanFinding(g *graph.DirectedGraph, hub string, window []timedEdge, kind domain.FindingKind, spokes map[string]struct{}) domain.Finding {
	members := make([]string, 0, len(spokes)+1)
	members = append(members, hub)
	spokeOrder := make([]string, 0, len(spokes))
	seen := make(map[string]bool, len(spokes))
	for _, e := range window {
		if seen[e.counterparty] {
			continue
		}
		seen[e.counterparty] = true
		spokeOrder = append(spokeOrder, e.counterparty)
	}
	members = append(members, spokeOrder...)

	var volume float64
	edges := make([]domain.Edge, 0, len(window))
	for _, e := range window {
		volume += e.amount
		if kind == domain.KindFanIn {
			edges = append(edges, domain.Edge{From: e.counterparty, To: hub, Amount: e.amount, Timestamp: e.timestamp})
		} else {
			edges = append(edges, domain.Edge{From: hub, To: e.counterparty, Amount: e.amount, Timestamp: e.timestamp})
		}
	}

	return domain.Finding{
		Kind:      kind,
		Members:   members,
		Hub:       hub,
		Edges:     edges,
		FanVolume: volume,
		FanSpokes: len(spokes),
	}
}

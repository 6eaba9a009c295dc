package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/opensource-finance/mulegraph/internal/domain"
)

// kindPriority orders tied base scores by kind: cycle > shell_chain >
// fan_in > fan_out, per the merge tie-break rule.
func kindPriority(k domain.FindingKind) int {
	switch k {
	case domain.KindCycle:
		return 3
	case domain.KindShellChain:
		return 2
	case domain.KindFanIn:
		return 1
	case domain.KindFanOut:
		return 0
	}
	return -1
}

// ringBlock orders a ring's pattern_type into the §4.5 identifier
// assignment sequence: cycles, then shells, then fans.
func ringBlock(pattern string) int {
	switch pattern {
	case domain.PatternCycle:
		return 0
	case domain.PatternShellChain:
		return 1
	default:
		return 2
	}
}

type cluster struct {
	findings []domain.Finding
	members  map[string]struct{}
}

// assembleRings implements C5: merges findings whose member sets share at
// least cfg.RingMergeOverlapFraction of the larger set, resolves the merged pattern_type by
// the higher-base-score contributor, and assigns stable ring_ids in the
// cycles-then-shells-then-fans order, breaking ties within a block by
// smallest member id.
func assembleRings(findings []domain.Finding, cfg domain.EngineConfig) []domain.Ring {
	clusters := make([]*cluster, 0, len(findings))
	for _, f := range findings {
		members := make(map[string]struct{}, len(f.Members))
		for _, m := range f.Members {
			members[m] = struct{}{}
		}
		clusters = append(clusters, &cluster{findings: []domain.Finding{f}, members: members})
	}

	clusters = mergeClusters(clusters, cfg)

	rings := make([]domain.Ring, 0, len(clusters))
	for _, c := range clusters {
		rings = append(rings, buildRing(c, cfg))
	}

	sort.SliceStable(rings, func(i, j int) bool {
		bi, bj := ringBlock(rings[i].PatternType), ringBlock(rings[j].PatternType)
		if bi != bj {
			return bi < bj
		}
		mi, mj := rings[i].MemberAccounts, rings[j].MemberAccounts
		smallI, smallJ := "", ""
		if len(mi) > 0 {
			smallI = mi[0]
		}
		if len(mj) > 0 {
			smallJ = mj[0]
		}
		if smallI != smallJ {
			return smallI < smallJ
		}
		return lexLessSlices(mi, mj)
	})

	for i := range rings {
		rings[i].RingID = fmt.Sprintf("RING_%04d", i+1)
	}

	return rings
}

func lexLessSlices(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// mergeClusters repeatedly merges any two clusters sharing at least
// cfg.RingMergeOverlapFraction of the larger cluster's members, until no
// pair qualifies.
func mergeClusters(clusters []*cluster, cfg domain.EngineConfig) []*cluster {
	changed := true
	for changed {
		changed = false
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				if !overlapsEnough(clusters[i].members, clusters[j].members, cfg) {
					continue
				}
				clusters[i] = mergeTwo(clusters[i], clusters[j])
				clusters = append(clusters[:j], clusters[j+1:]...)
				changed = true
				break
			}
			if changed {
				break
			}
		}
	}
	return clusters
}

// overlapsEnough reports whether two member sets share at least
// cfg.RingMergeOverlapFraction of the larger set's members.
func overlapsEnough(a, b map[string]struct{}, cfg domain.EngineConfig) bool {
	shared := 0
	small, big := a, b
	if len(small) > len(big) {
		small, big = big, small
	}
	for m := range small {
		if _, ok := big[m]; ok {
			shared++
		}
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	required := int(math.Ceil(float64(maxLen) * cfg.RingMergeOverlapFraction))
	return shared >= required
}

func mergeTwo(a, b *cluster) *cluster {
	merged := &cluster{
		findings: append(append([]domain.Finding{}, a.findings...), b.findings...),
		members:  make(map[string]struct{}, len(a.members)+len(b.members)),
	}
	for m := range a.members {
		merged.members[m] = struct{}{}
	}
	for m := range b.members {
		merged.members[m] = struct{}{}
	}
	return merged
}

func buildRing(c *cluster, cfg domain.EngineConfig) domain.Ring {
	members := make([]string, 0, len(c.members))
	for m := range c.members {
		members = append(members, m)
	}
	sort.Strings(members)

	winner := c.findings[0]
	winnerScore := ringBaseScore(winner, cfg)
	for _, f := range c.findings[1:] {
		s := ringBaseScore(f, cfg)
		if s > winnerScore || (s == winnerScore && kindPriority(f.Kind) > kindPriority(winner.Kind)) {
			winner = f
			winnerScore = s
		}
	}

	return domain.Ring{
		PatternType:    string(winner.Kind),
		MemberAccounts: members,
		RiskScore:      winnerScore,
		Evidence:       describeEvidence(c.findings),
	}
}

// describeEvidence renders one evidence clause per contributing finding,
// folding in the total transferred amount, transaction count, and time
// span of its edges alongside the kind-specific detail (mirroring the
// total_amount/transaction_count/time_span_hours metadata the original
// FraudRing model attaches to every pattern kind).
func describeEvidence(findings []domain.Finding) string {
	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		amount, count, spanHours := edgeStats(f.Edges)
		switch f.Kind {
		case domain.KindCycle:
			parts = append(parts, fmt.Sprintf("cycle of length %d: %d transactions totaling %.2f over %.1fh", len(f.Edges), count, amount, spanHours))
		case domain.KindFanIn:
			parts = append(parts, fmt.Sprintf("fan-in on %s: %d senders, volume %.2f, %d transactions over %.1fh", f.Hub, f.FanSpokes, f.FanVolume, count, spanHours))
		case domain.KindFanOut:
			parts = append(parts, fmt.Sprintf("fan-out from %s: %d receivers, volume %.2f, %d transactions over %.1fh", f.Hub, f.FanSpokes, f.FanVolume, count, spanHours))
		case domain.KindShellChain:
			parts = append(parts, fmt.Sprintf("shell chain of %d hops: %d transactions totaling %.2f over %.1fh", f.ChainLength, count, amount, spanHours))
		}
	}
	return strings.Join(parts, "; ")
}

// edgeStats sums a finding's edge amounts and spans its edge timestamps,
// giving the total_amount/transaction_count/time_span_hours trio the
// original model stored in FraudRing.metadata for every pattern kind.
func edgeStats(edges []domain.Edge) (totalAmount float64, count int, spanHours float64) {
	if len(edges) == 0 {
		return 0, 0, 0
	}
	minTS, maxTS := edges[0].Timestamp, edges[0].Timestamp
	for _, e := range edges {
		totalAmount += e.Amount
		if e.Timestamp.Before(minTS) {
			minTS = e.Timestamp
		}
		if e.Timestamp.After(maxTS) {
			maxTS = e.Timestamp
		}
	}
	return totalAmount, len(edges), maxTS.Sub(minTS).Hours()
}

package engine

import (
	"sort"

	"github.com/opensource-finance/mulegraph/internal/domain"
	"github.com/opensource-finance/mulegraph/internal/graph"
)

// buildReport implements C7: filters accounts to those meeting
// cfg.SuspiciousThreshold, sorts both output collections per §4.7, and
// assembles the summary block (processing_time_seconds is filled in by
// the caller once the whole pipeline has run). total_transactions counts
// the full input batch, including self-loops dropped during graph
// construction; that drop count is also surfaced on its own so a caller
// can tell retained edges from input size without subtracting.
func buildReport(g *graph.DirectedGraph, rings []domain.Ring, scores []accountScore, cfg domain.EngineConfig) *domain.Report {
	suspicious := make([]domain.SuspiciousAccount, 0, len(scores))
	for _, s := range scores {
		if s.score < cfg.SuspiciousThreshold {
			continue
		}
		indicators := s.indicators
		patterns := s.patterns
		if patterns == nil {
			patterns = []string{}
		}
		suspicious = append(suspicious, domain.SuspiciousAccount{
			AccountID:        s.id,
			SuspicionScore:   s.score,
			DetectedPatterns: patterns,
			RingID:           s.ringID,
			Indicators:       &indicators,
		})
	}

	sort.SliceStable(suspicious, func(i, j int) bool {
		if suspicious[i].SuspicionScore != suspicious[j].SuspicionScore {
			return suspicious[i].SuspicionScore > suspicious[j].SuspicionScore
		}
		return suspicious[i].AccountID < suspicious[j].AccountID
	})

	sort.SliceStable(rings, func(i, j int) bool {
		if rings[i].RiskScore != rings[j].RiskScore {
			return rings[i].RiskScore > rings[j].RiskScore
		}
		return rings[i].RingID < rings[j].RingID
	})

	patternCounts := make(map[string]int)
	for _, r := range rings {
		patternCounts[r.PatternType]++
	}

	return &domain.Report{
		Summary: domain.Summary{
			TotalTransactions:         len(g.Transactions) + g.SelfLoopsDropped,
			TotalAccountsAnalyzed:     g.NodeCount(),
			SuspiciousAccountsFlagged: len(suspicious),
			FraudRingsDetected:        len(rings),
			RingsByPattern:            patternCounts,
			SelfLoopsDropped:          g.SelfLoopsDropped,
		},
		SuspiciousAccounts: suspicious,
		FraudRings:         rings,
	}
}

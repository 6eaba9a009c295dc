package engine

import (
	"math"
	"sort"

	"github.com/opensource-finance/mulegraph/internal/domain"
	"github.com/opensource-finance/mulegraph/internal/graph"
	"github.com/opensource-finance/mulegraph/internal/rulesx"
	"github.com/opensource-finance/mulegraph/internal/velocity"
)

// ringBaseScore computes a ring's base score (C6 §4.6 table) from its
// originating finding kind and size, clamped 0-100. This is also the value
// used as the "ring base" term in an account's suspicion score.
func ringBaseScore(f domain.Finding, cfg domain.EngineConfig) int {
	var base, bonus, extra int

	switch f.Kind {
	case domain.KindCycle:
		base = 30
		extra = len(f.Edges) - 3
		bonus = clampInt(5*extra, 0, 15)
	case domain.KindFanIn, domain.KindFanOut:
		base = 25
		extra = f.FanSpokes - cfg.FanMinSpokes
		bonus = clampInt(5*extra, 0, 15)
	case domain.KindShellChain:
		base = 35
		extra = f.ChainLength - cfg.ChainMinLength
		bonus = clampInt(5*extra, 0, 20)
	}

	return clampInt(base+bonus, 0, 100)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// accountBehavioralScore computes the §4.6 behavioral component (up to 60
// points) from an account's aggregates, plus any additional points
// contributed by configured CEL rules.
func accountBehavioralScore(a *graph.Account, cfg domain.EngineConfig, rules *rulesx.Engine) float64 {
	var score float64

	rate := velocity.Rate(a)
	score += math.Min(15, math.Round(rate*3))

	if a.TxCount > 0 {
		roundRatio := float64(a.RoundAmountCount) / float64(a.TxCount)
		if roundRatio > 0.5 {
			score += 10
		} else {
			score += math.Min(5, math.Round(roundRatio*10))
		}

		nightRatio := float64(a.NightCount) / float64(a.TxCount)
		if nightRatio > 0.3 {
			score += 7
		}
	}

	inVol, _ := a.InVolume.Float64()
	outVol, _ := a.OutVolume.Float64()
	maxVol := math.Max(inVol, outVol)
	if maxVol < 1 {
		maxVol = 1
	}
	ratio := math.Min(inVol, outVol) / maxVol
	switch {
	case ratio >= 0.8:
		score += 8
	case ratio >= 0.6:
		score += 4
	}

	if rules != nil {
		score += rules.Evaluate(a)
	}

	return score
}

// accountScore holds the per-account score pipeline state before report
// assembly sorts and filters it.
type accountScore struct {
	id               string
	score            int
	patterns         []string
	ringID           string
	indicators       domain.BehavioralIndicators
}

// scoreAccounts implements C6 end to end: behavioral score for every
// account, combined with the best ring base score for ring members,
// false-positive dampening, and round-half-to-even clamping to [0,100].
func scoreAccounts(g *graph.DirectedGraph, rings []domain.Ring, cfg domain.EngineConfig, rules *rulesx.Engine) []accountScore {
	memberRings := make(map[string][]domain.Ring)
	for _, r := range rings {
		for _, m := range r.MemberAccounts {
			memberRings[m] = append(memberRings[m], r)
		}
	}

	out := make([]accountScore, 0, g.NodeCount())
	for _, id := range g.Order() {
		a := g.Node(id)
		behavioral := accountBehavioralScore(a, cfg, rules)

		raw := behavioral
		var patterns []string
		var ringID string
		if memberOf, ok := memberRings[id]; ok {
			best := memberOf[0]
			patternSet := make(map[string]bool)
			for _, r := range memberOf {
				patternSet[r.PatternType] = true
				if r.RiskScore > best.RiskScore || (r.RiskScore == best.RiskScore && r.RingID < best.RingID) {
					best = r
				}
			}
			raw = float64(best.RiskScore) + behavioral
			ringID = best.RingID
			for p := range patternSet {
				patterns = append(patterns, p)
			}
			sort.Strings(patterns)
		}

		if a.DistinctCounterparties() > cfg.MerchantCounterpartyMin {
			raw *= 0.5
		}
		inVol, _ := a.InVolume.Float64()
		outVol, _ := a.OutVolume.Float64()
		if isOneDirectional(inVol, outVol) {
			raw *= 0.8
		}

		final := clampInt(int(math.RoundToEven(raw)), 0, 100)

		indicators := domain.BehavioralIndicators{
			VelocityPerHour: velocity.Rate(a),
		}
		if a.TxCount > 0 {
			indicators.RoundAmountRatio = float64(a.RoundAmountCount) / float64(a.TxCount)
			indicators.NightRatio = float64(a.NightCount) / float64(a.TxCount)
		}
		maxVol := math.Max(inVol, outVol)
		if maxVol < 1 {
			maxVol = 1
		}
		indicators.BalancedFlow = math.Min(inVol, outVol) / maxVol

		out = append(out, accountScore{
			id:         id,
			score:      final,
			patterns:   patterns,
			ringID:     ringID,
			indicators: indicators,
		})
	}
	return out
}

func isOneDirectional(inVol, outVol float64) bool {
	lo, hi := inVol, outVol
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo <= 0 {
		return hi > 0
	}
	return hi/lo > 10
}

package detect

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/mulegraph/internal/domain"
	"github.com/opensource-finance/mulegraph/internal/graph"
)

func mustGraph(t *testing.T, txs []domain.Transaction) *graph.DirectedGraph {
	t.Helper()
	g, err := graph.Build(txs)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return g
}

func tx(id, from, to string, amount int64, ts time.Time) domain.Transaction {
	return domain.Transaction{ID: id, Sender: from, Receiver: to, Amount: decimal.NewFromInt(amount), Timestamp: ts}
}

func testConfig() domain.EngineConfig {
	return domain.EngineConfig{
		FanMinSpokes:             10,
		FanWindow:                72 * time.Hour,
		ChainMinLength:           4,
		ChainMaxIntermediateTx:   3,
		ChainAmountTolerance:     0.10,
		RingMergeOverlapFraction: 0.5,
		SuspiciousThreshold:      50,
		MerchantCounterpartyMin:  1000,
		ParallelDetectors:        3,
		CycleMinLength:           3,
		CycleMaxLength:           5,
	}
}

// scenario 1 from the detection test plan: a simple 3-cycle.
func TestCyclesDetectsThreeCycle(t *testing.T) {
	base := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		tx("TXN001", "A", "B", 5000, base),
		tx("TXN002", "B", "C", 4800, base.Add(time.Hour)),
		tx("TXN003", "C", "A", 4700, base.Add(2*time.Hour)),
	}
	g := mustGraph(t, txs)

	findings, err := Cycles(context.Background(), g, testConfig())
	if err != nil {
		t.Fatalf("Cycles: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected exactly 1 cycle finding, got %d", len(findings))
	}
	f := findings[0]
	if f.Kind != domain.KindCycle {
		t.Errorf("kind = %s, want cycle", f.Kind)
	}
	if len(f.Members) != 3 {
		t.Errorf("expected 3 members, got %d: %v", len(f.Members), f.Members)
	}
}

func TestCyclesCanonicalizesRotation(t *testing.T) {
	base := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		tx("t1", "B", "C", 100, base),
		tx("t2", "C", "A", 100, base.Add(time.Hour)),
		tx("t3", "A", "B", 100, base.Add(2*time.Hour)),
	}
	g := mustGraph(t, txs)

	findings, err := Cycles(context.Background(), g, testConfig())
	if err != nil {
		t.Fatalf("Cycles: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected exactly 1 cycle, got %d", len(findings))
	}
	if findings[0].Members[0] != "A" {
		t.Errorf("expected canonical rotation to start at lexicographically smallest member A, got %s", findings[0].Members[0])
	}
}

func TestCyclesNoCycleWithoutClosure(t *testing.T) {
	base := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		tx("t1", "A", "B", 100, base),
		tx("t2", "B", "C", 100, base.Add(time.Hour)),
	}
	g := mustGraph(t, txs)

	findings, err := Cycles(context.Background(), g, testConfig())
	if err != nil {
		t.Fatalf("Cycles: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("expected no cycles for a linear path, got %d", len(findings))
	}
}

func TestCyclesRespectsMaxLength(t *testing.T) {
	base := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)
	// a 6-node cycle, longer than the default CycleMaxLength of 5.
	nodes := []string{"A", "B", "C", "D", "E", "F"}
	var txs []domain.Transaction
	for i, n := range nodes {
		next := nodes[(i+1)%len(nodes)]
		txs = append(txs, tx("t", n, next, 100, base.Add(time.Duration(i)*time.Hour)))
	}
	g := mustGraph(t, txs)

	findings, err := Cycles(context.Background(), g, testConfig())
	if err != nil {
		t.Fatalf("Cycles: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("expected no cycles beyond CycleMaxLength, got %d", len(findings))
	}
}

func TestCyclesCancellation(t *testing.T) {
	base := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		tx("t1", "A", "B", 100, base),
		tx("t2", "B", "A", 100, base.Add(time.Hour)),
	}
	g := mustGraph(t, txs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Cycles(ctx, g, testConfig())
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

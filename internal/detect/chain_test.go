package detect

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/mulegraph/internal/domain"
)

// scenario 3 from the detection test plan: A->B->C->D->E, shrinking amounts
// within tolerance, B/C/D each with one incoming and one outgoing
// transaction (tx_count 2, within ChainMaxIntermediateTx).
func TestShellChainsDetectsLinearChain(t *testing.T) {
	base := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		tx("t1", "A", "B", 10000, base),
		tx("t2", "B", "C", 9800, base.Add(time.Hour)),
		tx("t3", "C", "D", 9600, base.Add(2*time.Hour)),
		tx("t4", "D", "E", 9400, base.Add(3*time.Hour)),
	}
	g := mustGraph(t, txs)

	findings, err := ShellChains(context.Background(), g, testConfig())
	if err != nil {
		t.Fatalf("ShellChains: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected exactly 1 shell chain, got %d", len(findings))
	}
	f := findings[0]
	want := []string{"A", "B", "C", "D", "E"}
	if len(f.Members) != len(want) {
		t.Fatalf("expected %d members, got %d: %v", len(want), len(f.Members), f.Members)
	}
	for i, m := range want {
		if f.Members[i] != m {
			t.Errorf("Members[%d] = %s, want %s", i, f.Members[i], m)
		}
	}
	if f.ChainLength != 4 {
		t.Errorf("ChainLength = %d, want 4", f.ChainLength)
	}
}

func TestShellChainsStopsAtNonShellIntermediary(t *testing.T) {
	base := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		tx("t1", "A", "B", 10000, base),
		tx("t2", "B", "C", 9800, base.Add(time.Hour)),
		tx("t3", "C", "D", 9600, base.Add(2*time.Hour)),
		tx("t4", "D", "E", 9400, base.Add(3*time.Hour)),
		tx("t5", "E", "F", 9200, base.Add(4*time.Hour)),
		// E does 3 additional transactions, so its tx_count exceeds
		// ChainMaxIntermediateTx and it no longer counts as a shell.
		tx("t6", "E", "Z1", 50, base.Add(5*time.Hour)),
		tx("t7", "E", "Z2", 50, base.Add(6*time.Hour)),
		tx("t8", "E", "Z3", 50, base.Add(7*time.Hour)),
	}
	g := mustGraph(t, txs)

	findings, err := ShellChains(context.Background(), g, testConfig())
	if err != nil {
		t.Fatalf("ShellChains: %v", err)
	}
	if len(findings) == 0 {
		t.Fatal("expected a chain up to the non-shell node E")
	}
	for _, f := range findings {
		for _, m := range f.Members {
			if m == "F" {
				t.Errorf("chain should not extend past non-shell node E into F: %v", f.Members)
			}
		}
	}
}

func TestShellChainsRejectsAmountOutsideTolerance(t *testing.T) {
	base := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		tx("t1", "A", "B", 10000, base),
		tx("t2", "B", "C", 5000, base.Add(time.Hour)), // 50% drop, outside 10% tolerance
		tx("t3", "C", "D", 4900, base.Add(2*time.Hour)),
		tx("t4", "D", "E", 4800, base.Add(3*time.Hour)),
	}
	g := mustGraph(t, txs)

	findings, err := ShellChains(context.Background(), g, testConfig())
	if err != nil {
		t.Fatalf("ShellChains: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("expected the amount break to prevent the chain from reaching ChainMinLength, got %v", findings)
	}
}

func TestShellChainsBelowMinLengthNotDetected(t *testing.T) {
	base := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		tx("t1", "A", "B", 10000, base),
		tx("t2", "B", "C", 9800, base.Add(time.Hour)),
	}
	g := mustGraph(t, txs)

	findings, err := ShellChains(context.Background(), g, testConfig())
	if err != nil {
		t.Fatalf("ShellChains: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("expected no chain below ChainMinLength, got %d", len(findings))
	}
}

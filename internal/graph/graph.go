// Package graph builds the directed transaction multigraph (C1) that every
// detector in internal/detect reads from. The graph is immutable once
// Build returns: no detector mutates it, so it is safe to share across
// concurrently running detectors without locking.
package graph

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/mulegraph/internal/domain"
)

// AdjEntry is a single out- or in-adjacency entry: the neighbor account and
// the index of the transaction realizing the edge.
type AdjEntry struct {
	Neighbor string
	TxIndex  int
}

// Account is the per-node aggregate computed in a single pass over the
// incident transactions.
type Account struct {
	ID string

	OutEdges []AdjEntry
	InEdges  []AdjEntry

	TxCount           int
	InCount           int
	OutCount          int
	InVolume          decimal.Decimal
	OutVolume         decimal.Decimal
	RoundAmountCount  int
	NightCount        int
	FirstTS           time.Time
	LastTS            time.Time
	CounterpartiesSet map[string]struct{}
}

// DistinctCounterparties returns the number of distinct accounts this
// account has transacted with, in either direction.
func (a *Account) DistinctCounterparties() int {
	return len(a.CounterpartiesSet)
}

// HoursActive returns the span between first and last transaction in
// hours, floored at a minimum of 1 to keep velocity ratios well-defined.
func (a *Account) HoursActive() float64 {
	h := a.LastTS.Sub(a.FirstTS).Hours()
	if h < 1 {
		return 1
	}
	return h
}

// DirectedGraph is the built multigraph: nodes keyed by account id in
// first-appearance (insertion) order, plus the ordered transaction slice
// edges reference by index.
type DirectedGraph struct {
	order        []string
	nodes        map[string]*Account
	Transactions []domain.Transaction

	SelfLoopsDropped int
}

// Node returns the account aggregate for id, or nil if absent.
func (g *DirectedGraph) Node(id string) *Account {
	return g.nodes[id]
}

// Order returns account ids in first-appearance order, the deterministic
// iteration order every detector must use.
func (g *DirectedGraph) Order() []string {
	return g.order
}

// NodeCount returns the number of distinct accounts in the graph.
func (g *DirectedGraph) NodeCount() int {
	return len(g.order)
}

func newAccount(id string) *Account {
	return &Account{
		ID:                id,
		CounterpartiesSet: make(map[string]struct{}),
	}
}

// Build constructs the DirectedGraph from a transaction sequence in a
// single pass. Self-loops (sender == receiver) are dropped silently and
// counted in SelfLoopsDropped. A negative amount or a missing endpoint
// identifier is a structural violation and returns ErrMalformedBatch.
func Build(transactions []domain.Transaction) (*DirectedGraph, error) {
	g := &DirectedGraph{
		nodes: make(map[string]*Account),
	}

	for i, tx := range transactions {
		if tx.Sender == "" || tx.Receiver == "" {
			return nil, fmt.Errorf("transaction %d missing endpoint: %w", i, domain.ErrMalformedBatch)
		}
		if tx.Amount.IsNegative() {
			return nil, fmt.Errorf("transaction %s has negative amount: %w", tx.ID, domain.ErrMalformedBatch)
		}
		if tx.Sender == tx.Receiver {
			g.SelfLoopsDropped++
			continue
		}

		g.Transactions = append(g.Transactions, tx)
		idx := len(g.Transactions) - 1

		sender := g.ensureNode(tx.Sender)
		receiver := g.ensureNode(tx.Receiver)

		sender.OutEdges = append(sender.OutEdges, AdjEntry{Neighbor: tx.Receiver, TxIndex: idx})
		receiver.InEdges = append(receiver.InEdges, AdjEntry{Neighbor: tx.Sender, TxIndex: idx})

		applyAggregate(sender, tx, tx.Receiver, false)
		applyAggregate(receiver, tx, tx.Sender, true)
	}

	return g, nil
}

func (g *DirectedGraph) ensureNode(id string) *Account {
	if a, ok := g.nodes[id]; ok {
		return a
	}
	a := newAccount(id)
	g.nodes[id] = a
	g.order = append(g.order, id)
	return a
}

func applyAggregate(a *Account, tx domain.Transaction, counterparty string, incoming bool) {
	a.TxCount++
	if incoming {
		a.InCount++
		a.InVolume = a.InVolume.Add(tx.Amount)
	} else {
		a.OutCount++
		a.OutVolume = a.OutVolume.Add(tx.Amount)
	}
	if tx.IsRoundAmount() {
		a.RoundAmountCount++
	}
	if tx.IsNight() {
		a.NightCount++
	}
	a.CounterpartiesSet[counterparty] = struct{}{}

	if a.FirstTS.IsZero() || tx.Timestamp.Before(a.FirstTS) {
		a.FirstTS = tx.Timestamp
	}
	if tx.Timestamp.After(a.LastTS) {
		a.LastTS = tx.Timestamp
	}
}

//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running
// mulegraph server.
//
// These tests verify the COMPLETE batch pipeline:
//
//	Transactions -> Graph -> Detectors (cycle/fan/chain) -> Ring assembly -> Scoring -> Report
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// Each test submits a batch to POST /batches and inspects the resulting
// Report. The server must be reachable at MULEGRAPH_TEST_URL (defaults to
// http://localhost:8080).
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("MULEGRAPH_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "test-tenant",
	}
}

// ============================================================================
// API Request/Response Types (matching mulegraph's /batches contract)
// ============================================================================

type Transaction struct {
	ID        string  `json:"transaction_id"`
	Sender    string  `json:"sender_id"`
	Receiver  string  `json:"receiver_id"`
	Amount    float64 `json:"amount"`
	Timestamp string  `json:"timestamp"`
}

type BatchRequest struct {
	BatchID      string        `json:"batchId,omitempty"`
	Transactions []Transaction `json:"transactions"`
}

type SuspiciousAccount struct {
	AccountID        string   `json:"account_id"`
	SuspicionScore   int      `json:"suspicion_score"`
	DetectedPatterns []string `json:"detected_patterns"`
}

type Ring struct {
	RingID         string   `json:"ring_id"`
	PatternType    string   `json:"pattern_type"`
	MemberAccounts []string `json:"member_accounts"`
	RiskScore      int      `json:"risk_score"`
}

type Summary struct {
	TotalTransactions         int            `json:"total_transactions"`
	TotalAccountsAnalyzed     int            `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int            `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int            `json:"fraud_rings_detected"`
	ProcessingTimeSeconds     float64        `json:"processing_time_seconds"`
	RingsByPattern            map[string]int `json:"rings_by_pattern"`
}

type Report struct {
	Summary            Summary             `json:"summary"`
	SuspiciousAccounts []SuspiciousAccount `json:"suspicious_accounts"`
	FraudRings         []Ring              `json:"fraud_rings"`
}

type BatchResponse struct {
	BatchID string  `json:"batchId"`
	Report  Report  `json:"report"`
	Meta    struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"meta"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func submitBatch(t *testing.T, config TestConfig, req BatchRequest) (*http.Response, BatchResponse) {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, config.BaseURL+"/batches", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}

	var result BatchResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(respBody, &result); err != nil {
			t.Fatalf("failed to unmarshal response: %v (body: %s)", err, string(respBody))
		}
	}

	// Rebuild a throwaway response carrying the raw status for callers that
	// only care about the status code.
	rebuilt := &http.Response{StatusCode: resp.StatusCode}
	return rebuilt, result
}

func tx(id, from, to string, amount float64, ts time.Time) Transaction {
	return Transaction{
		ID:        id,
		Sender:    from,
		Receiver:  to,
		Amount:    amount,
		Timestamp: ts.Format(time.RFC3339),
	}
}

func ringWithPattern(report Report, pattern string) (Ring, bool) {
	for _, r := range report.FraudRings {
		if r.PatternType == pattern {
			return r, true
		}
	}
	return Ring{}, false
}

// ============================================================================
// SCENARIO 1: Simple 3-cycle
// ============================================================================

func TestThreeCycle_DetectedAsRing(t *testing.T) {
	/*
	   SCENARIO: A -> B -> C -> A, three hops, shrinking amounts.

	   EXPECTED: exactly one ring, pattern_type "cycle", three members.
	*/
	config := getTestConfig()
	base := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)

	req := BatchRequest{
		BatchID: "it-three-cycle",
		Transactions: []Transaction{
			tx("txn001", "A", "B", 5000, base),
			tx("txn002", "B", "C", 4800, base.Add(time.Hour)),
			tx("txn003", "C", "A", 4700, base.Add(2*time.Hour)),
		},
	}

	resp, result := submitBatch(t, config, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	ring, ok := ringWithPattern(result.Report, "cycle")
	if !ok {
		t.Fatalf("expected a cycle ring, got rings: %+v", result.Report.FraudRings)
	}
	if len(ring.MemberAccounts) != 3 {
		t.Errorf("expected 3 members, got %d: %v", len(ring.MemberAccounts), ring.MemberAccounts)
	}

	t.Logf("cycle ring: id=%s risk_score=%d members=%v", ring.RingID, ring.RiskScore, ring.MemberAccounts)
}

// ============================================================================
// SCENARIO 2: Fan-in smurfing
// ============================================================================

func TestFanInSmurfing_DetectedAsRing(t *testing.T) {
	/*
	   SCENARIO: 12 distinct senders pay account X exactly 900 within a
	   24-hour window.

	   EXPECTED: exactly one ring, pattern_type "fan_in", 13 members
	   (hub + 12 spokes).
	*/
	config := getTestConfig()
	base := time.Date(2026, 2, 18, 0, 0, 0, 0, time.UTC)

	var txs []Transaction
	for i := 1; i <= 12; i++ {
		sender := fmt.Sprintf("S%d", i)
		txs = append(txs, tx(fmt.Sprintf("t%d", i), sender, "X", 900, base.Add(time.Duration(i)*time.Hour)))
	}

	resp, result := submitBatch(t, config, BatchRequest{BatchID: "it-fan-in", Transactions: txs})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	ring, ok := ringWithPattern(result.Report, "fan_in")
	if !ok {
		t.Fatalf("expected a fan_in ring, got rings: %+v", result.Report.FraudRings)
	}
	if len(ring.MemberAccounts) != 13 {
		t.Errorf("expected 13 members, got %d: %v", len(ring.MemberAccounts), ring.MemberAccounts)
	}
}

// ============================================================================
// SCENARIO 3: Shell chain layering
// ============================================================================

func TestShellChain_DetectedAsRing(t *testing.T) {
	/*
	   SCENARIO: A -> B -> C -> D -> E, each intermediary with one incoming
	   and one outgoing transaction, amounts shrinking within tolerance.

	   EXPECTED: exactly one ring, pattern_type "shell_chain", 5 members.
	*/
	config := getTestConfig()
	base := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)

	req := BatchRequest{
		BatchID: "it-shell-chain",
		Transactions: []Transaction{
			tx("t1", "A", "B", 10000, base),
			tx("t2", "B", "C", 9800, base.Add(time.Hour)),
			tx("t3", "C", "D", 9600, base.Add(2*time.Hour)),
			tx("t4", "D", "E", 9400, base.Add(3*time.Hour)),
		},
	}

	resp, result := submitBatch(t, config, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	ring, ok := ringWithPattern(result.Report, "shell_chain")
	if !ok {
		t.Fatalf("expected a shell_chain ring, got rings: %+v", result.Report.FraudRings)
	}
	if len(ring.MemberAccounts) != 5 {
		t.Errorf("expected 5 members, got %d: %v", len(ring.MemberAccounts), ring.MemberAccounts)
	}
}

// ============================================================================
// SCENARIO 4: Merchant dampening
// ============================================================================

func TestHighVolumeMerchant_NotFlagged(t *testing.T) {
	/*
	   SCENARIO: An account receiving from many hundreds of distinct
	   counterparties, spaced apart so it never also trips the fan-in
	   detector, should not surface as a suspicious account: a high
	   distinct-counterparty count is the signature of a legitimate
	   merchant, which the scorer dampens rather than rewards.
	*/
	config := getTestConfig()
	base := time.Date(2026, 2, 18, 9, 0, 0, 0, time.UTC)

	var txs []Transaction
	for i := 0; i < 1100; i++ {
		sender := fmt.Sprintf("cp-%d", i)
		txs = append(txs, tx(fmt.Sprintf("m%d", i), sender, "MERCHANT", 500, base.Add(time.Duration(i)*80*time.Hour)))
	}

	resp, result := submitBatch(t, config, BatchRequest{BatchID: "it-merchant", Transactions: txs})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	for _, a := range result.Report.SuspiciousAccounts {
		if a.AccountID == "MERCHANT" {
			t.Errorf("expected MERCHANT to be dampened below the suspicious threshold, got score %d", a.SuspicionScore)
		}
	}
}

// ============================================================================
// SCENARIO 5: Overlapping cycle and extra senders yield one ring covering A
// ============================================================================

func TestOverlappingCycleAndFan_OneRingCoversA(t *testing.T) {
	/*
	   SCENARIO: A 4-member cycle A->B->C->D->A, plus two additional senders
	   paying into A. Under the server's default FanMinSpokes (10) the three
	   senders into A form no fan-in finding, so the cycle is the only
	   candidate ring; the fan-in merge itself is exercised by the engine's
	   TestAnalyzeOverlappingCycleAndFanMerge with a lower FanMinSpokes.

	   EXPECTED: exactly one ring covering A, rather than two separate rings.
	*/
	config := getTestConfig()
	base := time.Date(2026, 2, 18, 0, 0, 0, 0, time.UTC)

	req := BatchRequest{
		BatchID: "it-merge",
		Transactions: []Transaction{
			tx("c1", "A", "B", 1000, base),
			tx("c2", "B", "C", 1000, base.Add(time.Hour)),
			tx("c3", "C", "D", 1000, base.Add(2*time.Hour)),
			tx("c4", "D", "A", 1000, base.Add(3*time.Hour)),
			tx("f1", "N1", "A", 500, base.Add(4*time.Hour)),
			tx("f2", "N2", "A", 500, base.Add(5*time.Hour)),
		},
	}

	resp, result := submitBatch(t, config, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	var coveringA []Ring
	for _, r := range result.Report.FraudRings {
		for _, m := range r.MemberAccounts {
			if m == "A" {
				coveringA = append(coveringA, r)
				break
			}
		}
	}
	if len(coveringA) != 1 {
		t.Fatalf("expected exactly 1 ring covering A, got %d: %+v", len(coveringA), coveringA)
	}

	t.Logf("ring covering A: id=%s pattern=%s members=%v", coveringA[0].RingID, coveringA[0].PatternType, coveringA[0].MemberAccounts)
}

// ============================================================================
// SCENARIO 6: Empty batch
// ============================================================================

func TestEmptyTransactions_RejectedWith400(t *testing.T) {
	/*
	   SCENARIO: A batch with no transactions is a client error, not an
	   empty-but-valid report: POST /batches rejects it before it ever
	   reaches the engine.
	*/
	config := getTestConfig()

	resp, _ := submitBatch(t, config, BatchRequest{BatchID: "it-empty"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 for an empty batch, got %d", resp.StatusCode)
	}
}

// ============================================================================
// SCENARIO 7: Input validation
// ============================================================================

func TestInvalidJSON_RejectedWith400(t *testing.T) {
	config := getTestConfig()

	httpReq, _ := http.NewRequest(http.MethodPost, config.BaseURL+"/batches", bytes.NewBufferString("not-json"))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", resp.StatusCode)
	}
}

func TestMissingTenantHeader_RejectedWith400(t *testing.T) {
	config := getTestConfig()
	base := time.Now().UTC()

	req := BatchRequest{
		BatchID: "it-no-tenant",
		Transactions: []Transaction{
			tx("t1", "A", "B", 100, base),
		},
	}
	body, _ := json.Marshal(req)

	httpReq, _ := http.NewRequest(http.MethodPost, config.BaseURL+"/batches", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	// No X-Tenant-ID header.

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing tenant header, got %d", resp.StatusCode)
	}
}

// ============================================================================
// SCENARIO 8: Response envelope
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	/*
	   SCENARIO: Verify the response envelope carries the fields clients
	   depend on (batchId, traceId, version), independent of report content.
	*/
	config := getTestConfig()
	base := time.Now().UTC()

	req := BatchRequest{
		BatchID: "it-metadata",
		Transactions: []Transaction{
			tx("t1", "A", "B", 100, base),
		},
	}

	resp, result := submitBatch(t, config, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	if result.BatchID != "it-metadata" {
		t.Errorf("expected batchId 'it-metadata', got %q", result.BatchID)
	}
	if result.Meta.TraceID == "" {
		t.Error("missing meta.traceId")
	}
	if result.Meta.TotalMs < 0 {
		t.Error("invalid meta.totalMs (negative)")
	}
	if result.Report.Summary.TotalTransactions != 1 {
		t.Errorf("expected 1 transaction in summary, got %d", result.Report.Summary.TotalTransactions)
	}
}

// Benchmark tool for testing mulegraph against PaySim fraud data.
//
// Usage:
//
//	go run cmd/benchmark/main.go -csv /path/to/paysim.csv -url http://localhost:8080
//
// This tool:
//  1. Reads PaySim transaction data (with fraud labels)
//  2. Converts it into a single transaction batch and submits it to
//     mulegraph for analysis
//  3. Compares the accounts mulegraph flagged as suspicious against the
//     accounts that actually touched a labeled-fraud transaction
//  4. Calculates precision, recall, F1-score, and a confusion matrix over
//     the account universe
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// PaySimTransaction represents a row from the PaySim dataset.
type PaySimTransaction struct {
	Step     int
	Type     string
	Amount   float64
	NameOrig string
	NameDest string
	IsFraud  bool
}

// TransactionPayload mirrors domain.Transaction's wire format.
type TransactionPayload struct {
	ID        string  `json:"transaction_id"`
	Sender    string  `json:"sender_id"`
	Receiver  string  `json:"receiver_id"`
	Amount    float64 `json:"amount"`
	Timestamp string  `json:"timestamp"`
}

// BatchPayload mirrors domain.BatchRequest's wire format.
type BatchPayload struct {
	BatchID      string                `json:"batchId,omitempty"`
	Transactions []TransactionPayload `json:"transactions"`
}

// SuspiciousAccountPayload mirrors domain.SuspiciousAccount's wire format.
type SuspiciousAccountPayload struct {
	AccountID        string   `json:"account_id"`
	SuspicionScore   int      `json:"suspicion_score"`
	DetectedPatterns []string `json:"detected_patterns"`
}

// ReportPayload mirrors the subset of domain.Report this tool inspects.
type ReportPayload struct {
	Summary struct {
		TotalTransactions         int     `json:"total_transactions"`
		TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
		SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
		FraudRingsDetected        int     `json:"fraud_rings_detected"`
		ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
	} `json:"summary"`
	SuspiciousAccounts []SuspiciousAccountPayload `json:"suspicious_accounts"`
}

// BatchResponsePayload mirrors api.BatchResponse's wire format.
type BatchResponsePayload struct {
	BatchID string        `json:"batchId"`
	Report  ReportPayload `json:"report"`
}

// Metrics tracks benchmark results over the account universe.
type Metrics struct {
	TruePositives  int // fraud-touched accounts flagged suspicious
	FalsePositives int // clean accounts flagged suspicious
	TrueNegatives  int // clean accounts not flagged
	FalseNegatives int // fraud-touched accounts missed
}

func main() {
	csvPath := flag.String("csv", "", "Path to PaySim CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "mulegraph base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for the request")
	limit := flag.Int("limit", 50000, "Maximum transactions to load (0 = all)")
	verbose := flag.Bool("verbose", false, "Print per-account results")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/paysim.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("================================================================")
	fmt.Println("          MULEGRAPH BENCHMARK - PaySim Fraud Ring Detection")
	fmt.Println("================================================================")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Base URL:    %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: mulegraph not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the service is running:")
		fmt.Println("  go run cmd/mulegraph/main.go")
		os.Exit(1)
	}
	fmt.Println("mulegraph is healthy")

	fmt.Printf("\nReading PaySim data from %s...\n", *csvPath)
	rows, err := readPaySimCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d transactions\n", len(rows))

	fraudAccounts := make(map[string]bool)
	allAccounts := make(map[string]bool)
	for _, r := range rows {
		allAccounts[r.NameOrig] = true
		allAccounts[r.NameDest] = true
		if r.IsFraud {
			fraudAccounts[r.NameOrig] = true
			fraudAccounts[r.NameDest] = true
		}
	}
	fmt.Printf("  - Distinct accounts: %d\n", len(allAccounts))
	fmt.Printf("  - Fraud-touched:     %d\n", len(fraudAccounts))

	batch := buildBatch(rows)

	fmt.Println("\nSubmitting batch to /batches...")
	start := time.Now()
	report, err := submitBatch(*baseURL, *tenantID, batch)
	duration := time.Since(start)
	if err != nil {
		fmt.Printf("ERROR: batch submission failed: %v\n", err)
		os.Exit(1)
	}

	flagged := make(map[string]SuspiciousAccountPayload, len(report.Report.SuspiciousAccounts))
	for _, sa := range report.Report.SuspiciousAccounts {
		flagged[sa.AccountID] = sa
	}

	metrics := &Metrics{}
	for acct := range allAccounts {
		_, isFlagged := flagged[acct]
		isFraud := fraudAccounts[acct]

		switch {
		case isFraud && isFlagged:
			metrics.TruePositives++
		case !isFraud && isFlagged:
			metrics.FalsePositives++
		case !isFraud && !isFlagged:
			metrics.TrueNegatives++
		default:
			metrics.FalseNegatives++
		}

		if *verbose {
			mark := "."
			if isFraud != isFlagged {
				mark = "x"
			}
			fmt.Printf("%s %-12s fraud=%-5v flagged=%-5v\n", mark, acct, isFraud, isFlagged)
		}
	}

	printResults(metrics, report, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readPaySimCSV(path string, limit int) ([]PaySimTransaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(col)] = i
	}

	var rows []PaySimTransaction
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		step, _ := strconv.Atoi(record[colIndex["step"]])
		amount, _ := strconv.ParseFloat(record[colIndex["amount"]], 64)
		isFraud := record[colIndex["isfraud"]] == "1"

		rows = append(rows, PaySimTransaction{
			Step:     step,
			Type:     record[colIndex["type"]],
			Amount:   amount,
			NameOrig: record[colIndex["nameorig"]],
			NameDest: record[colIndex["namedest"]],
			IsFraud:  isFraud,
		})

		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, nil
}

// buildBatch converts PaySim's step counter (hours since simulation start)
// into absolute timestamps so the temporal detectors have a real ordering
// to sort on.
func buildBatch(rows []PaySimTransaction) BatchPayload {
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	txs := make([]TransactionPayload, 0, len(rows))
	for i, r := range rows {
		ts := epoch.Add(time.Duration(r.Step) * time.Hour)
		txs = append(txs, TransactionPayload{
			ID:        fmt.Sprintf("paysim-%d", i),
			Sender:    r.NameOrig,
			Receiver:  r.NameDest,
			Amount:    r.Amount,
			Timestamp: ts.Format(time.RFC3339),
		})
	}

	return BatchPayload{BatchID: "paysim-benchmark", Transactions: txs}
}

func submitBatch(baseURL, tenantID string, batch BatchPayload) (*BatchResponsePayload, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/batches", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}

	var result BatchResponsePayload
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, report *BatchResponsePayload, duration time.Duration) {
	fmt.Println("\n================================================================")
	fmt.Println("                       BENCHMARK RESULTS")
	fmt.Println("================================================================")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Transactions:        %d\n", report.Report.Summary.TotalTransactions)
	fmt.Printf("   Accounts analyzed:   %d\n", report.Report.Summary.TotalAccountsAnalyzed)
	fmt.Printf("   Accounts flagged:    %d\n", report.Report.Summary.SuspiciousAccountsFlagged)
	fmt.Printf("   Fraud rings found:   %d\n", report.Report.Summary.FraudRingsDetected)

	fmt.Printf("\nCONFUSION MATRIX (account-level)\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    Flagged     Clean")
	fmt.Printf("   Actual  Fraud  | %8d | %8d |  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           Clean  | %8d | %8d |  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	fmt.Printf("\nDETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged accounts, how many touched fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud-touched accounts, how many we caught)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Wall time:          %v\n", duration.Round(time.Millisecond))
	fmt.Printf("   Server-side:        %.3fs\n", report.Report.Summary.ProcessingTimeSeconds)
	fmt.Println()
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single validated transfer between two accounts.
// The batch as a whole is produced by an external CSV/ingest collaborator;
// the engine only ever consumes already-validated records.
type Transaction struct {
	ID        string          `json:"transaction_id"`
	Sender    string          `json:"sender_id"`
	Receiver  string          `json:"receiver_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Nighttime window bounds: [22,24) U [0,6).
const (
	nightStartHour = 22
	nightEndHour   = 6
)

// IsNight reports whether the transaction occurred during the nighttime window.
func (t Transaction) IsNight() bool {
	h := t.Timestamp.Hour()
	return h >= nightStartHour || h < nightEndHour
}

var roundAmountDivisor = decimal.NewFromInt(100)

// IsRoundAmount reports whether the amount is divisible by 100 with no
// fractional remainder.
func (t Transaction) IsRoundAmount() bool {
	if !t.Amount.Truncate(0).Equal(t.Amount) {
		return false
	}
	return t.Amount.Mod(roundAmountDivisor).IsZero()
}

// BatchRequest is the API/CLI submission payload: an already-validated
// transaction slice plus a batch identifier for later retrieval.
type BatchRequest struct {
	BatchID      string        `json:"batchId,omitempty"`
	Transactions []Transaction `json:"transactions"`
}

package domain

// Report is the top-level output of a single Engine.Analyze call: the
// stable JSON contract returned by POST /batches and stored by the
// repository/cache layers for later retrieval.
type Report struct {
	Summary            Summary             `json:"summary"`
	SuspiciousAccounts []SuspiciousAccount `json:"suspicious_accounts"`
	FraudRings         []Ring              `json:"fraud_rings"`
}

// Summary holds batch-level aggregate statistics.
type Summary struct {
	TotalTransactions         int            `json:"total_transactions"`
	TotalAccountsAnalyzed     int            `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int            `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int            `json:"fraud_rings_detected"`
	ProcessingTimeSeconds     float64        `json:"processing_time_seconds"`
	RingsByPattern            map[string]int `json:"rings_by_pattern,omitempty"`
	SelfLoopsDropped          int            `json:"self_loops_dropped,omitempty"`
}

// SuspiciousAccount is an account whose suspicion score met or exceeded the
// configured threshold. Ring membership alone does not make an account
// suspicious: a ring member scoring below the threshold is not listed.
type SuspiciousAccount struct {
	AccountID        string                `json:"account_id"`
	SuspicionScore   int                   `json:"suspicion_score"`
	DetectedPatterns []string              `json:"detected_patterns"`
	RingID           string                `json:"ring_id"`
	Indicators       *BehavioralIndicators `json:"indicators,omitempty"`
}

// BehavioralIndicators mirrors the original account-level suspicion
// indicators, exported alongside the scalar score so a caller can see why
// an account was flagged without re-deriving the ratios itself.
type BehavioralIndicators struct {
	RoundAmountRatio float64 `json:"round_amount_ratio"`
	NightRatio       float64 `json:"night_ratio"`
	BalancedFlow     float64 `json:"balanced_flow_ratio"`
	VelocityPerHour  float64 `json:"velocity_per_hour"`
}

// Ring is an assembled fraud ring: one or more merged Findings sharing a
// sufficient number of member accounts.
type Ring struct {
	RingID         string   `json:"ring_id"`
	PatternType    string   `json:"pattern_type"`
	MemberAccounts []string `json:"member_accounts"`
	RiskScore      int      `json:"risk_score"`
	Evidence       string   `json:"evidence"`
}

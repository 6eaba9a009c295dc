package domain

import "time"

// FindingKind identifies which detector (C2/C3/C4) produced a Finding.
type FindingKind string

const (
	KindCycle      FindingKind = "cycle"
	KindFanIn      FindingKind = "fan_in"
	KindFanOut     FindingKind = "fan_out"
	KindShellChain FindingKind = "shell_chain"
)

// Pattern type labels carried on an assembled Ring. A merged ring keeps the
// kind of its winning contributor rather than a blended label, so these are
// the only four values a ring's PatternType ever takes.
const (
	PatternCycle      = "cycle"
	PatternFanIn      = "fan_in"
	PatternFanOut     = "fan_out"
	PatternShellChain = "shell_chain"
)

// Finding is a single raw pattern emitted by a detector, before ring
// assembly merges overlapping findings together. Members is always ordered
// the way the detector discovered it (cycle: rotated canonical order; fan:
// hub first then spokes in first-seen order; chain: source-to-sink order).
type Finding struct {
	Kind    FindingKind
	Members []string
	Hub     string
	Edges   []Edge

	FanVolume   float64
	FanSpokes   int
	ChainLength int
}

// Edge is a single transfer contributing to a Finding's evidence trail.
type Edge struct {
	From      string
	To        string
	Amount    float64
	Timestamp time.Time
}

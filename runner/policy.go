package runner

// Policy selects which halves of the cache are active.
type Policy struct {
	// Read allows results to be served from the store.
	Read bool

	// Write allows fresh results to be written to the store.
	Write bool
}

// DefaultPolicy reads and writes.
func DefaultPolicy() Policy {
	return Policy{Read: true, Write: true}
}

// NoCachePolicy bypasses the store entirely.
func NoCachePolicy() Policy {
	return Policy{}
}

// Enabled reports whether the store is used at all.
func (p Policy) Enabled() bool {
	return p.Read || p.Write
}

// Outcome classifies a lookup for logs and metrics.
type Outcome string

const (
	OutcomeHit       Outcome = "hit"
	OutcomeMiss      Outcome = "miss"
	OutcomeCorrupt   Outcome = "corrupt"
	OutcomeReadError Outcome = "read_error"
	OutcomeBypass    Outcome = "bypass"
)

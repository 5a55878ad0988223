// Package budget enforces a spend cap across all paid operations.
package budget

import (
	"fmt"
	"sync"
)

// Status represents the current state of budget consumption.
type Status int

const (
	// StatusOK indicates usage is below the warning threshold.
	StatusOK Status = iota
	// StatusWarning indicates usage is between the warning threshold and the cap.
	StatusWarning
	// StatusExhausted indicates the cap is fully consumed.
	StatusExhausted
)

// String returns a human-readable representation of the budget status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "Warning"
	case StatusExhausted:
		return "Exhausted"
	default:
		return "Unknown"
	}
}

// DefaultWarnThreshold is the default fraction of the cap at which warnings begin.
const DefaultWarnThreshold = 0.80

// ExceededError is returned when a charge would push spend over the cap.
// A rejected charge is a terminal signal to the caller, not something the
// guard resolves itself.
type ExceededError struct {
	// Requested is the amount the caller tried to charge.
	Requested float64
	// Remaining is the headroom that was left at rejection time.
	Remaining float64
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: requested %.4f with %.4f remaining", e.Requested, e.Remaining)
}

// Guard tracks cumulative spend against a cap. All mutation goes through
// Charge; the spent counter is monotonically increasing and spent <= cap
// holds after every successful charge, under any concurrent interleaving.
type Guard struct {
	// cap is the maximum allowed spend. A cap <= 0 means unlimited.
	cap float64
	// spent is the cumulative accepted spend.
	spent float64
	// warnThreshold is the fraction of cap (0.0-1.0) at which warnings begin.
	warnThreshold float64
	// mu serializes charges so the cap invariant never transiently breaks.
	mu sync.Mutex
}

// NewGuard creates a Guard with the given cap and the default warn threshold.
func NewGuard(cap float64) *Guard {
	return &Guard{
		cap:           cap,
		warnThreshold: DefaultWarnThreshold,
	}
}

// Charge atomically adds amount to the spent counter. If the charge would
// push spend over the cap it is rejected with an *ExceededError and the
// counter is left untouched. Negative amounts are ignored.
func (g *Guard) Charge(amount float64) error {
	if amount <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cap > 0 && g.spent+amount > g.cap {
		return &ExceededError{
			Requested: amount,
			Remaining: g.cap - g.spent,
		}
	}

	g.spent += amount
	return nil
}

// Remaining returns the headroom left under the cap. Returns 0 for an
// unlimited guard since there is no meaningful headroom to report.
func (g *Guard) Remaining() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cap <= 0 {
		return 0
	}
	return g.cap - g.spent
}

// Spent returns the cumulative accepted spend.
func (g *Guard) Spent() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spent
}

// Cap returns the configured cap.
func (g *Guard) Cap() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cap
}

// Status returns the current budget status based on usage fraction.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cap <= 0 {
		return StatusOK
	}

	fraction := g.spent / g.cap
	if fraction >= 1.0 {
		return StatusExhausted
	}
	if fraction >= g.warnThreshold {
		return StatusWarning
	}
	return StatusOK
}

// SetWarnThreshold sets the warning threshold fraction. Values outside
// [0, 1] are clamped.
func (g *Guard) SetWarnThreshold(threshold float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	g.warnThreshold = threshold
}

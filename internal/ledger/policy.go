package ledger

import (
	"fmt"
	"strings"
	"time"
)

// RefundPolicy returns the share of a cancelled reservation's total cost
// handed back to the user. Results outside [0, 1] are clamped.
type RefundPolicy func(now, start, end time.Time) float64

// FullBeforeStart refunds everything until the window starts and nothing
// afterwards.
func FullBeforeStart(now, start, _ time.Time) float64 {
	if now.Before(start) {
		return 1
	}
	return 0
}

// Prorated refunds everything before the start and the unused share of
// the window while it runs.
func Prorated(now, start, end time.Time) float64 {
	switch {
	case now.Before(start):
		return 1
	case !now.Before(end):
		return 0
	}
	return float64(end.Sub(now)) / float64(end.Sub(start))
}

// NoRefund never refunds.
func NoRefund(_, _, _ time.Time) float64 { return 0 }

// PolicyByName resolves the REFUND_POLICY setting.
func PolicyByName(name string) (RefundPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "full_before_start":
		return FullBeforeStart, nil
	case "prorated":
		return Prorated, nil
	case "none":
		return NoRefund, nil
	}
	return nil, fmt.Errorf("unknown refund policy %q", name)
}

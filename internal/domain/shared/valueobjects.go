package shared

import (
	"math"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Object
// ═══════════════════════════════════════════════════════════════════════════

// MaxIDLength bounds identifiers accepted from callers.
const MaxIDLength = 64

// NormalizeID trims an identifier and checks that it is usable as a key.
func NormalizeID(domain, field, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", NewDomainError(domain, "Validate", ErrInvalidID, field+" is required")
	}
	if len(id) > MaxIDLength {
		return "", NewDomainError(domain, "Validate", ErrInvalidID, field+" is too long")
	}
	return id, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Score Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Round2 rounds a score half away from zero to two decimal places.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}

// Mean returns the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// ═══════════════════════════════════════════════════════════════════════════
// Page Value Object
// ═══════════════════════════════════════════════════════════════════════════

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Page is a limit/offset window over a listing.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page into the accepted range.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ═══════════════════════════════════════════════════════════════════════════
// DateRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// DateRange is an optional start/end window. Either bound may be nil.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// IsValid reports whether the end does not precede the start.
func (d DateRange) IsValid() bool {
	if d.Start == nil || d.End == nil {
		return true
	}
	return !d.End.Before(*d.Start)
}

// Contains reports whether t falls inside the window. Open bounds match.
func (d DateRange) Contains(t time.Time) bool {
	if d.Start != nil && t.Before(*d.Start) {
		return false
	}
	if d.End != nil && t.After(*d.End) {
		return false
	}
	return true
}

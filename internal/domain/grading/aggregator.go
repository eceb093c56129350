package grading

import (
	"fmt"
	"strings"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// Strategy names a reduction of one payload to one score.
type Strategy string

const (
	// StrategySimpleMedia is the mean of all numeric leaves.
	StrategySimpleMedia Strategy = "simple_media"

	// StrategyRawSum is the sum of all numeric leaves.
	StrategyRawSum Strategy = "raw_sum"
)

// ParseStrategy resolves a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategySimpleMedia:
		return StrategySimpleMedia, nil
	case StrategyRawSum:
		return StrategyRawSum, nil
	default:
		return "", shared.Validation("grading", "ParseStrategy", fmt.Sprintf("unknown strategy %q", s))
	}
}

// IsValid reports whether s is a known strategy.
func (s Strategy) IsValid() bool {
	return s == StrategySimpleMedia || s == StrategyRawSum
}

// String returns the strategy name.
func (s Strategy) String() string {
	return string(s)
}

// SimpleMedia returns the mean of all numeric leaves rounded to two decimals,
// or 0 for a payload without leaves.
func SimpleMedia(p Payload) float64 {
	return shared.Round2(shared.Mean(p.Leaves()))
}

// RawSum returns the sum of all numeric leaves rounded to two decimals.
func RawSum(p Payload) float64 {
	var sum float64
	for _, v := range p.Leaves() {
		sum += v
	}
	return shared.Round2(sum)
}

// Reduce applies the strategy to a parsed payload.
func (s Strategy) Reduce(p Payload) float64 {
	if s == StrategyRawSum {
		return RawSum(p)
	}
	return SimpleMedia(p)
}

// Score parses raw payload text and reduces it. A malformed payload scores 0
// and the returned error wraps shared.ErrMalformedPayload; callers log it as
// a warning and keep going.
func (s Strategy) Score(raw string) (float64, error) {
	p, err := ParsePayload(raw)
	if err != nil {
		return 0, err
	}
	return s.Reduce(p), nil
}

// Aggregate is the mean of per-evaluation scores rounded to two decimals,
// or 0 when there are none.
func Aggregate(scores []float64) float64 {
	return shared.Round2(shared.Mean(scores))
}

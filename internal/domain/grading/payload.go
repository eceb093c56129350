// Package grading reduces evaluation grade payloads to numeric scores.
//
// A payload is JSON text shaped as tag -> criterion -> number. Only numeric
// leaves under a tag object take part in a reduction. Top-level scalars,
// nested objects, strings, booleans and nulls are skipped, never coerced.
package grading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
)

// Payload is the typed view of a grade payload: tag -> criterion -> score.
type Payload map[string]map[string]float64

// ParsePayload decodes raw payload text into its numeric leaves.
// Empty text yields an empty payload. Text that is not a JSON object yields
// an empty payload and an error wrapping shared.ErrMalformedPayload.
func ParsePayload(raw string) (Payload, error) {
	if strings.TrimSpace(raw) == "" {
		return Payload{}, nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return Payload{}, shared.WrapError("grading", "Parse", shared.ErrMalformedPayload, "payload is not a JSON object", err)
	}
	if doc == nil {
		return Payload{}, shared.NewDomainError("grading", "Parse", shared.ErrMalformedPayload, "payload is null")
	}

	p := make(Payload, len(doc))
	for tag, node := range doc {
		criteria, ok := node.(map[string]any)
		if !ok {
			continue
		}
		leaves := make(map[string]float64, len(criteria))
		for name, leaf := range criteria {
			num, ok := leaf.(json.Number)
			if !ok {
				continue
			}
			v, err := num.Float64()
			if err != nil {
				continue
			}
			leaves[name] = v
		}
		if len(leaves) > 0 {
			p[tag] = leaves
		}
	}
	return p, nil
}

// IsObject reports whether raw is a JSON object. Used to reject writes whose
// payload could never be reduced.
func IsObject(raw string) bool {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var obj map[string]json.RawMessage
	return json.Unmarshal(trimmed, &obj) == nil
}

// Leaves returns every numeric leaf in a stable tag/criterion order.
func (p Payload) Leaves() []float64 {
	tags := make([]string, 0, len(p))
	for tag := range p {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	var out []float64
	for _, tag := range tags {
		names := make([]string, 0, len(p[tag]))
		for name := range p[tag] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, p[tag][name])
		}
	}
	return out
}

// Count returns the number of numeric leaves.
func (p Payload) Count() int {
	n := 0
	for _, criteria := range p {
		n += len(criteria)
	}
	return n
}

// String renders the payload as canonical JSON.
func (p Payload) String() string {
	data, err := json.Marshal(map[string]map[string]float64(p))
	if err != nil {
		return fmt.Sprintf("%v", map[string]map[string]float64(p))
	}
	return string(data)
}

package grading

import "github.com/avalia-hub/avalia-hub/internal/domain/shared"

// SheetKind classifies an evaluation relative to the evaluated student.
type SheetKind string

const (
	SheetInstructor SheetKind = "instructor"
	SheetSelf       SheetKind = "self"
	SheetPeer       SheetKind = "peer"
)

// Sheet is the grading input of one evaluation.
type Sheet struct {
	Kind        SheetKind
	EvaluatorID string
	EvaluatedID string
	Payload     string
	FileGrades  map[string]float64
}

// Breakdown is a student's final grade split by evaluator role.
type Breakdown struct {
	StudentID  string  `json:"studentId"`
	Instructor float64 `json:"professor"`
	Self       float64 `json:"auto"`
	Peers      float64 `json:"peers"`
	PeerCount  int     `json:"peerCount"`
	Total      float64 `json:"total"`
	Malformed  int     `json:"malformed,omitempty"`
}

// ComputeBreakdown builds the breakdown of studentID from the sheets of one
// assignment. Sheets about other students are ignored.
//
//   - instructor: raw sum of the criteria plus the sum of file grades
//   - self: raw sum of the self evaluation
//   - peers: mean of the raw sums of peer evaluations
//   - total: instructor + self + peers
//
// When several instructor or self sheets exist the last one wins.
func ComputeBreakdown(studentID string, sheets []Sheet) Breakdown {
	b := Breakdown{StudentID: studentID}
	var peerSums []float64

	for _, s := range sheets {
		if s.EvaluatedID != studentID {
			continue
		}
		p, err := ParsePayload(s.Payload)
		if err != nil {
			b.Malformed++
		}
		sum := RawSum(p)

		switch s.Kind {
		case SheetInstructor:
			var files float64
			for _, g := range s.FileGrades {
				files += g
			}
			b.Instructor = shared.Round2(sum + files)
		case SheetSelf:
			b.Self = sum
		default:
			peerSums = append(peerSums, sum)
		}
	}

	b.PeerCount = len(peerSums)
	b.Peers = shared.Round2(shared.Mean(peerSums))
	b.Total = shared.Round2(b.Instructor + b.Self + b.Peers)
	return b
}

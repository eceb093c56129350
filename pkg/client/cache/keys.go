package cache

import (
	"fmt"
	"net/url"
)

// Key prefixes. Single-entity keys and list keys use distinct prefixes so a
// prefix clear of one never reaches the other.
const (
	PrefixClass                   = "class:"
	PrefixClassList               = "classes:"
	PrefixAssignment              = "assignment:"
	PrefixAssignmentsByClass      = "assignments:class:"
	PrefixEvaluationsByAssignment = "evaluations:assignment:"
	PrefixGradeReport             = "report:assignment:"
	PrefixStudent                 = "student:"
	PrefixStudentList             = "students:"
)

// ClassKey is the key of one class with its roster.
func ClassKey(id string) string { return PrefixClass + id }

// ClassListKey is the key of one page of the class list. The zero page is
// the unscoped list.
func ClassListKey(limit, offset int) string {
	if limit == 0 && offset == 0 {
		return PrefixClassList + "all"
	}
	return fmt.Sprintf("%sall?limit=%d&offset=%d", PrefixClassList, limit, offset)
}

// AssignmentKey is the key of one assignment with its class and evaluations.
func AssignmentKey(id string) string { return PrefixAssignment + id }

// AssignmentsByClassKey is the key of the assignments of a class. With a
// student id the list carries that student's own averages.
func AssignmentsByClassKey(classID, studentID string) string {
	if studentID == "" {
		return PrefixAssignmentsByClass + classID
	}
	return PrefixAssignmentsByClass + classID + ":student:" + studentID
}

// EvaluationsByAssignmentKey is the key of the evaluations of an assignment.
func EvaluationsByAssignmentKey(assignmentID string) string {
	return PrefixEvaluationsByAssignment + assignmentID
}

// GradeReportKey is the key of the grade report of an assignment.
func GradeReportKey(assignmentID string) string { return PrefixGradeReport + assignmentID }

// StudentKey is the key of one student.
func StudentKey(id string) string { return PrefixStudent + id }

// StudentListKey is the key of one filtered student list. Empty filters
// give the unscoped list.
func StudentListKey(filters url.Values) string {
	if len(filters) == 0 {
		return PrefixStudentList + "all"
	}
	return PrefixStudentList + "all?" + filters.Encode()
}

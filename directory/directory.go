// Package directory defines the student-directory contract consumed by the
// outpass engine. Directory management itself (enrollment, room moves) is
// an external collaborator; the engine only looks students up.
package directory

import (
	"context"
	"errors"
)

// Student is the directory view of a hostel resident.
type Student struct {
	ID           string
	Roll         string
	Name         string
	MobileNumber string
	ParentMobile string
}

// ErrStudentNotFound is returned for unknown roll numbers or ids.
var ErrStudentNotFound = errors.New("student not found")

// Directory resolves students by roll number or id.
type Directory interface {
	FindByKey(ctx context.Context, key string) (*Student, error)
}

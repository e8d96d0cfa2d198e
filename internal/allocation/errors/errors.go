package errors

import "errors"

var (
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict means a conditional update matched zero rows: the
	// row moved past the version the caller read.
	ErrVersionConflict = errors.New("version conflict")

	// ErrStepClaimed means another StepRequest already owns the Step.
	ErrStepClaimed = errors.New("step already claimed")

	ErrDuplicate = errors.New("record already exists")
)

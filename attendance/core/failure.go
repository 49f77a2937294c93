package core

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeEmployeeNotFound Code = "EMPLOYEE_NOT_FOUND"
	CodeBranchNotFound   Code = "BRANCH_NOT_FOUND"
	CodeNoCheckIn        Code = "NO_CHECK_IN"
	CodeAlreadyCheckedIn Code = "ALREADY_CHECKED_IN"
	CodeOutsideGeofence  Code = "OUTSIDE_GEOFENCE"
	CodeLocationMissing  Code = "LOCATION_MISSING"
	CodeLowAccuracy      Code = "LOW_ACCURACY"
	CodeLocationOutdated Code = "LOCATION_OUTDATED"
	CodeInvalidRequest   Code = "INVALID_REQUEST"
	CodeServerError      Code = "SERVER_ERROR"
)

// Failure is a rejected attendance operation. Nothing was written when one is returned.
type Failure struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

func (f *Failure) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.cause
}

func Fail(code Code, details map[string]any) *Failure {
	return &Failure{
		Code:    code,
		Message: Message(code, DefaultLanguage),
		Details: details,
	}
}

// ServerError wraps an infrastructure error; the cause is kept for logging only.
func ServerError(err error) *Failure {
	f := Fail(CodeServerError, nil)
	f.cause = err
	return f
}

func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// failureForVerdict maps a rejected verdict onto its failure code.
func failureForVerdict(v Verdict) *Failure {
	switch v.Reason {
	case ReasonLocationMissing:
		return Fail(CodeLocationMissing, nil)
	case ReasonAccuracyTooLow:
		return Fail(CodeLowAccuracy, nil)
	case ReasonLocationStale:
		return Fail(CodeLocationOutdated, nil)
	}
	return Fail(CodeOutsideGeofence, map[string]any{
		"distanceMeters": v.DistanceMeters,
		"radiusMeters":   v.RadiusMeters,
	})
}

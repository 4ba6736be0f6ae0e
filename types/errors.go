package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Error wraps a core failure with a stable numeric code and the HTTP status
// a surface layer should use when exposing it. Codes in the 40001-49999
// range are the caller's fault; 50001-59999 are infrastructure failures the
// caller may retry. Never change an existing code, only append.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// Error returns the message contained inside the error.
func (e Error) Error() string {
	return e.Err.Error()
}

// Unwrap lets errors.Is walk into the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// Is matches two catalogue errors by code, so wrapped copies produced by
// Withf still compare equal to their catalogue entry.
func (e Error) Is(target error) bool {
	var t Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Withf returns a copy of the error with the formatted string appended.
func (e Error) Withf(format string, args ...any) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, fmt.Sprintf(format, args...)),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// With returns a copy of the error with the string appended.
func (e Error) With(s string) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, s),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// WithErr returns a copy of the error with err.Error() appended.
func (e Error) WithErr(err error) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, err.Error()),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

var (
	ErrBallotNotFound     = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("ballot not found")}
	ErrBallotInPetition   = Error{Code: 40002, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("ballot is in petition phase")}
	ErrBallotClosed       = Error{Code: 40003, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("ballot is closed")}
	ErrBallotNotRevealing = Error{Code: 40004, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("ballot is not in reveal phase")}
	ErrInvalidCommitment  = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid commitment or nullifier")}
	ErrInvalidReveal      = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid reveal")}
	ErrInvalidSignature   = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid signature")}
	ErrInvalidProof       = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid eligibility proof")}
	ErrInvalidAttestation = Error{Code: 40009, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid attestation")}
	ErrDoubleVote         = Error{Code: 40010, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("nullifier already used")}
	ErrTooLate            = Error{Code: 40011, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("attestation after deadline")}
	ErrNotAuthorized      = Error{Code: 40012, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("not authorized")}
	ErrNotEligible        = Error{Code: 40013, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("not eligible")}
	ErrPetitionNotMet     = Error{Code: 40014, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("petition prerequisites not met")}
	ErrValidation         = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("validation failed")}

	ErrStore              = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("store failure")}
	ErrIssuerUnavailable  = Error{Code: 50002, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("issuer unavailable")}
	ErrWitnessUnavailable = Error{Code: 50003, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("witness unavailable")}
	ErrRelayUnavailable   = Error{Code: 50004, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("relay unavailable")}
)

package unified

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ehr/ehr-gateway/internal/platform/fhir"
)

// FetchKind classifies an upstream failure. The facade treats every kind
// the same way (degrade to absent/empty); the classification exists so
// logs and metrics can tell an outage from a bad credential.
type FetchKind string

const (
	FetchNotFound     FetchKind = "not-found"
	FetchUnreachable  FetchKind = "unreachable"
	FetchUnauthorized FetchKind = "unauthorized"
	FetchMalformed    FetchKind = "malformed"
)

// FetchError is the error type vendor clients return for upstream
// failures. It never leaves the facade: callers of the facade see absent
// or empty results, not errors.
type FetchError struct {
	System VendorSystem
	Kind   FetchKind
	Op     string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.System, e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps an upstream error for a vendor operation,
// classifying it by probing the wire client's error types. Decode
// failures count as malformed; anything unclassified is unreachable.
func NewFetchError(system VendorSystem, op string, err error) *FetchError {
	kind := FetchUnreachable
	switch {
	case fhir.IsNotFound(err):
		kind = FetchNotFound
	case fhir.IsUnauthorized(err):
		kind = FetchUnauthorized
	case isDecodeError(err):
		kind = FetchMalformed
	}
	return &FetchError{System: system, Kind: kind, Op: op, Err: err}
}

func isDecodeError(err error) bool {
	var se *json.SyntaxError
	var ute *json.UnmarshalTypeError
	return errors.As(err, &se) || errors.As(err, &ute)
}

// Client is the contract every vendor adapter implements. Single reads
// return (nil, *FetchError) when the resource cannot be produced; list
// reads return (nil, *FetchError) rather than partial slices.
type Client interface {
	System() VendorSystem

	PatientByID(ctx context.Context, id string) (*PatientRecord, error)
	PatientByMRN(ctx context.Context, mrn string) (*PatientRecord, error)
	SearchPatientsByName(ctx context.Context, name string) ([]PatientRecord, error)

	PatientVitals(ctx context.Context, id string) ([]VitalSign, error)
	PatientConditions(ctx context.Context, id string) ([]string, error)
	PatientAllergies(ctx context.Context, id string) ([]string, error)
	PatientMedications(ctx context.Context, id string) ([]string, error)
	PatientEncounters(ctx context.Context, id string) ([]EncounterRecord, error)
}

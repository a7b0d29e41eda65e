package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Code is a machine-readable error code surfaced to callers of the engine.
type Code string

// Error codes. The HTTP layer maps these onto its error envelope.
const (
	CodeUnknown              Code = "UNKNOWN"
	CodeInsufficientQuantity Code = "INSUFFICIENT_QUANTITY"
	CodeCapacityExceeded     Code = "CAPACITY_EXCEEDED"
	CodeHasDependents        Code = "HAS_DEPENDENTS"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInvariantViolation   Code = "INVARIANT_VIOLATION"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeConflict             Code = "CONFLICT"
)

// Coder is implemented by every typed engine error.
type Coder interface {
	Code() Code
}

// CodeOf returns the code of the first typed error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeUnknown
}

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Code implements Coder.
func (ErrNotFound) Code() Code { return CodeNotFound }

// Is matches any ErrNotFound so callers can test with errors.Is(err, ErrNotFound{}).
func (e ErrNotFound) Is(target error) bool {
	t, ok := target.(ErrNotFound)
	if !ok {
		return false
	}
	return (t.Entity == "" || t.Entity == e.Entity) && (t.ID == "" || t.ID == e.ID)
}

// QuantityDiagnostics describes the state of an item when a quantity check fails.
type QuantityDiagnostics struct {
	Status             ItemStatus      `json:"status"`
	RegisteredAmount   decimal.Decimal `json:"registered_amount"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	StorageRecordCount int             `json:"storage_record_count"`
	TotalRemaining     decimal.Decimal `json:"total_remaining"`
	AllocatedElsewhere decimal.Decimal `json:"allocated_elsewhere"`
}

// InsufficientQuantityError reports a request for more than is available.
type InsufficientQuantityError struct {
	Entity      EntityType
	ID          string
	Requested   decimal.Decimal
	Available   decimal.Decimal
	Diagnostics *QuantityDiagnostics
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity on %s %s: requested %s, available %s",
		e.Entity, e.ID, e.Requested.String(), e.Available.String())
}

// Code implements Coder.
func (*InsufficientQuantityError) Code() Code { return CodeInsufficientQuantity }

// HasDependentsError reports a deletion blocked by referencing rows.
type HasDependentsError struct {
	Entity     EntityType
	ID         string
	Dependents map[EntityType]int
}

func (e *HasDependentsError) Error() string {
	kinds := make([]string, 0, len(e.Dependents))
	for kind, n := range e.Dependents {
		kinds = append(kinds, fmt.Sprintf("%d %s", n, kind))
	}
	sort.Strings(kinds)
	return fmt.Sprintf("%s %s has dependents: %s", e.Entity, e.ID, strings.Join(kinds, ", "))
}

// Code implements Coder.
func (*HasDependentsError) Code() Code { return CodeHasDependents }

// InvariantViolationError is returned when blocking rule violations are
// present at commit. It always indicates a bug in the engine.
type InvariantViolationError struct {
	Result Result
}

func (e InvariantViolationError) Error() string {
	if len(e.Result.Violations) == 0 {
		return "transaction blocked by invariant rules"
	}
	v := e.Result.Violations[0]
	return fmt.Sprintf("transaction blocked by invariant rules: %s: %s", v.Rule, v.Message)
}

// Code implements Coder.
func (InvariantViolationError) Code() Code { return CodeInvariantViolation }

// ValidationError reports malformed input such as a non-positive amount.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Code implements Coder.
func (ValidationError) Code() Code { return CodeInvalidArgument }

// ConflictError reports a uniqueness clash, e.g. a duplicate barcode.
type ConflictError struct {
	Entity EntityType
	Field  string
	Value  string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Entity, e.Field, e.Value)
}

// Code implements Coder.
func (ConflictError) Code() Code { return CodeConflict }

// CapacityExceeded is returned as a result, not an error: the caller decides
// whether to retry with the override flag.
type CapacityExceeded struct {
	ContainerID string          `json:"container_id"`
	Capacity    decimal.Decimal `json:"capacity"`
	Current     decimal.Decimal `json:"current"`
	Available   decimal.Decimal `json:"available"`
	Requested   decimal.Decimal `json:"requested"`
}

// Code returns the code callers use when surfacing the result.
func (CapacityExceeded) Code() Code { return CodeCapacityExceeded }

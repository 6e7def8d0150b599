package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

type errValidation struct {
	fields map[string]string
}

// ErrValidation creates an error reporting every offending field of a
// record, mapped to the reason it was rejected.
func ErrValidation(fields map[string]string) error {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return errValidation{fields: cp}
}

// ErrInvalidField is a shorthand for a validation error on one field.
func ErrInvalidField(field, reason string, args ...interface{}) error {
	if len(args) != 0 {
		reason = fmt.Sprintf(reason, args...)
	}
	return errValidation{fields: map[string]string{field: reason}}
}

// Error returns the fields and reasons, sorted by field name.
func (e errValidation) Error() string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.fields[k]))
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

// IsErrValidation returns true if the error reports invalid input
func IsErrValidation(e error) bool {
	var v errValidation
	return stderrors.As(e, &v)
}

// ValidationFields returns the field to reason map of a validation error,
// or nil if e is not one.
func ValidationFields(e error) map[string]string {
	var v errValidation
	if !stderrors.As(e, &v) {
		return nil
	}
	cp := make(map[string]string, len(v.fields))
	for k, r := range v.fields {
		cp[k] = r
	}
	return cp
}

type errOverlap struct {
	block    string
	existing string
}

// ErrOverlap creates an error indicating that a new or changed block
// intersects an existing block of the same site.
func ErrOverlap(block, existing string) error {
	return errOverlap{block: block, existing: existing}
}

// Error returns the error message
func (e errOverlap) Error() string {
	return fmt.Sprintf("address block %v overlaps with existing address block %v", e.block, e.existing)
}

// IsErrOverlap returns true if this error is a result of overlapping blocks
func IsErrOverlap(e error) bool {
	var v errOverlap
	return stderrors.As(e, &v)
}

type errExhausted struct {
	block string
}

// ErrExhausted creates an error indicating that a block has no free offset
// left. Only adding capacity can resolve it.
func ErrExhausted(block string) error {
	return errExhausted{block: block}
}

// Error returns the error message
func (e errExhausted) Error() string {
	return fmt.Sprintf("address block %v has no free address", e.block)
}

// IsErrExhausted returns true if this error is a result of an exhausted block
func IsErrExhausted(e error) bool {
	var v errExhausted
	return stderrors.As(e, &v)
}

type errConflict struct {
	constraint string
	cause      string
}

// ErrConflict creates an error indicating that a write lost a race on a
// uniqueness constraint. Retrying the whole operation may succeed.
func ErrConflict(constraint, cause string, args ...interface{}) error {
	if len(args) != 0 {
		cause = fmt.Sprintf(cause, args...)
	}
	return errConflict{constraint: constraint, cause: cause}
}

// Error returns the error message
func (e errConflict) Error() string {
	return fmt.Sprintf("conflict on %v: %v", e.constraint, e.cause)
}

// IsErrConflict returns true if this error is a result of a lost race
func IsErrConflict(e error) bool {
	var v errConflict
	return stderrors.As(e, &v)
}

type errPermissionDenied struct {
	caller    string
	operation string
}

// ErrPermissionDenied creates an error indicating that the authorization
// layer refused an operation. It is terminal for the request.
func ErrPermissionDenied(caller, operation string) error {
	return errPermissionDenied{caller: caller, operation: operation}
}

// Error returns the error message
func (e errPermissionDenied) Error() string {
	return fmt.Sprintf("caller %q is not allowed to %v", e.caller, e.operation)
}

// IsErrPermissionDenied returns true if authorization was refused
func IsErrPermissionDenied(e error) bool {
	var v errPermissionDenied
	return stderrors.As(e, &v)
}

type errNotFound struct {
	objectType string
	id         string
}

// ErrNotFound creates an error indicating that a record an operation
// depends on does not exist. Lookup style operations return an empty
// result instead.
func ErrNotFound(objectType, id string) error {
	return errNotFound{objectType: objectType, id: id}
}

// Error returns the error message
func (e errNotFound) Error() string {
	return fmt.Sprintf("%v %v not found", e.objectType, e.id)
}

// IsErrNotFound returns true if a required record is missing
func IsErrNotFound(e error) bool {
	var v errNotFound
	return stderrors.As(e, &v)
}

type errInternal struct {
	cause string
}

// ErrInternal creates an error indicating that stored state is
// inconsistent, for example a record whose kind has no payload. It is a
// defect, not a user error, and must not be retried.
func ErrInternal(cause string, args ...interface{}) error {
	if len(args) != 0 {
		return errInternal{cause: fmt.Sprintf(cause, args...)}
	}
	return errInternal{cause: cause}
}

// Error returns a formatted error message
func (e errInternal) Error() string {
	return fmt.Sprintf("internal consistency fault: %v", e.cause)
}

// IsErrInternal returns true if this error is a result of inconsistent
// internal state
func IsErrInternal(e error) bool {
	var v errInternal
	return stderrors.As(e, &v)
}

// IsRetryable reports whether retrying the operation may succeed without
// the caller changing its input.
func IsRetryable(e error) bool {
	return IsErrConflict(e)
}

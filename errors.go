package dyndest

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotComparable is returned when a destination key cannot be used to
	// group elements because its dynamic type is not comparable.
	ErrKeyNotComparable = errors.New("destination key is not comparable")

	// ErrSchemaViolation is returned when a marshaled element lacks an
	// attribute its destination schema requires.
	ErrSchemaViolation = errors.New("element violates destination schema")

	// ErrTableNotReady is returned when a provisioned table does not reach
	// the ACTIVE state.
	ErrTableNotReady = errors.New("table is not active")
)

// Stage names the resolution step that produced a [TypeMismatchError].
type Stage string

const (
	StageTable  Stage = "table"
	StageSchema Stage = "schema"
)

// MissingArgumentError is returned by [New] when a resolver is nil.
type MissingArgumentError struct {
	Argument string // "key", "table" or "schema"
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("missing %s resolver", e.Argument)
}

// TypeMismatchError is returned when a table or schema resolver produces a
// value that is not a valid table location or schema.
type TypeMismatchError struct {
	Stage  Stage          // resolution step
	Key    DestinationKey // key being resolved
	Got    any            // value returned by the resolver
	Reason string         // validation failure, empty when the type itself is wrong
}

func (e *TypeMismatchError) Error() string {
	want := "dyndest.TableLocation"
	if e.Stage == StageSchema {
		want = "dyndest.Schema"
	}

	if e.Reason != "" {
		return fmt.Sprintf("%s resolver returned invalid %s for key %v: %s", e.Stage, want, e.Key, e.Reason)
	}
	return fmt.Sprintf("%s resolver returned %T for key %v, want %s", e.Stage, e.Got, e.Key, want)
}

func newTypeMismatch(stage Stage, key DestinationKey, got any, reason string) *TypeMismatchError {
	return &TypeMismatchError{
		Stage:  stage,
		Key:    key,
		Got:    got,
		Reason: reason,
	}
}

package crs

import (
	"errors"
	"fmt"
)

// UnknownReferenceSystemError is returned when a CRS identifier is not in the
// registry, or when a geometry set carries no CRS tag at all.
type UnknownReferenceSystemError struct {
	Code string
}

func (e *UnknownReferenceSystemError) Error() string {
	if e.Code == "" {
		return "crs: geometry set has no reference system tag"
	}
	return fmt.Sprintf("crs: unknown reference system %q", e.Code)
}

// UnitMismatchError is returned when an operation needs a linear (planar)
// unit but the active reference system uses something else, typically
// geographic degrees.
type UnitMismatchError struct {
	Code string
	Unit Unit
	Want Unit
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("crs: %s uses unit %q, operation requires %q", e.Code, e.Unit, e.Want)
}

// MismatchError is returned when two inputs that must share a reference
// system do not.
type MismatchError struct {
	Left  string
	Right string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("crs: reference systems differ (%s vs %s)", e.Left, e.Right)
}

// IsUnknown reports whether err (or any error in its chain) is an
// UnknownReferenceSystemError.
func IsUnknown(err error) bool {
	var ue *UnknownReferenceSystemError
	return errors.As(err, &ue)
}

// IsUnitMismatch reports whether err (or any error in its chain) is a
// UnitMismatchError.
func IsUnitMismatch(err error) bool {
	var ue *UnitMismatchError
	return errors.As(err, &ue)
}

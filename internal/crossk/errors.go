package crossk

import (
	"errors"
	"fmt"
)

// EmptyPointSetError is returned when one of the two point sets has no
// points inside the window.
type EmptyPointSetError struct {
	Set string
}

func (e *EmptyPointSetError) Error() string {
	return fmt.Sprintf("crossk: point set %q has no points inside the window", e.Set)
}

// DegenerateWindowError is returned for windows without positive area.
type DegenerateWindowError struct {
	Width  float64
	Height float64
}

func (e *DegenerateWindowError) Error() string {
	return fmt.Sprintf("crossk: window %gx%g has no area", e.Width, e.Height)
}

// IsEmptyPointSet reports whether err wraps an EmptyPointSetError.
func IsEmptyPointSet(err error) bool {
	var ee *EmptyPointSetError
	return errors.As(err, &ee)
}

// IsDegenerateWindow reports whether err wraps a DegenerateWindowError.
func IsDegenerateWindow(err error) bool {
	var de *DegenerateWindowError
	return errors.As(err, &de)
}

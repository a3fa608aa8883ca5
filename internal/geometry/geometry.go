// Package geometry computes the source rectangle that reproduces "cover"
// scaling: the source fills the display box completely and the excess on one
// axis is cut off, centred.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned when a dimension is not a positive finite number.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Rect is a crop rectangle in source pixel space.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Aspect returns width/height.
func (r Rect) Aspect() float64 {
	return r.Width / r.Height
}

// Within reports whether r lies inside [0,width]x[0,height], allowing tol of
// floating point slack on every edge.
func (r Rect) Within(width, height, tol float64) bool {
	return r.X >= -tol && r.Y >= -tol &&
		r.X+r.Width <= width+tol &&
		r.Y+r.Height <= height+tol
}

// ComputeCoverCrop returns the region of a sourceWidth x sourceHeight raster
// that is visible when it is scaled to cover a displayWidth x displayHeight box.
func ComputeCoverCrop(sourceWidth, sourceHeight, displayWidth, displayHeight float64) (Rect, error) {
	if err := validate("source width", sourceWidth); err != nil {
		return Rect{}, err
	}
	if err := validate("source height", sourceHeight); err != nil {
		return Rect{}, err
	}
	if err := validate("display width", displayWidth); err != nil {
		return Rect{}, err
	}
	if err := validate("display height", displayHeight); err != nil {
		return Rect{}, err
	}

	sourceAspect := sourceWidth / sourceHeight
	displayAspect := displayWidth / displayHeight

	if sourceAspect > displayAspect {
		// source is relatively wider: keep full height, trim the sides
		cropHeight := sourceHeight
		cropWidth := cropHeight * displayAspect
		return Rect{
			X:      (sourceWidth - cropWidth) / 2,
			Y:      0,
			Width:  cropWidth,
			Height: cropHeight,
		}, nil
	}

	cropWidth := sourceWidth
	cropHeight := cropWidth / displayAspect
	return Rect{
		X:      0,
		Y:      (sourceHeight - cropHeight) / 2,
		Width:  cropWidth,
		Height: cropHeight,
	}, nil
}

func validate(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%w: %s must be positive and finite, got %v", ErrInvalidGeometry, name, v)
	}
	return nil
}

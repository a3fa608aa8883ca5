package geometry

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCoverCropProperties checks the crop invariants for arbitrary positive sizes.
// Property: aspect(crop) == dw/dh and crop lies inside the source.
func TestCoverCropProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	dim := gen.Float64Range(0.5, 10000)

	properties.Property("crop keeps the display aspect ratio", prop.ForAll(
		func(sw, sh, dw, dh float64) bool {
			r, err := ComputeCoverCrop(sw, sh, dw, dh)
			if err != nil {
				return false
			}
			want := dw / dh
			return math.Abs(r.Aspect()-want) <= 1e-6*want
		},
		dim, dim, dim, dim,
	))

	properties.Property("crop lies within the source bounds", prop.ForAll(
		func(sw, sh, dw, dh float64) bool {
			r, err := ComputeCoverCrop(sw, sh, dw, dh)
			if err != nil {
				return false
			}
			tol := 1e-9 * math.Max(sw, sh)
			return r.Within(sw, sh, tol)
		},
		dim, dim, dim, dim,
	))

	properties.Property("crop is centred on the trimmed axis", prop.ForAll(
		func(sw, sh, dw, dh float64) bool {
			r, err := ComputeCoverCrop(sw, sh, dw, dh)
			if err != nil {
				return false
			}
			tol := 1e-9 * math.Max(sw, sh)
			left, right := r.X, sw-(r.X+r.Width)
			top, bottom := r.Y, sh-(r.Y+r.Height)
			return math.Abs(left-right) <= tol && math.Abs(top-bottom) <= tol
		},
		dim, dim, dim, dim,
	))

	properties.TestingRun(t)
}

package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCoverCrop(t *testing.T) {
	tests := []struct {
		name string
		in   [4]float64
		want Rect
	}{
		{
			name: "landscape source into portrait box trims sides",
			in:   [4]float64{1920, 1080, 300, 400},
			want: Rect{X: 555, Y: 0, Width: 810, Height: 1080},
		},
		{
			name: "portrait source into landscape box trims top and bottom",
			in:   [4]float64{720, 1280, 400, 300},
			want: Rect{X: 0, Y: 370, Width: 720, Height: 540},
		},
		{
			name: "equal aspect keeps whole frame",
			in:   [4]float64{1280, 720, 640, 360},
			want: Rect{X: 0, Y: 0, Width: 1280, Height: 720},
		},
		{
			name: "square box from landscape",
			in:   [4]float64{1280, 720, 500, 500},
			want: Rect{X: 280, Y: 0, Width: 720, Height: 720},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeCoverCrop(tt.in[0], tt.in[1], tt.in[2], tt.in[3])
			require.NoError(t, err)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
			assert.InDelta(t, tt.want.Width, got.Width, 1e-9)
			assert.InDelta(t, tt.want.Height, got.Height, 1e-9)
		})
	}
}

func TestComputeCoverCropRejectsBadInput(t *testing.T) {
	bad := [][4]float64{
		{0, 1080, 300, 400},
		{1920, -1, 300, 400},
		{1920, 1080, 0, 400},
		{1920, 1080, 300, 0},
		{math.NaN(), 1080, 300, 400},
		{1920, math.Inf(1), 300, 400},
		{1920, 1080, math.Inf(-1), 400},
	}
	for _, in := range bad {
		_, err := ComputeCoverCrop(in[0], in[1], in[2], in[3])
		assert.ErrorIs(t, err, ErrInvalidGeometry, "input %v", in)
	}
}

func TestRectWithin(t *testing.T) {
	r := Rect{X: 10, Y: 0, Width: 80, Height: 50}
	assert.True(t, r.Within(100, 50, 0))
	assert.False(t, r.Within(85, 50, 0))
	assert.True(t, Rect{X: -1e-9, Width: 10, Height: 10}.Within(10, 10, 1e-6))
}

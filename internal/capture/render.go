package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/your-org/octocam/internal/geometry"
)

const cropTolerance = 1e-6

// renderCrop scales exactly the crop rectangle of frame onto a width x height
// raster and encodes it as JPEG. The crop must lie inside the frame.
func renderCrop(frame image.Image, crop geometry.Rect, width, height, quality int) ([]byte, error) {
	b := frame.Bounds()
	if crop.Width <= 0 || crop.Height <= 0 || !crop.Within(float64(b.Dx()), float64(b.Dy()), cropTolerance) {
		return nil, fmt.Errorf("%w: crop %+v outside %dx%d frame", geometry.ErrInvalidGeometry, crop, b.Dx(), b.Dy())
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: output %dx%d", geometry.ErrInvalidGeometry, width, height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	sx := float64(width) / crop.Width
	sy := float64(height) / crop.Height
	s2d := f64.Aff3{
		sx, 0, -(float64(b.Min.X) + crop.X) * sx,
		0, sy, -(float64(b.Min.Y) + crop.Y) * sy,
	}
	draw.BiLinear.Transform(dst, s2d, frame, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

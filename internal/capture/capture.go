// Package capture owns the live frame source of a camera session and turns a
// single frame into a still image framed exactly like the on-screen preview.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"time"
)

var (
	// ErrDeviceUnavailable means no usable source exists or access was denied.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrSourceNotReady means a capture was attempted before the source
	// produced a frame with nonzero dimensions.
	ErrSourceNotReady = errors.New("capture source not ready")
)

// Facing modes understood by devices that can choose between cameras.
const (
	FacingEnvironment = "environment"
	FacingUser        = "user"
)

// Constraints are the acquisition hints passed to a Device. Devices may
// ignore hints they cannot honour.
type Constraints struct {
	FacingMode string
	WidthHint  int
	HeightHint int
	Audio      bool
}

// Device acquires live frame sources.
type Device interface {
	Acquire(ctx context.Context, c Constraints) (Source, error)
}

// Source is a live frame source. Size reports zero until the first frame has
// been produced.
type Source interface {
	Size() (width, height int)
	Frame(ctx context.Context) (image.Image, error)
	Live() bool
	Stop()
}

// StillImage is an encoded capture. It is never modified after creation.
type StillImage struct {
	data        []byte
	contentType string
	width       int
	height      int
	capturedAt  time.Time
}

// NewStillImage wraps already encoded bytes. The slice is copied.
func NewStillImage(data []byte, contentType string, width, height int, capturedAt time.Time) *StillImage {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &StillImage{
		data:        buf,
		contentType: contentType,
		width:       width,
		height:      height,
		capturedAt:  capturedAt,
	}
}

// Bytes returns a copy of the encoded image. A nil StillImage has no bytes.
func (s *StillImage) Bytes() []byte {
	if s == nil {
		return nil
	}
	buf := make([]byte, len(s.data))
	copy(buf, s.data)
	return buf
}

// Len is the encoded size in bytes.
func (s *StillImage) Len() int { return len(s.data) }

// ContentType is the MIME type of the encoding, e.g. image/jpeg.
func (s *StillImage) ContentType() string { return s.contentType }

// Width is the pixel width of the still.
func (s *StillImage) Width() int { return s.width }

// Height is the pixel height of the still.
func (s *StillImage) Height() int { return s.height }

// CapturedAt is the UTC capture time.
func (s *StillImage) CapturedAt() time.Time { return s.capturedAt }

// Extension returns the file extension matching the encoding.
func (s *StillImage) Extension() string {
	if s == nil {
		return ".jpg"
	}
	switch s.contentType {
	case "image/png":
		return ".png"
	default:
		return ".jpg"
	}
}

// DataURI renders the image as a data: URI for previews and local references.
func (s *StillImage) DataURI() string {
	return "data:" + s.contentType + ";base64," + base64.StdEncoding.EncodeToString(s.data)
}

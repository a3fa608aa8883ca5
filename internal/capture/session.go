package capture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/octocam/internal/geometry"
)

const (
	defaultJPEGQuality      = 95
	defaultMaxDisplayPixels = 4096 * 4096
)

// Session holds at most one live source and the last still it produced.
// A Session is not safe for concurrent use; callers serialize access.
type Session struct {
	device      Device
	constraints Constraints
	quality     int
	maxPixels   int64
	logger      *zap.Logger
	now         func() time.Time

	source Source
	still  *StillImage
}

// Params configures a Session. MaxDisplayPixels bounds the width x height of
// a still; zero selects 4096x4096.
type Params struct {
	Device           Device
	Constraints      Constraints
	JPEGQuality      int
	MaxDisplayPixels int
	Logger           *zap.Logger
}

// NewSession constructs an idle Session.
func NewSession(p Params) *Session {
	quality := p.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	maxPixels := int64(p.MaxDisplayPixels)
	if maxPixels <= 0 {
		maxPixels = defaultMaxDisplayPixels
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := p.Constraints
	c.Audio = false
	return &Session{
		device:      p.Device,
		constraints: c,
		quality:     quality,
		maxPixels:   maxPixels,
		logger:      logger,
		now:         time.Now,
	}
}

// Start acquires a live source. Any source that is still live is released first.
func (s *Session) Start(ctx context.Context) error {
	s.Stop()

	if s.device == nil {
		return fmt.Errorf("%w: no device configured", ErrDeviceUnavailable)
	}
	src, err := s.device.Acquire(ctx, s.constraints)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrDeviceUnavailable, ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	s.source = src

	w, h := src.Size()
	s.logger.Info("capture source started",
		zap.String("facing_mode", s.constraints.FacingMode),
		zap.Int("width", w),
		zap.Int("height", h),
	)
	return nil
}

// Live reports whether a source is currently held and running.
func (s *Session) Live() bool {
	return s.source != nil && s.source.Live()
}

// CaptureStill renders the part of the current frame that is visible in a
// displayWidth x displayHeight box under cover scaling. The source is
// released whatever the outcome; a failed capture keeps the previous still.
func (s *Session) CaptureStill(ctx context.Context, displayWidth, displayHeight int) (*StillImage, error) {
	if s.source == nil {
		return nil, fmt.Errorf("%w: no live source", ErrSourceNotReady)
	}
	defer s.Stop()

	if !s.source.Live() {
		return nil, fmt.Errorf("%w: source stopped", ErrSourceNotReady)
	}
	if w, h := s.source.Size(); w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: no frame yet", ErrSourceNotReady)
	}

	if displayWidth > 0 && displayHeight > 0 &&
		int64(displayWidth) > s.maxPixels/int64(displayHeight) {
		return nil, fmt.Errorf("%w: display box %dx%d exceeds %d pixels",
			geometry.ErrInvalidGeometry, displayWidth, displayHeight, s.maxPixels)
	}

	frame, err := s.source.Frame(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read frame: %v", ErrSourceNotReady, err)
	}
	b := frame.Bounds()
	crop, err := geometry.ComputeCoverCrop(
		float64(b.Dx()), float64(b.Dy()),
		float64(displayWidth), float64(displayHeight),
	)
	if err != nil {
		return nil, err
	}

	data, err := renderCrop(frame, crop, displayWidth, displayHeight, s.quality)
	if err != nil {
		return nil, fmt.Errorf("render still: %w", err)
	}

	still := &StillImage{
		data:        data,
		contentType: "image/jpeg",
		width:       displayWidth,
		height:      displayHeight,
		capturedAt:  s.now().UTC(),
	}
	s.still = still

	s.logger.Info("still captured",
		zap.Int("source_width", b.Dx()),
		zap.Int("source_height", b.Dy()),
		zap.Float64("crop_x", crop.X),
		zap.Float64("crop_y", crop.Y),
		zap.Float64("crop_width", crop.Width),
		zap.Float64("crop_height", crop.Height),
		zap.Int("bytes", len(data)),
	)
	return still, nil
}

// Still returns the last captured image, or nil.
func (s *Session) Still() *StillImage {
	return s.still
}

// Discard drops the last captured image.
func (s *Session) Discard() {
	s.still = nil
}

// Stop releases the live source. It is a no-op when nothing is held.
func (s *Session) Stop() {
	if s.source == nil {
		return
	}
	s.source.Stop()
	s.source = nil
	s.logger.Debug("capture source released")
}

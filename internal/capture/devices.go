package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	_ "golang.org/x/image/webp"
)

const (
	maxFrameBytes  = 32 << 20
	maxFramePixels = 50_000_000
)

var (
	errSourceStopped = errors.New("source stopped")
	errFrameTooLarge = errors.New("frame too large")
)

// decodeFrame reads one encoded frame and checks the dimensions declared in
// its header before any pixel memory is allocated.
func decodeFrame(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxFrameBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxFrameBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", errFrameTooLarge, maxFrameBytes)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Height > 0 && int64(cfg.Width) > maxFramePixels/int64(cfg.Height) {
		return nil, fmt.Errorf("%w: %dx%d", errFrameTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// FileDevice serves a fixed image file as its only frame. It stands in for a
// camera on kiosk rigs and in local development.
type FileDevice struct {
	Path string
}

// Acquire decodes the file once and serves it as a still source.
func (d FileDevice) Acquire(ctx context.Context, _ Constraints) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("open frame file: %w", err)
	}
	defer f.Close()

	img, err := decodeFrame(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame file: %w", err)
	}
	return newStaticSource(img), nil
}

type staticSource struct {
	mu    sync.Mutex
	frame image.Image
	live  bool
}

func newStaticSource(frame image.Image) *staticSource {
	return &staticSource{frame: frame, live: true}
}

func (s *staticSource) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return 0, 0
	}
	b := s.frame.Bounds()
	return b.Dx(), b.Dy()
}

func (s *staticSource) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live {
		return nil, errSourceStopped
	}
	return s.frame, nil
}

func (s *staticSource) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *staticSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = false
}

// SnapshotDevice pulls frames from an IP camera snapshot endpoint: every GET
// returns one encoded image.
type SnapshotDevice struct {
	URL    string
	Client *http.Client
}

// Acquire fetches one snapshot to learn the native size.
func (d SnapshotDevice) Acquire(ctx context.Context, c Constraints) (Source, error) {
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	src := &snapshotSource{url: d.URL, client: client, live: true}
	// the first frame establishes the intrinsic size
	if _, err := src.Frame(ctx); err != nil {
		src.Stop()
		return nil, err
	}
	return src, nil
}

type snapshotSource struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	live   bool
	width  int
	height int
}

func (s *snapshotSource) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *snapshotSource) Frame(ctx context.Context) (image.Image, error) {
	if !s.Live() {
		return nil, errSourceStopped
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch snapshot: unexpected status %d", resp.StatusCode)
	}

	img, err := decodeFrame(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	b := img.Bounds()
	s.mu.Lock()
	s.width, s.height = b.Dx(), b.Dy()
	s.mu.Unlock()
	return img, nil
}

func (s *snapshotSource) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *snapshotSource) Stop() {
	s.mu.Lock()
	s.live = false
	s.width, s.height = 0, 0
	s.mu.Unlock()
	s.client.CloseIdleConnections()
}

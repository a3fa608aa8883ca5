// Package publish uploads a capture to a content-addressed store in two
// dependent phases: the image first, then the metadata record that points at
// the image's address.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/your-org/octocam/internal/metadata"
)

const tracerName = "github.com/your-org/octocam/internal/publish"

const (
	imageBaseName    = "nft-image"
	metadataFileName = "metadata.json"
)

var (
	// ErrImageUploadFailed marks a failure of the image phase; no metadata was stored.
	ErrImageUploadFailed    = errors.New("image upload failed")
	// ErrMetadataUploadFailed marks a failure of the metadata phase after the image was stored.
	ErrMetadataUploadFailed = errors.New("metadata upload failed")
	// ErrPublishInProgress rejects a publish while another is outstanding.
	ErrPublishInProgress    = errors.New("publish already in progress")
	// ErrNotRetryable is returned by RetryMetadata for anything but a metadata phase failure.
	ErrNotRetryable         = errors.New("failure cannot be retried")
)

var errEmptyImage = errors.New("image has no data")

// Store is the content-addressed backend.
type Store interface {
	Submit(ctx context.Context, name string, data []byte) (string, error)
	URI(address string) string
}

// Image is the encoded still to publish. An Image whose Bytes are empty,
// including a nil pointer behind the interface, fails the image phase.
type Image interface {
	Bytes() []byte
	Extension() string
}

// Phase names one of the two upload steps.
type Phase string

// Phases in upload order.
const (
	PhaseImage    Phase = "image"
	PhaseMetadata Phase = "metadata"
)

// PhaseError reports which phase of a publish failed. After a metadata phase
// failure the image is stored and ImageAddress names it.
type PhaseError struct {
	Phase Phase
	Err   error

	imageAddress string
	template     metadata.Record
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.sentinel(), e.Err)
}

func (e *PhaseError) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

// ImageAddress is the address of the stored image, empty for image phase failures.
func (e *PhaseError) ImageAddress() string {
	return e.imageAddress
}

func (e *PhaseError) sentinel() error {
	if e.Phase == PhaseMetadata {
		return ErrMetadataUploadFailed
	}
	return ErrImageUploadFailed
}

// Result is a complete publish: both addresses are always set.
type Result struct {
	ImageAddress    string
	ImageURI        string
	MetadataAddress string
	MetadataURI     string
	Record          metadata.Record
}

// Params configures a Publisher. ImageRetries is the number of extra image
// attempts; zero disables retry. The metadata phase is never retried
// automatically.
type Params struct {
	Store           Store
	Logger          *zap.Logger
	ImageTimeout    time.Duration
	MetadataTimeout time.Duration
	ImageRetries    int
	RetryBackoff    time.Duration
}

// Publisher runs one publish at a time.
type Publisher struct {
	store           Store
	logger          *zap.Logger
	tracer          trace.Tracer
	imageTimeout    time.Duration
	metadataTimeout time.Duration
	imageRetries    int
	retryBackoff    time.Duration

	busy atomic.Bool
}

// New constructs an idle Publisher.
func New(p Params) *Publisher {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retryBackoff := p.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = 500 * time.Millisecond
	}
	return &Publisher{
		store:           p.Store,
		logger:          logger,
		tracer:          otel.Tracer(tracerName),
		imageTimeout:    p.ImageTimeout,
		metadataTimeout: p.MetadataTimeout,
		imageRetries:    p.ImageRetries,
		retryBackoff:    retryBackoff,
	}
}

// InProgress reports whether a publish is outstanding.
func (p *Publisher) InProgress() bool {
	return p.busy.Load()
}

// Publish stores img, then stores template rewritten to reference the image.
// A concurrent call fails with ErrPublishInProgress.
func (p *Publisher) Publish(ctx context.Context, img Image, template metadata.Record) (*Result, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrPublishInProgress
	}
	defer p.busy.Store(false)

	ctx, span := p.tracer.Start(ctx, "publish")
	defer span.End()

	var data []byte
	if img != nil {
		data = img.Bytes()
	}
	if len(data) == 0 {
		err := &PhaseError{Phase: PhaseImage, Err: errEmptyImage}
		failSpan(span, err)
		return nil, err
	}

	imageAddress, err := p.submitImage(ctx, imageBaseName+img.Extension(), data)
	if err != nil {
		perr := &PhaseError{Phase: PhaseImage, Err: err}
		failSpan(span, perr)
		p.logger.Error("image upload failed", zap.Error(err))
		return nil, perr
	}

	res, err := p.submitMetadata(ctx, imageAddress, template)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("octocam.image_address", res.ImageAddress),
		attribute.String("octocam.metadata_address", res.MetadataAddress),
	)
	return res, nil
}

// RetryMetadata repeats only the metadata phase of a publish whose metadata
// phase failed, reusing the image address recorded in failed.
func (p *Publisher) RetryMetadata(ctx context.Context, failed *PhaseError) (*Result, error) {
	if failed == nil || failed.Phase != PhaseMetadata || failed.imageAddress == "" {
		return nil, ErrNotRetryable
	}
	if !p.busy.CompareAndSwap(false, true) {
		return nil, ErrPublishInProgress
	}
	defer p.busy.Store(false)

	ctx, span := p.tracer.Start(ctx, "publish.retry_metadata")
	defer span.End()

	res, err := p.submitMetadata(ctx, failed.imageAddress, failed.template)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	return res, nil
}

func (p *Publisher) submitImage(ctx context.Context, name string, data []byte) (string, error) {
	ctx, span := p.tracer.Start(ctx, "publish.image", trace.WithAttributes(
		attribute.Int("octocam.bytes", len(data)),
	))
	defer span.End()

	attempt := func() (string, error) {
		actx, cancel := withTimeout(ctx, p.imageTimeout)
		defer cancel()
		return p.store.Submit(actx, name, data)
	}

	var (
		address string
		err     error
	)
	if p.imageRetries <= 0 {
		address, err = attempt()
	} else {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = p.retryBackoff
		op := func() (string, error) {
			addr, err := attempt()
			if err != nil && ctx.Err() != nil {
				return "", backoff.Permanent(err)
			}
			return addr, err
		}
		address, err = backoff.Retry(ctx, op,
			backoff.WithBackOff(b),
			backoff.WithMaxTries(uint(p.imageRetries+1)),
			backoff.WithNotify(func(err error, next time.Duration) {
				p.logger.Warn("image upload attempt failed, retrying",
					zap.Error(err),
					zap.Duration("backoff", next),
				)
			}),
		)
	}
	if err != nil {
		failSpan(span, err)
		return "", err
	}

	p.logger.Info("image stored", zap.String("address", address), zap.Int("bytes", len(data)))
	return address, nil
}

func (p *Publisher) submitMetadata(ctx context.Context, imageAddress string, template metadata.Record) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "publish.metadata")
	defer span.End()

	fail := func(err error) (*Result, error) {
		perr := &PhaseError{
			Phase:        PhaseMetadata,
			Err:          err,
			imageAddress: imageAddress,
			template:     template,
		}
		failSpan(span, perr)
		p.logger.Error("metadata upload failed",
			zap.String("image_address", imageAddress),
			zap.Error(err),
		)
		return nil, perr
	}

	imageURI := p.store.URI(imageAddress)
	record := template.WithImage(imageURI)
	payload, err := record.Marshal()
	if err != nil {
		return fail(fmt.Errorf("marshal metadata: %w", err))
	}

	mctx, cancel := withTimeout(ctx, p.metadataTimeout)
	defer cancel()
	address, err := p.store.Submit(mctx, metadataFileName, payload)
	if err != nil {
		return fail(err)
	}

	p.logger.Info("metadata stored",
		zap.String("address", address),
		zap.String("image_address", imageAddress),
	)
	return &Result{
		ImageAddress:    imageAddress,
		ImageURI:        imageURI,
		MetadataAddress: address,
		MetadataURI:     p.store.URI(address),
		Record:          record,
	}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

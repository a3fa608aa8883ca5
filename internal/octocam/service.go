package octocam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/octocam/internal/capture"
	"github.com/your-org/octocam/internal/ledger"
	"github.com/your-org/octocam/internal/metadata"
	"github.com/your-org/octocam/internal/publish"
	"github.com/your-org/octocam/internal/screen"
)

// ErrNotPublished is returned by ledger commands that need a published capture.
var ErrNotPublished = errors.New("capture has not been published")

const eventPublished = "capture.published"

// EventPublisher emits domain events. The kafka producer satisfies it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, key, eventType string, v any) error
	Close(ctx context.Context) error
}

// Service is the command layer of one capture session: every user action is
// one method. Methods are safe for concurrent use; uploads run outside the
// session lock so that a second publish is rejected instead of queued.
type Service struct {
	mu sync.Mutex

	id         string
	machine    *screen.Machine
	session    *capture.Session
	assembler  *metadata.Assembler
	publisher  *publish.Publisher
	generation uint64

	lastResult  *publish.Result
	lastFailure *publish.PhaseError

	contract *ledger.Contract
	wallet   ledger.Wallet
	category string

	closer io.Closer
	events EventPublisher
	logger *zap.Logger
}

// Params wires a Service. Events and Wallet are optional.
type Params struct {
	Session         *capture.Session
	Publisher       *publish.Publisher
	Store           io.Closer
	Events          EventPublisher
	Wallet          ledger.Wallet
	ContractAddress string
	Category        string
	Logger          *zap.Logger
}

// NewService constructs a Service on the home screen. An invalid contract
// address is reported; an empty one leaves the contract unset.
func NewService(p Params) (*Service, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	category := p.Category
	if category == "" {
		category = ledger.DefaultCategory
	}
	s := &Service{
		id:        uuid.NewString(),
		machine:   screen.New(),
		session:   p.Session,
		assembler: metadata.NewAssembler(),
		publisher: p.Publisher,
		wallet:    p.Wallet,
		category:  category,
		closer:    p.Store,
		events:    p.Events,
		logger:    logger,
	}
	if p.ContractAddress != "" {
		c, err := ledger.NewContract(p.ContractAddress)
		if err != nil {
			return nil, err
		}
		s.contract = c
	}
	return s, nil
}

// StartCamera acquires a source and moves home -> camera.
func (s *Service) StartCamera(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.allow(screen.EventStart); err != nil {
		return err
	}
	if err := s.session.Start(ctx); err != nil {
		s.logger.Warn("camera start failed", zap.String("session_id", s.id), zap.Error(err))
		return err
	}
	return s.fire(screen.EventStart)
}

// Capture takes the still and moves camera -> form. A failed capture has
// already released the source, so the session returns to home.
func (s *Service) Capture(ctx context.Context, displayWidth, displayHeight int) (*capture.StillImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.machine.Require(screen.Camera); err != nil {
		return nil, err
	}
	still, err := s.session.CaptureStill(ctx, displayWidth, displayHeight)
	if err != nil {
		s.logger.Warn("capture failed", zap.String("session_id", s.id), zap.Error(err))
		if ferr := s.fire(screen.EventCancel); ferr != nil {
			return nil, errors.Join(err, ferr)
		}
		return nil, err
	}
	s.generation++
	s.lastResult, s.lastFailure = nil, nil
	return still, s.fire(screen.EventCapture)
}

// CancelCamera releases the source and moves camera -> home.
func (s *Service) CancelCamera() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.allow(screen.EventCancel); err != nil {
		return err
	}
	s.session.Stop()
	return s.fire(screen.EventCancel)
}

// Retake discards the still and the attributes, then restarts the camera.
// The screen moves form -> camera only once a new source is live; on failure
// it stays on the (now empty) form.
func (s *Service) Retake(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.allow(screen.EventRetake); err != nil {
		return err
	}
	s.session.Discard()
	s.assembler.Reset()
	s.generation++
	s.lastResult, s.lastFailure = nil, nil

	if err := s.session.Start(ctx); err != nil {
		s.logger.Warn("camera restart failed", zap.String("session_id", s.id), zap.Error(err))
		return err
	}
	return s.fire(screen.EventRetake)
}

// AddAttribute appends a trait to the pending asset.
func (s *Service) AddAttribute(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.machine.Require(screen.Form); err != nil {
		return err
	}
	return s.assembler.AddAttribute(name, value)
}

// RemoveAttribute drops the trait at index.
func (s *Service) RemoveAttribute(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.machine.Require(screen.Form); err != nil {
		return err
	}
	return s.assembler.RemoveAttribute(index)
}

// Image returns the captured still for download.
func (s *Service) Image() (*capture.StillImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.machine.Require(screen.Form); err != nil {
		return nil, err
	}
	still := s.session.Still()
	if still == nil {
		return nil, fmt.Errorf("%w: image", metadata.ErrMissingField)
	}
	return still, nil
}

// Metadata assembles the record for download. Its image field is the local
// data URI of the still.
func (s *Service) Metadata(title, description, price string) (metadata.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _, err := s.assembleLocked(title, description, price)
	return rec, err
}

// Publish uploads the still and then the record that references it.
func (s *Service) Publish(ctx context.Context, title, description, price string) (*publish.Result, error) {
	s.mu.Lock()
	rec, still, err := s.assembleLocked(title, description, price)
	gen := s.generation
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	res, err := s.publisher.Publish(ctx, still, rec)
	s.record(ctx, gen, res, err)
	return res, err
}

// RetryMetadata repeats the metadata phase of the last publish if that is
// where it failed.
func (s *Service) RetryMetadata(ctx context.Context) (*publish.Result, error) {
	s.mu.Lock()
	if err := s.machine.Require(screen.Form); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	failed := s.lastFailure
	gen := s.generation
	s.mu.Unlock()

	res, err := s.publisher.RetryMetadata(ctx, failed)
	if errors.Is(err, publish.ErrNotRetryable) || errors.Is(err, publish.ErrPublishInProgress) {
		return nil, err
	}
	s.record(ctx, gen, res, err)
	return res, err
}

func (s *Service) assembleLocked(title, description, price string) (metadata.Record, *capture.StillImage, error) {
	if err := s.machine.Require(screen.Form); err != nil {
		return metadata.Record{}, nil, err
	}
	still := s.session.Still()
	image := ""
	if still != nil {
		image = still.DataURI()
	}
	rec, err := s.assembler.Assemble(title, description, price, image)
	if err != nil {
		return metadata.Record{}, nil, err
	}
	return rec, still, nil
}

// record keeps the outcome of a publish for the capture it belongs to and
// announces successful publishes.
func (s *Service) record(ctx context.Context, gen uint64, res *publish.Result, err error) {
	s.mu.Lock()
	current := gen == s.generation
	if current {
		var perr *publish.PhaseError
		switch {
		case err == nil:
			s.lastResult, s.lastFailure = res, nil
		case errors.As(err, &perr):
			s.lastFailure = perr
		}
	}
	s.mu.Unlock()

	if err != nil {
		return
	}
	s.logger.Info("capture published",
		zap.String("session_id", s.id),
		zap.String("image_address", res.ImageAddress),
		zap.String("metadata_address", res.MetadataAddress),
		zap.Bool("current", current),
	)
	if s.events == nil {
		return
	}
	event := PublishedEvent{
		ID:              uuid.NewString(),
		SessionID:       s.id,
		ImageAddress:    res.ImageAddress,
		ImageURI:        res.ImageURI,
		MetadataAddress: res.MetadataAddress,
		MetadataURI:     res.MetadataURI,
		Name:            res.Record.Name,
		Price:           res.Record.Price,
		Attributes:      len(res.Record.Attributes),
		PublishedAt:     time.Now().UTC(),
	}
	if err := s.events.PublishEvent(ctx, res.MetadataAddress, eventPublished, event); err != nil {
		s.logger.Warn("publish event failed", zap.String("metadata_address", res.MetadataAddress), zap.Error(err))
	}
}

// View is a read-only picture of the session.
type View struct {
	SessionID       string               `json:"session_id"`
	State           screen.State         `json:"state"`
	CameraLive      bool                 `json:"camera_live"`
	HasImage        bool                 `json:"has_image"`
	ImageWidth      int                  `json:"image_width,omitempty"`
	ImageHeight     int                  `json:"image_height,omitempty"`
	Attributes      []metadata.Attribute `json:"attributes"`
	Publishing      bool                 `json:"publishing"`
	LastPublish     *PublishView         `json:"last_publish,omitempty"`
	PendingRetry    string               `json:"pending_retry_image_address,omitempty"`
	ContractAddress string               `json:"contract_address,omitempty"`
}

// PublishView is the outcome of the last successful publish.
type PublishView struct {
	ImageAddress    string `json:"image_address"`
	ImageURI        string `json:"image_uri"`
	MetadataAddress string `json:"metadata_address"`
	MetadataURI     string `json:"metadata_uri"`
}

func newPublishView(res *publish.Result) *PublishView {
	return &PublishView{
		ImageAddress:    res.ImageAddress,
		ImageURI:        res.ImageURI,
		MetadataAddress: res.MetadataAddress,
		MetadataURI:     res.MetadataURI,
	}
}

// Snapshot returns the current screen and form state.
func (s *Service) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		SessionID:  s.id,
		State:      s.machine.State(),
		CameraLive: s.session.Live(),
		Attributes: s.assembler.Attributes(),
		Publishing: s.publisher.InProgress(),
	}
	if still := s.session.Still(); still != nil {
		v.HasImage = true
		v.ImageWidth = still.Width()
		v.ImageHeight = still.Height()
	}
	if s.lastResult != nil {
		v.LastPublish = newPublishView(s.lastResult)
	}
	if s.lastFailure != nil {
		v.PendingRetry = s.lastFailure.ImageAddress()
	}
	if s.contract != nil {
		v.ContractAddress = s.contract.Address()
	}
	return v
}

// SetContract points ledger commands at a deployed marketplace.
func (s *Service) SetContract(address string) error {
	c, err := ledger.NewContract(address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.contract = c
	s.mu.Unlock()
	s.logger.Info("contract set", zap.String("contract_address", address))
	return nil
}

// Mint describes minting the last published capture to the wallet account.
func (s *Service) Mint(ctx context.Context) (ledger.Instruction, error) {
	s.mu.Lock()
	if err := s.machine.Require(screen.Form); err != nil {
		s.mu.Unlock()
		return ledger.Instruction{}, err
	}
	contract, res := s.contract, s.lastResult
	s.mu.Unlock()

	if contract == nil {
		return ledger.Instruction{}, ledger.ErrContractNotSet
	}
	if res == nil {
		return ledger.Instruction{}, ErrNotPublished
	}
	owner, err := ledger.PrimaryAccount(ctx, s.wallet)
	if err != nil {
		return ledger.Instruction{}, err
	}
	return contract.Mint(owner, res.MetadataURI, res.Record.Name, res.Record.Description, s.category)
}

// List prepares a call putting assetID up for sale at price.
func (s *Service) List(assetID, price string) (ledger.Instruction, error) {
	c, err := s.currentContract()
	if err != nil {
		return ledger.Instruction{}, err
	}
	return c.List(assetID, price)
}

// UpdatePrice prepares a call changing the price of a listing.
func (s *Service) UpdatePrice(assetID, price string) (ledger.Instruction, error) {
	c, err := s.currentContract()
	if err != nil {
		return ledger.Instruction{}, err
	}
	return c.UpdatePrice(assetID, price)
}

// CancelListing prepares a call removing a listing.
func (s *Service) CancelListing(assetID string) (ledger.Instruction, error) {
	c, err := s.currentContract()
	if err != nil {
		return ledger.Instruction{}, err
	}
	return c.CancelListing(assetID)
}

// Buy prepares a purchase of assetID.
func (s *Service) Buy(assetID string) (ledger.Instruction, error) {
	c, err := s.currentContract()
	if err != nil {
		return ledger.Instruction{}, err
	}
	return c.Buy(assetID)
}

// Withdraw prepares a withdrawal of seller earnings.
func (s *Service) Withdraw() (ledger.Instruction, error) {
	c, err := s.currentContract()
	if err != nil {
		return ledger.Instruction{}, err
	}
	return c.WithdrawEarnings(), nil
}

// Listing prepares a read of the listing for assetID.
func (s *Service) Listing(assetID string) (ledger.Instruction, error) {
	c, err := s.currentContract()
	if err != nil {
		return ledger.Instruction{}, err
	}
	return c.GetListing(assetID)
}

// AssetMetadata prepares a read of the metadata URI of assetID.
func (s *Service) AssetMetadata(assetID string) (ledger.Instruction, error) {
	c, err := s.currentContract()
	if err != nil {
		return ledger.Instruction{}, err
	}
	return c.GetAssetMetadata(assetID)
}

func (s *Service) currentContract() (*ledger.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contract == nil {
		return nil, ledger.ErrContractNotSet
	}
	return s.contract, nil
}

func (s *Service) allow(e screen.Event) error {
	if !s.machine.Can(e) {
		return fmt.Errorf("%w: %s from %s", screen.ErrInvalidTransition, e, s.machine.State())
	}
	return nil
}

func (s *Service) fire(e screen.Event) error {
	from := s.machine.State()
	to, err := s.machine.Fire(e)
	if err != nil {
		return err
	}
	s.logger.Info("screen changed",
		zap.String("session_id", s.id),
		zap.String("event", string(e)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

// Close releases the camera and the downstream clients.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.session.Stop()
	s.mu.Unlock()

	var errs []error
	if s.events != nil {
		if err := s.events.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close events: %w", err))
		}
	}
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/octocam/internal/capture"
	"github.com/your-org/octocam/internal/metadata"
	"github.com/your-org/octocam/pkg/storage"
)

type testImage []byte

func (i testImage) Bytes() []byte     { return []byte(i) }
func (i testImage) Extension() string { return ".jpg" }

// scriptedStore wraps the memory store and fails the next n submissions of a
// given file name.
type scriptedStore struct {
	*storage.Memory

	mu    sync.Mutex
	calls []string
	fail  map[string]int
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{Memory: storage.NewMemory(), fail: map[string]int{}}
}

func (s *scriptedStore) failNext(name string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[name] = n
}

func (s *scriptedStore) Submit(ctx context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	if s.fail[name] > 0 {
		s.fail[name]--
		s.mu.Unlock()
		return "", errors.New("store: 502 bad gateway")
	}
	s.mu.Unlock()
	return s.Memory.Submit(ctx, name, data)
}

func (s *scriptedStore) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == name {
			n++
		}
	}
	return n
}

func testTemplate() metadata.Record {
	return metadata.Record{
		Name:        "Harbor",
		Description: "Boats at dawn",
		Price:       "0.05",
		Image:       "ipfs://stale-address",
		Attributes:  []metadata.Attribute{{Name: "lens", Value: "wide"}},
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newPublisher(store Store) *Publisher {
	return New(Params{Store: store, Logger: zap.NewNop()})
}

func TestPublishStoresImageThenMetadata(t *testing.T) {
	store := newScriptedStore()
	p := newPublisher(store)

	res, err := p.Publish(t.Context(), testImage("jpeg-bytes"), testTemplate())
	require.NoError(t, err)
	require.NotEmpty(t, res.ImageAddress)
	require.NotEmpty(t, res.MetadataAddress)
	assert.Equal(t, []string{"nft-image.jpg", "metadata.json"}, store.calls)

	img, ok := store.Get(res.ImageAddress)
	require.True(t, ok)
	assert.Equal(t, []byte("jpeg-bytes"), img)

	raw, ok := store.Get(res.MetadataAddress)
	require.True(t, ok)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, store.URI(res.ImageAddress), doc["image"])
	assert.Equal(t, res.ImageURI, doc["image"])
	assert.Equal(t, "Harbor", doc["name"])
	assert.Equal(t, store.URI(res.MetadataAddress), res.MetadataURI)
	assert.False(t, p.InProgress())
}

func TestPublishImageFailureSkipsMetadata(t *testing.T) {
	store := newScriptedStore()
	store.failNext("nft-image.jpg", 1)
	p := newPublisher(store)

	res, err := p.Publish(t.Context(), testImage("jpeg-bytes"), testTemplate())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrImageUploadFailed)
	assert.NotErrorIs(t, err, ErrMetadataUploadFailed)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseImage, perr.Phase)
	assert.Empty(t, perr.ImageAddress())

	assert.Equal(t, 0, store.callCount("metadata.json"))
	assert.Equal(t, 0, store.Len())
}

func TestPublishMetadataFailureKeepsImage(t *testing.T) {
	store := newScriptedStore()
	store.failNext("metadata.json", 1)
	p := newPublisher(store)

	res, err := p.Publish(t.Context(), testImage("jpeg-bytes"), testTemplate())
	require.ErrorIs(t, err, ErrMetadataUploadFailed)
	assert.Nil(t, res)

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseMetadata, perr.Phase)
	_, stored := store.Get(perr.ImageAddress())
	assert.True(t, stored, "image stays stored")

	retried, err := p.RetryMetadata(t.Context(), perr)
	require.NoError(t, err)
	assert.Equal(t, perr.ImageAddress(), retried.ImageAddress)
	assert.Equal(t, 1, store.callCount("nft-image.jpg"), "retry does not re-upload the image")

	raw, _ := store.Get(retried.MetadataAddress)
	var rec metadata.Record
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, store.URI(perr.ImageAddress()), rec.Image)
}

func TestRetryMetadataRejectsImageFailures(t *testing.T) {
	p := newPublisher(newScriptedStore())
	_, err := p.RetryMetadata(t.Context(), &PhaseError{Phase: PhaseImage, Err: errors.New("x")})
	assert.ErrorIs(t, err, ErrNotRetryable)

	_, err = p.RetryMetadata(t.Context(), &PhaseError{Phase: PhaseMetadata, Err: errors.New("x")})
	assert.ErrorIs(t, err, ErrNotRetryable, "a hand-built error carries no image address")

	_, err = p.RetryMetadata(t.Context(), nil)
	assert.ErrorIs(t, err, ErrNotRetryable)
}

type blockingStore struct {
	*storage.Memory
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Submit(ctx context.Context, name string, data []byte) (string, error) {
	if name == "nft-image.jpg" {
		b.entered <- struct{}{}
		<-b.release
	}
	return b.Memory.Submit(ctx, name, data)
}

func TestPublishRejectsConcurrentCall(t *testing.T) {
	store := &blockingStore{
		Memory:  storage.NewMemory(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	p := newPublisher(store)

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.Publish(context.Background(), testImage("first"), testTemplate())
		done <- outcome{res, err}
	}()

	<-store.entered
	assert.True(t, p.InProgress())

	_, err := p.Publish(t.Context(), testImage("second"), testTemplate())
	require.ErrorIs(t, err, ErrPublishInProgress)

	close(store.release)
	first := <-done
	require.NoError(t, first.err)
	img, ok := store.Get(first.res.ImageAddress)
	require.True(t, ok)
	assert.Equal(t, []byte("first"), img)
	assert.Equal(t, 2, store.Len(), "second call stored nothing")
}

func TestPublishRetriesImagePhase(t *testing.T) {
	store := newScriptedStore()
	store.failNext("nft-image.jpg", 2)
	p := New(Params{Store: store, Logger: zap.NewNop(), ImageRetries: 2, RetryBackoff: time.Millisecond})

	res, err := p.Publish(t.Context(), testImage("jpeg-bytes"), testTemplate())
	require.NoError(t, err)
	assert.NotEmpty(t, res.MetadataAddress)
	assert.Equal(t, 3, store.callCount("nft-image.jpg"))
}

func TestPublishImageRetriesExhausted(t *testing.T) {
	store := newScriptedStore()
	store.failNext("nft-image.jpg", 5)
	p := New(Params{Store: store, Logger: zap.NewNop(), ImageRetries: 1, RetryBackoff: time.Millisecond})

	_, err := p.Publish(t.Context(), testImage("jpeg-bytes"), testTemplate())
	require.ErrorIs(t, err, ErrImageUploadFailed)
	assert.Equal(t, 2, store.callCount("nft-image.jpg"))
	assert.Equal(t, 0, store.callCount("metadata.json"))
}

type hangingStore struct{ *storage.Memory }

func (h hangingStore) Submit(ctx context.Context, name string, data []byte) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestPublishImageTimeout(t *testing.T) {
	p := New(Params{Store: hangingStore{storage.NewMemory()}, Logger: zap.NewNop(), ImageTimeout: 20 * time.Millisecond})

	_, err := p.Publish(t.Context(), testImage("x"), testTemplate())
	require.ErrorIs(t, err, ErrImageUploadFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublishNilImage(t *testing.T) {
	store := newScriptedStore()
	_, err := newPublisher(store).Publish(t.Context(), nil, testTemplate())
	require.ErrorIs(t, err, ErrImageUploadFailed)
	assert.Empty(t, store.calls)
}

func TestPublishTypedNilStill(t *testing.T) {
	store := newScriptedStore()
	var still *capture.StillImage
	_, err := newPublisher(store).Publish(t.Context(), still, testTemplate())
	require.ErrorIs(t, err, ErrImageUploadFailed)
	assert.ErrorIs(t, err, errEmptyImage)
	assert.Empty(t, store.calls)
}

func TestPublishEmptyImage(t *testing.T) {
	store := newScriptedStore()
	p := newPublisher(store)
	_, err := p.Publish(t.Context(), testImage{}, testTemplate())
	require.ErrorIs(t, err, ErrImageUploadFailed)
	assert.Empty(t, store.calls)

	_, err = p.Publish(t.Context(), capture.NewStillImage(nil, "image/jpeg", 1, 1, time.Now()), testTemplate())
	require.ErrorIs(t, err, ErrImageUploadFailed)
	assert.Empty(t, store.calls)
}

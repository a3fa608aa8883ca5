package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenProviders(t *testing.T) {
	s, err := Open(Config{Provider: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(Config{Provider: "ipfs", Endpoint: "http://127.0.0.1:5001"})
	require.NoError(t, err)
	assert.Equal(t, "ipfs://cid", s.URI("cid"))

	s, err = Open(Config{Provider: "minio", Endpoint: "localhost:9000", Bucket: "captures"})
	require.NoError(t, err)
	assert.Equal(t, "s3://captures/sha256/abc", s.URI("abc"))

	_, err = Open(Config{Provider: "ftp"})
	assert.ErrorContains(t, err, "unsupported")

	_, err = Open(Config{Provider: "minio", Endpoint: "localhost:9000"})
	assert.Error(t, err, "bucket is required")
}

func TestMemoryIsContentAddressed(t *testing.T) {
	m := NewMemory()
	data := []byte("hello")
	sum := sha256.Sum256(data)

	addr, err := m.Submit(t.Context(), "a.txt", data)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:]), addr)

	again, err := m.Submit(t.Context(), "b.txt", data)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
	assert.Equal(t, 1, m.Len())

	got, ok := m.Get(addr)
	require.True(t, ok)
	assert.Equal(t, data, got)

	data[0] = 'j'
	got, _ = m.Get(addr)
	assert.Equal(t, []byte("hello"), got, "stored bytes are copied")
}

func TestMemoryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().Submit(ctx, "x", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

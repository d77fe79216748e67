package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/fortytwo/review-notifier/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStorage(t *testing.T, s StorageInterface) {
	ctx := context.Background()

	_, err := s.Retrieve(ctx, "reminders")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Store(ctx, "reminders", []byte(`[]`)))
	require.NoError(t, s.Store(ctx, "reminders", []byte(`[{"sourceId":"a"}]`)))
	require.NoError(t, s.Store(ctx, "processedEmails", []byte(`["a"]`)))

	data, err := s.Retrieve(ctx, "reminders")
	require.NoError(t, err)
	assert.Equal(t, `[{"sourceId":"a"}]`, string(data))

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"processedEmails", "reminders"}, keys)

	keys, err = s.List(ctx, "rem")
	require.NoError(t, err)
	assert.Equal(t, []string{"reminders"}, keys)

	require.NoError(t, s.Delete(ctx, "reminders"))
	require.NoError(t, s.Delete(ctx, "reminders"))

	_, err = s.Retrieve(ctx, "reminders")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage())
}

func TestFileStorage(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	exerciseStorage(t, s)
}

func TestFileStorage_EscapesKeys(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, "nested/key", []byte("x")))

	data, err := s.Retrieve(ctx, "nested/key")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	keys, err := s.List(ctx, "nested")
	require.NoError(t, err)
	assert.Equal(t, []string{"nested/key"}, keys)
}

func TestMemoryStorage_CopiesData(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, s.Store(ctx, "k", buf))
	buf[0] = 'z'

	data, err := s.Retrieve(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestNew_FileAndMemory(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, &config.Config{StorageBackend: config.BackendFile, DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStorage{}, s)

	s, err = New(ctx, &config.Config{StorageBackend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStorage{}, s)

	_, err = New(ctx, &config.Config{StorageBackend: "floppy"})
	assert.Error(t, err)
}

// closingStorage records whether Close was called
type closingStorage struct {
	*MemoryStorage
	closed bool
	err    error
}

func (c *closingStorage) Close() error {
	c.closed = true
	return c.err
}

func TestClose(t *testing.T) {
	assert.NoError(t, Close(NewMemoryStorage()))

	backend := &closingStorage{MemoryStorage: NewMemoryStorage()}
	require.NoError(t, Close(backend))
	assert.True(t, backend.closed)

	failing := &closingStorage{MemoryStorage: NewMemoryStorage(), err: errors.New("already closed")}
	assert.EqualError(t, Close(failing), "already closed")
}

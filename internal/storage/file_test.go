package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawMatchKey(t *testing.T) {
	assert.Equal(t, "TFT/raw_matches/SG2_123.json", RawMatchKey("TFT", "SG2_123"))
	assert.Equal(t, "TFT/raw_matches/SG2_123.json", RawMatchKey("TFT/", "SG2_123"))
	assert.Equal(t, "a/b/raw_matches/", RawMatchPrefix("a/b"))
	assert.Equal(t, "SG2_123", MatchIDFromKey("TFT/raw_matches/SG2_123.json"))
}

func TestFileStore_PutExistsGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	key := RawMatchKey("TFT", "SG2_1")
	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	body := []byte(`{"metadata":{"match_id":"SG2_1"}}`)
	require.NoError(t, s.Put(ctx, key, body, ContentTypeJSON))

	exists, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestFileStore_PutNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	key := RawMatchKey("TFT", "SG2_1")
	require.NoError(t, s.Put(ctx, key, []byte(`{"v":1}`), ContentTypeJSON))

	err = s.Put(ctx, key, []byte(`{"v":2}`), ContentTypeJSON)
	assert.True(t, errors.Is(err, ErrObjectExists))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(got))
}

func TestFileStore_ConcurrentPutSingleWinner(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	key := RawMatchKey("TFT", "SG2_race")
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		conflict int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Put(ctx, key, []byte(`{}`), ContentTypeJSON)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrObjectExists):
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 7, conflict)
}

func TestFileStore_ListPrefix(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"SG2_b", "SG2_a"} {
		require.NoError(t, s.Put(ctx, RawMatchKey("TFT", id), []byte(`{}`), ContentTypeJSON))
	}
	require.NoError(t, s.Put(ctx, RawMatchKey("OTHER", "SG2_c"), []byte(`{}`), ContentTypeJSON))

	keys, err := s.List(ctx, RawMatchPrefix("TFT"))
	require.NoError(t, err)
	assert.Equal(t, []string{"TFT/raw_matches/SG2_a.json", "TFT/raw_matches/SG2_b.json"}, keys)

	keys, err = s.List(ctx, RawMatchPrefix("EMPTY"))
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFileStore_GetMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "TFT/raw_matches/nope.json")
	assert.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "/abs.json", "../escape.json", ".tmp/x.json"} {
		err := s.Put(context.Background(), key, []byte(`{}`), ContentTypeJSON)
		assert.Error(t, err, key)
	}
}

func TestFileProvider_Open(t *testing.T) {
	p := FileProvider{Root: t.TempDir()}

	_, err := p.Open("")
	assert.Error(t, err)
	_, err = p.Open("../x")
	assert.Error(t, err)

	store, err := p.Open("tft-bucket")
	require.NoError(t, err)
	assert.NotNil(t, store)
}

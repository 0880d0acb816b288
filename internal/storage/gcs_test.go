package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const testBucket = "tft-raw"

// fakeGCS answers the handful of JSON API calls GCSStore makes
type fakeGCS struct {
	mu       sync.Mutex
	objects  map[string]bool
	conflict bool
	uploads  []url.Values
	bodies   []string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	objectsPath := "/storage/v1/b/" + testBucket + "/o"
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/upload"+objectsPath:
		body, _ := io.ReadAll(r.Body)
		f.uploads = append(f.uploads, r.URL.Query())
		f.bodies = append(f.bodies, string(body))
		if f.conflict {
			writeGCSError(w, http.StatusPreconditionFailed, "conditionNotMet")
			return
		}
		writeGCSJSON(w, map[string]any{"bucket": testBucket, "name": r.URL.Query().Get("name"), "generation": "1"})

	case r.Method == http.MethodGet && r.URL.Path == objectsPath:
		prefix := r.URL.Query().Get("prefix")
		items := []map[string]any{}
		for name := range f.objects {
			if strings.HasPrefix(name, prefix) {
				items = append(items, map[string]any{"bucket": testBucket, "name": name})
			}
		}
		writeGCSJSON(w, map[string]any{"kind": "storage#objects", "items": items})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, objectsPath+"/"):
		name := strings.TrimPrefix(r.URL.Path, objectsPath+"/")
		if name == "forbidden.json" {
			writeGCSError(w, http.StatusForbidden, "forbidden")
			return
		}
		if !f.objects[name] {
			writeGCSError(w, http.StatusNotFound, "notFound")
			return
		}
		writeGCSJSON(w, map[string]any{"bucket": testBucket, "name": name, "generation": "1"})

	default:
		http.NotFound(w, r)
	}
}

func writeGCSJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeGCSError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": reason,
			"errors":  []map[string]any{{"reason": reason, "message": reason}},
		},
	})
}

func newTestGCSStore(t *testing.T, fake *fakeGCS) *GCSStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store, err := GCSProvider{Client: client}.Open(testBucket)
	require.NoError(t, err)
	return store.(*GCSStore)
}

func TestGCSStore_Exists(t *testing.T) {
	fake := &fakeGCS{objects: map[string]bool{"TFT/raw_matches/SG2_1.json": true}}
	store := newTestGCSStore(t, fake)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "TFT/raw_matches/SG2_1.json")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "TFT/raw_matches/SG2_2.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGCSStore_ExistsErrorIsNotAbsence(t *testing.T) {
	store := newTestGCSStore(t, &fakeGCS{objects: map[string]bool{}})

	ok, err := store.Exists(context.Background(), "forbidden.json")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestGCSStore_PutIsCreateOnly(t *testing.T) {
	fake := &fakeGCS{objects: map[string]bool{}}
	store := newTestGCSStore(t, fake)

	body := `{"metadata":{"match_id":"SG2_1"}}`
	require.NoError(t, store.Put(context.Background(), "TFT/raw_matches/SG2_1.json", []byte(body), ContentTypeJSON))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.uploads, 1)
	assert.Equal(t, "0", fake.uploads[0].Get("ifGenerationMatch"))
	assert.Contains(t, fake.bodies[0], body)
	assert.Contains(t, fake.bodies[0], ContentTypeJSON)
}

func TestGCSStore_PutConflictIsErrObjectExists(t *testing.T) {
	fake := &fakeGCS{objects: map[string]bool{}, conflict: true}
	store := newTestGCSStore(t, fake)

	err := store.Put(context.Background(), "TFT/raw_matches/SG2_1.json", []byte(`{}`), ContentTypeJSON)
	assert.True(t, errors.Is(err, ErrObjectExists), "got %v", err)
}

func TestGCSStore_ListSkipsPlaceholder(t *testing.T) {
	fake := &fakeGCS{objects: map[string]bool{
		"TFT/raw_matches/":           true,
		"TFT/raw_matches/SG2_1.json": true,
		"TFT/raw_matches/SG2_2.json": true,
		"SET10/raw_matches/x.json":   true,
	}}
	store := newTestGCSStore(t, fake)

	keys, err := store.List(context.Background(), RawMatchPrefix("TFT"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"TFT/raw_matches/SG2_1.json", "TFT/raw_matches/SG2_2.json"}, keys)
}

package qdrant

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studymate/internal/vectorstore"
)

// fakeQdrant keeps collections in memory and answers searches with real
// Euclid distances. failUpsert makes the n-th points upsert (1-based) fail.
type fakeQdrant struct {
	mu          sync.Mutex
	requests    []string
	collections map[string]map[int][]float32
	size        int
	distance    string
	upserts     int
	failUpsert  int
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: map[string]map[int][]float32{}}
}

func (f *fakeQdrant) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.collections[r.PathValue("name")]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.collections, r.PathValue("name"))
		_, _ = w.Write([]byte(`{"result":true}`))
	})
	mux.HandleFunc("PUT /collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.size, f.distance = body.Vectors.Size, body.Vectors.Distance
		f.collections[r.PathValue("name")] = map[int][]float32{}
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"result":true}`))
	})
	mux.HandleFunc("PUT /collections/{name}/points", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body struct {
			Points []struct {
				ID     int       `json:"id"`
				Vector []float32 `json:"vector"`
			} `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		defer f.mu.Unlock()
		f.upserts++
		if f.upserts == f.failUpsert {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		points, ok := f.collections[r.PathValue("name")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		for _, p := range body.Points {
			points[p.ID] = p.Vector
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	})
	mux.HandleFunc("POST /collections/{name}/points/search", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		type hit struct {
			ID    int     `json:"id"`
			Score float64 `json:"score"`
		}
		f.mu.Lock()
		points, ok := f.collections[r.PathValue("name")]
		hits := make([]hit, 0, len(points))
		for id, v := range points {
			var sum float64
			for i := range v {
				d := float64(v[i] - body.Vector[i])
				sum += d * d
			}
			hits = append(hits, hit{ID: id, Score: math.Sqrt(sum)})
		}
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].Score != hits[j].Score {
				return hits[i].Score < hits[j].Score
			}
			return hits[i].ID < hits[j].ID
		})
		if len(hits) > body.Limit {
			hits = hits[:body.Limit]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": hits})
	})
	return mux
}

func (f *fakeQdrant) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
}

func (f *fakeQdrant) collectionNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.collections))
	for n := range f.collections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func TestStorage_BuildAndSearch(t *testing.T) {
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "notes"})
	ctx := context.Background()

	hits, err := s.Search(ctx, []float32{1, 2}, 2)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.Build(ctx, [][]float32{{1, 2}, {3, 4}}))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, fake.size)
	assert.Equal(t, "Euclid", fake.distance)
	assert.Equal(t, []string{
		"DELETE /collections/notes_0",
		"PUT /collections/notes_0",
		"PUT /collections/notes_0/points",
	}, fake.requests)

	hits, err = s.Search(ctx, []float32{3, 3}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].Position)
	assert.InDelta(t, 1.0, hits[0].Distance, 1e-6)
	assert.Equal(t, 0, hits[1].Position)
	assert.InDelta(t, 5.0, hits[1].Distance, 1e-6)

	_, err = s.Search(ctx, []float32{1}, 2)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestStorage_RebuildAlternatesCollections(t *testing.T) {
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "notes"})
	ctx := context.Background()

	require.NoError(t, s.Build(ctx, [][]float32{{0, 0}}))
	assert.Equal(t, []string{"notes_0"}, fake.collectionNames())

	require.NoError(t, s.Build(ctx, [][]float32{{5, 5}, {6, 6}}))
	assert.Equal(t, []string{"notes_1"}, fake.collectionNames())
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Build(ctx, [][]float32{{7, 7}}))
	assert.Equal(t, []string{"notes_0"}, fake.collectionNames())
	assert.Equal(t, 1, s.Len())
}

func TestStorage_FailedRebuildKeepsPreviousIndex(t *testing.T) {
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "notes"})
	ctx := context.Background()

	old := make([][]float32, 300)
	for i := range old {
		old[i] = []float32{float32(i), 0}
	}
	require.NoError(t, s.Build(ctx, old))

	// old build used two upsert batches; fail the second batch of the rebuild
	fake.failUpsert = fake.upserts + 2
	fresh := make([][]float32, 300)
	for i := range fresh {
		fresh[i] = []float32{float32(1000 + i), 0}
	}
	require.Error(t, s.Build(ctx, fresh))

	assert.Equal(t, 300, s.Len())
	assert.Equal(t, []string{"notes_0"}, fake.collectionNames(), "partial collection must be removed")

	hits, err := s.Search(ctx, []float32{1000, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 299, hits[0].Position)
	assert.InDelta(t, 701.0*701.0, hits[0].Distance, 1e-3)
}

func TestStorage_BuildFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "notes"})
	err := s.Build(context.Background(), [][]float32{{1}})
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

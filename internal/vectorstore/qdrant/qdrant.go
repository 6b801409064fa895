package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"studymate/internal/vectorstore"
)

const upsertBatch = 256

// Storage is a minimal REST client to Qdrant.
// Builds alternate between two collections named <collection>_0 and
// <collection>_1: a new index is written into the inactive one and only
// becomes searchable once every point is stored. Point ids are row positions
// and the distance is Euclid.
type Storage struct {
	url       string
	apiKey    string
	base      string
	active    string
	dimension int
	count     int
	client    *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// NewStorage returns a client for the Qdrant instance at cfg.URL.
func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		base:   cfg.Collection,
		client: &http.Client{Timeout: timeout},
	}
}

// Build writes vectors into the standby collection and switches searches to
// it on success. A failed build leaves the previous collection searchable.
func (s *Storage) Build(ctx context.Context, vectors [][]float32) error {
	dim, err := vectorstore.CheckMatrix(vectors)
	if err != nil {
		return fmt.Errorf("qdrant build: %w", err)
	}
	staging := s.standby()
	if err := s.drop(ctx, staging); err != nil {
		return err
	}
	if err := s.fill(ctx, staging, dim, vectors); err != nil {
		if derr := s.drop(context.WithoutCancel(ctx), staging); derr != nil {
			err = errors.Join(err, derr)
		}
		return err
	}
	previous := s.active
	s.active = staging
	s.dimension = dim
	s.count = len(vectors)
	if previous != "" {
		// the new index is live; a stale standby is dropped again on the next build
		_ = s.drop(ctx, previous)
	}
	return nil
}

func (s *Storage) fill(ctx context.Context, collection string, dim int, vectors [][]float32) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Euclid",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(collection, ""), body, nil); err != nil {
		return err
	}
	for start := 0; start < len(vectors); start += upsertBatch {
		end := min(start+upsertBatch, len(vectors))
		points := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, map[string]any{
				"id":      i,
				"vector":  vectors[i],
				"payload": map[string]any{"position": i},
			})
		}
		if err := s.do(ctx, http.MethodPut, s.collectionURL(collection, "/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) standby() string {
	if s.active == s.base+"_0" {
		return s.base + "_1"
	}
	return s.base + "_0"
}

func (s *Storage) Search(ctx context.Context, query []float32, k int) ([]vectorstore.Neighbor, error) {
	if s.count == 0 {
		return nil, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("qdrant search: %w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(query), s.dimension)
	}
	if k <= 0 {
		k = 1
	}
	req := map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": false,
	}
	var resp struct {
		Result []struct {
			ID    int     `json:"id"`
			Score float64 `json:"score"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(s.active, "/points/search"), req, &resp); err != nil {
		return nil, err
	}
	out := make([]vectorstore.Neighbor, 0, len(resp.Result))
	for _, r := range resp.Result {
		if r.ID < 0 || r.ID >= s.count {
			continue
		}
		// Euclid scores are plain distances.
		out = append(out, vectorstore.Neighbor{Position: r.ID, Distance: r.Score * r.Score})
	}
	return out, nil
}

func (s *Storage) Len() int { return s.count }

func (s *Storage) collectionURL(collection, suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, collection, suffix)
}

func (s *Storage) drop(ctx context.Context, collection string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.collectionURL(collection, ""), nil)
	if err != nil {
		return err
	}
	s.auth(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant drop: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("qdrant DELETE %s failed: %s", collection, resp.Status)
	}
	return nil
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	s.auth(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (s *Storage) auth(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studymate/internal/domain"
)

func TestClient_Answer(t *testing.T) {
	t.Setenv("TEST_HF_TOKEN", "hf_abc")

	tests := []struct {
		name    string
		status  int
		body    string
		want    domain.Span
		wantErr string
	}{
		{name: "object", status: 200, body: `{"answer":"Paris","score":0.93,"start":0,"end":5}`, want: domain.Span{Text: "Paris", Score: 0.93}},
		{name: "list", status: 200, body: `[{"answer":"Seine","score":0.4}]`, want: domain.Span{Text: "Seine", Score: 0.4}},
		{name: "loading", status: 503, body: `{"error":"Model is currently loading"}`, wantErr: "Model is currently loading"},
		{name: "plain failure", status: 500, body: `oops`, wantErr: "500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/models/deepset/roberta", r.URL.Path)
				assert.Equal(t, "Bearer hf_abc", r.Header.Get("Authorization"))
				var req qaRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "Where?", req.Inputs.Question)
				assert.Equal(t, "Paris on the Seine.", req.Inputs.Context)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewClient(Config{BaseURL: srv.URL + "/models/", Model: "deepset/roberta", APIKeyEnv: "TEST_HF_TOKEN"})
			require.NoError(t, err)

			got, err := c.Answer(context.Background(), "Where?", "Paris on the Seine.")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewClient_MissingToken(t *testing.T) {
	t.Setenv("TEST_HF_TOKEN", "")
	_, err := NewClient(Config{APIKeyEnv: "TEST_HF_TOKEN"})
	assert.Error(t, err)
}

func TestClient_Ping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "ready", status: http.StatusOK},
		{name: "loading", status: http.StatusServiceUnavailable},
		{name: "unknown model", status: http.StatusNotFound, wantErr: true},
		{name: "bad token", status: http.StatusUnauthorized, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/models/deepset/roberta", r.URL.Path)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c, err := NewClient(Config{BaseURL: srv.URL + "/models", Model: "deepset/roberta"})
			require.NoError(t, err)
			err = c.Ping(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c, err := NewClient(Config{BaseURL: url, Model: "m"})
		require.NoError(t, err)
		assert.Error(t, c.Ping(context.Background()))
	})
}

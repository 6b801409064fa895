package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"studymate/internal/domain"
)

const (
	defaultBaseURL = "https://api-inference.huggingface.co/models"
	defaultModel   = "distilbert-base-cased-distilled-squad"
)

// Client calls the Hugging Face Inference API question-answering task.
type Client struct {
	url    string
	token  string
	client *http.Client
}

type Config struct {
	BaseURL   string
	Model     string
	APIKeyEnv string
	Timeout   time.Duration
}

// NewClient resolves the token from cfg.APIKeyEnv and the model endpoint.
// It does not contact the API; see Ping.
func NewClient(cfg Config) (*Client, error) {
	token := ""
	if cfg.APIKeyEnv != "" {
		token = os.Getenv(cfg.APIKeyEnv)
		if token == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		url:    strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.Model,
		token:  token,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Ping checks that the model endpoint answers. A 503 means the model is
// still loading on the hosted API and counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("hf ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusServiceUnavailable {
		return fmt.Errorf("hf ping %s: %s", c.url, resp.Status)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

type qaRequest struct {
	Inputs struct {
		Question string `json:"question"`
		Context  string `json:"context"`
	} `json:"inputs"`
}

type qaResponse struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
	Error  string  `json:"error"`
}

func (c *Client) Answer(ctx context.Context, question, passage string) (domain.Span, error) {
	var body qaRequest
	body.Inputs.Question = question
	body.Inputs.Context = passage
	data, err := json.Marshal(body)
	if err != nil {
		return domain.Span{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return domain.Span{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Span{}, fmt.Errorf("hf qa: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Span{}, fmt.Errorf("hf qa: %w", err)
	}
	var out qaResponse
	if resp.StatusCode >= 300 {
		if json.Unmarshal(raw, &out) == nil && out.Error != "" {
			return domain.Span{}, fmt.Errorf("hf qa: %s: %s", resp.Status, out.Error)
		}
		return domain.Span{}, fmt.Errorf("hf qa: %s", resp.Status)
	}
	// Some deployments wrap a single result in a list.
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var list []qaResponse
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return domain.Span{}, fmt.Errorf("hf qa decode: %w", err)
		}
		if len(list) == 0 {
			return domain.Span{}, nil
		}
		out = list[0]
	} else if err := json.Unmarshal(raw, &out); err != nil {
		return domain.Span{}, fmt.Errorf("hf qa decode: %w", err)
	}
	if out.Error != "" {
		return domain.Span{}, fmt.Errorf("hf qa: %s", out.Error)
	}
	return domain.Span{Text: out.Answer, Score: out.Score}, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"studymate/internal/logging"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// ChunkerConfig controls word-window chunking and per-file filtering.
type ChunkerConfig struct {
	ChunkSize        int `yaml:"chunk_size"`
	Overlap          int `yaml:"overlap"`
	MinTextChars     int `yaml:"min_text_chars"`
	MinChunkChars    int `yaml:"min_chunk_chars"`
	MinDocumentChars int `yaml:"min_document_chars"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	Normalize   bool   `yaml:"normalize"`
}

type GeminiEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Gemini *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type HuggingFaceConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// QAConfig selects the extractive backend: huggingface, lexical or none.
type QAConfig struct {
	Type        string             `yaml:"type"`
	HuggingFace *HuggingFaceConfig `yaml:"huggingface,omitempty"`
}

type OpenAIGeneratorConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type GeminiGeneratorConfig struct {
	APIKeyEnv       string  `yaml:"api_key_env"`
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}

// GeneratorConfig selects the generative fallback: openai, gemini or none.
type GeneratorConfig struct {
	Type   string                 `yaml:"type"`
	OpenAI *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
	Gemini *GeminiGeneratorConfig `yaml:"gemini,omitempty"`
}

// AnswererConfig holds the backends and answer tunables.
type AnswererConfig struct {
	QA                 QAConfig        `yaml:"qa"`
	Generator          GeneratorConfig `yaml:"generator"`
	ConfidenceFloor    float64         `yaml:"confidence_floor"`
	MinChunkChars      int             `yaml:"min_chunk_chars"`
	PerChunkChars      int             `yaml:"per_chunk_chars"`
	MaxContextChars    int             `yaml:"max_context_chars"`
	MaxAnswerChars     int             `yaml:"max_answer_chars"`
	FallbackChunkChars int             `yaml:"fallback_chunk_chars"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type TUIConfig struct {
	TranscriptPath string `yaml:"transcript_path"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Answerer    AnswererConfig    `yaml:"answerer"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Server      ServerConfig      `yaml:"server"`
	Log         logging.Config    `yaml:"log"`
	TUI         TUIConfig         `yaml:"tui"`
}

// envOverrides are read with envconfig and win over the file.
type envOverrides struct {
	Embedder    string `envconfig:"STUDYMATE_EMBEDDER"`
	VectorStore string `envconfig:"STUDYMATE_VECTOR_STORE"`
	QA          string `envconfig:"STUDYMATE_QA"`
	Generator   string `envconfig:"STUDYMATE_GENERATOR"`
	ServerAddr  string `envconfig:"STUDYMATE_SERVER_ADDR"`
	TopK        int    `envconfig:"STUDYMATE_TOP_K"`
	LogLevel    string `envconfig:"STUDYMATE_LOG_LEVEL"`
	LogFormat   string `envconfig:"STUDYMATE_LOG_FORMAT"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Keys missing from the file keep their default values.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/studymate/config.yaml.
// If neither exists, it writes defaults to ~/.config/studymate/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overlays STUDYMATE_* environment variables onto cfg.
func ApplyEnv(cfg *AppConfig) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Embedder.Type, env.Embedder)
	set(&cfg.VectorStore.Type, env.VectorStore)
	set(&cfg.Answerer.QA.Type, env.QA)
	set(&cfg.Answerer.Generator.Type, env.Generator)
	set(&cfg.Server.Addr, env.ServerAddr)
	set(&cfg.Log.Level, env.LogLevel)
	set(&cfg.Log.Format, env.LogFormat)
	if env.TopK != 0 {
		cfg.Retrieval.TopK = env.TopK
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "studymate", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Chunker: ChunkerConfig{
			ChunkSize:        200,
			Overlap:          30,
			MinTextChars:     20,
			MinChunkChars:    50,
			MinDocumentChars: 100,
		},
		Embedder:    EmbedderConfig{Type: "tfidf"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Retrieval:   RetrievalConfig{TopK: 3},
		Answerer: AnswererConfig{
			QA:                 QAConfig{Type: "lexical"},
			Generator:          GeneratorConfig{Type: "none"},
			ConfidenceFloor:    0.001,
			MinChunkChars:      10,
			PerChunkChars:      400,
			MaxContextChars:    3000,
			MaxAnswerChars:     200,
			FallbackChunkChars: 200,
		},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 3},
		Server:     ServerConfig{Addr: ":8080", MaxUploadMB: 50},
		Log:        logging.Config{Level: "info", Format: "text", File: "studymate.log"},
		TUI:        TUIConfig{TranscriptPath: "studymate_history.txt"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 200
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 32
		}
	case "gemini":
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		if cfg.Embedder.Gemini.APIKeyEnv == "" {
			cfg.Embedder.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "studymate"
		}
	}
	if cfg.Answerer.QA.Type == "huggingface" && cfg.Answerer.QA.HuggingFace == nil {
		cfg.Answerer.QA.HuggingFace = &HuggingFaceConfig{APIKeyEnv: "HF_API_TOKEN"}
	}
	switch cfg.Answerer.Generator.Type {
	case "openai":
		if cfg.Answerer.Generator.OpenAI == nil {
			cfg.Answerer.Generator.OpenAI = &OpenAIGeneratorConfig{}
		}
		o := cfg.Answerer.Generator.OpenAI
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "gpt-4o-mini"
		}
	case "gemini":
		if cfg.Answerer.Generator.Gemini == nil {
			cfg.Answerer.Generator.Gemini = &GeminiGeneratorConfig{}
		}
		if cfg.Answerer.Generator.Gemini.APIKeyEnv == "" {
			cfg.Answerer.Generator.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
	}
}

// Validate reports the first problem found, wrapped in ErrInvalid.
func (c *AppConfig) Validate() error {
	oneOf := func(field, v string, allowed ...string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("%w: %s %q not one of %v", ErrInvalid, field, v, allowed)
	}
	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunker.chunk_size must be positive", ErrInvalid)
	}
	if c.Chunker.Overlap < 0 {
		return fmt.Errorf("%w: chunker.overlap must not be negative", ErrInvalid)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("%w: retrieval.top_k must be at least 1", ErrInvalid)
	}
	if c.Answerer.ConfidenceFloor < 0 {
		return fmt.Errorf("%w: answerer.confidence_floor must not be negative", ErrInvalid)
	}
	for _, err := range []error{
		oneOf("embedder.type", c.Embedder.Type, "tfidf", "openai", "gemini"),
		oneOf("vector_store.type", c.VectorStore.Type, "memory", "qdrant"),
		oneOf("answerer.qa.type", c.Answerer.QA.Type, "huggingface", "lexical", "none"),
		oneOf("answerer.generator.type", c.Answerer.Generator.Type, "openai", "gemini", "none"),
		oneOf("summarizer.type", c.Summarizer.Type, "frequency", "none"),
		oneOf("log.format", c.Log.Format, "text", "json"),
	} {
		if err != nil {
			return err
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

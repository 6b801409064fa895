package chunker

import (
	"strings"
	"unicode/utf8"

	"studymate/internal/domain"
)

const (
	defaultChunkSize     = 200
	defaultOverlap       = 30
	defaultMinTextChars  = 20
	defaultMinChunkChars = 50
)

// WordChunker splits text into fixed-size word windows with overlap.
type WordChunker struct {
	chunkSize     int
	overlap       int
	minTextChars  int
	minChunkChars int
}

// Options configures a WordChunker. Zero values fall back to defaults.
type Options struct {
	ChunkSize     int
	Overlap       int
	MinTextChars  int
	MinChunkChars int
}

// NewWordChunker returns a chunker with opts applied over the defaults.
func NewWordChunker(opts Options) *WordChunker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.MinTextChars <= 0 {
		opts.MinTextChars = defaultMinTextChars
	}
	if opts.MinChunkChars <= 0 {
		opts.MinChunkChars = defaultMinChunkChars
	}
	return &WordChunker{
		chunkSize:     opts.ChunkSize,
		overlap:       opts.Overlap,
		minTextChars:  opts.MinTextChars,
		minChunkChars: opts.MinChunkChars,
	}
}

// Step is the number of words the window advances by. Never less than one.
func (c *WordChunker) Step() int {
	return max(1, c.chunkSize-c.overlap)
}

// Chunk returns the kept windows of text. Lengths are counted in characters;
// text shorter than the minimum processing length yields no chunks.
func (c *WordChunker) Chunk(text, source string) []domain.Chunk {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < c.minTextChars {
		return nil
	}
	words := strings.Fields(text)
	step := c.Step()

	var chunks []domain.Chunk
	for i := 0; i < len(words); i += step {
		end := min(i+c.chunkSize, len(words))
		joined := strings.Join(words[i:end], " ")
		if utf8.RuneCountInString(strings.TrimSpace(joined)) > c.minChunkChars {
			chunks = append(chunks, domain.Chunk{
				Text:      joined,
				Source:    source,
				ChunkID:   len(chunks),
				StartWord: i,
			})
		}
		if i+c.chunkSize >= len(words) {
			break
		}
	}
	return chunks
}

// Package extract pulls plain text out of uploaded PDF documents.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when a document parses but contains no extractable text.
var ErrNoText = errors.New("no extractable text")

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// Keeps letters, digits, whitespace and common punctuation.
	disallowedRe = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:\-()'"%$@#]`)
)

// PDFExtractor reads text page by page using ledongthuc/pdf.
type PDFExtractor struct {
	logger *slog.Logger
}

// NewPDFExtractor returns an extractor logging to logger, or slog.Default if nil.
func NewPDFExtractor(logger *slog.Logger) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{logger: logger}
}

// ExtractText returns the normalized text of all non-empty pages.
func (e *PDFExtractor) ExtractText(name string, data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract %s: malformed pdf: %v", name, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}

	pages := r.NumPage()
	e.logger.Debug("pdf opened", "file", name, "pages", pages)

	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract %s page %d: %w", name, i, err)
		}
		e.logger.Debug("page extracted", "file", name, "page", i, "chars", len(pageText))
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString(" ")
	}

	cleaned := Normalize(sb.String())
	e.logger.Debug("pdf text normalized", "file", name, "raw_chars", sb.Len(), "chars", len(cleaned))
	if cleaned == "" {
		return "", fmt.Errorf("extract %s: %w", name, ErrNoText)
	}
	return cleaned, nil
}

// Normalize replaces unsupported characters with spaces and collapses runs
// of whitespace.
func Normalize(text string) string {
	text = disallowedRe.ReplaceAllString(text, " ")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"studymate/internal/domain"
)

var ErrNoPDFs = errors.New("no .pdf documents found")

// ReadUploads expands glob patterns and reads every matching .pdf file.
// A pattern without matches is treated as a literal path.
func ReadUploads(patterns []string) ([]domain.Upload, error) {
	var uploads []domain.Upload
	seen := map[string]struct{}{}
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			if !strings.EqualFold(filepath.Ext(m), ".pdf") {
				continue
			}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", m, err)
			}
			uploads = append(uploads, domain.Upload{Name: filepath.Base(m), Data: data})
		}
	}
	if len(uploads) == 0 {
		return nil, ErrNoPDFs
	}
	return uploads, nil
}

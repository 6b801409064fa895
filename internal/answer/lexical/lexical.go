// Package lexical is an offline extractive question answerer. It returns the
// sentence of the context sharing the most words with the question.
package lexical

import (
	"context"
	"regexp"
	"strings"

	"studymate/internal/domain"
)

var (
	unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	sentenceRe    = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// Answerer scores each sentence by the share of distinct question words it
// contains.
type Answerer struct {
	stopwords map[string]struct{}
}

func New() *Answerer {
	return &Answerer{stopwords: defaultStopwords()}
}

func (a *Answerer) Answer(ctx context.Context, question, passage string) (domain.Span, error) {
	if err := ctx.Err(); err != nil {
		return domain.Span{}, err
	}
	qTokens := a.tokenSet(question)
	if len(qTokens) == 0 || strings.TrimSpace(passage) == "" {
		return domain.Span{}, nil
	}
	best, bestScore := "", 0
	for _, sent := range splitSentences(passage) {
		score := tokenOverlapScore(qTokens, sent)
		if score > bestScore {
			best, bestScore = sent, score
		}
	}
	if bestScore == 0 {
		return domain.Span{}, nil
	}
	return domain.Span{Text: best, Score: float64(bestScore) / float64(len(qTokens))}, nil
}

// splitSentences treats the " ... " chunk separator as a sentence boundary
// and keeps unterminated trailing text.
func splitSentences(text string) []string {
	var out []string
	for _, part := range strings.Split(text, " ... ") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "..."))
		if part == "" {
			continue
		}
		found := sentenceRe.FindAllStringIndex(part, -1)
		end := 0
		for _, loc := range found {
			if s := strings.TrimSpace(part[loc[0]:loc[1]]); s != "" {
				out = append(out, s)
			}
			end = loc[1]
		}
		if rest := strings.TrimSpace(part[end:]); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

func (a *Answerer) tokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, stop := a.stopwords[t]; stop {
			continue
		}
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "can", "did", "do", "does",
		"for", "from", "has", "have", "how", "in", "is", "it", "its", "of", "on", "or",
		"that", "the", "this", "to", "was", "were", "what", "when", "where", "which",
		"who", "whom", "why", "with",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

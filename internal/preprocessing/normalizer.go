package preprocessing

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/spacesedan/ytsentiment/internal/metrics"
)

const DEFAULT_WORKERS = 8

// Normalizer cleans comments the same way the training data was cleaned.
// It holds only read-only state and is safe for concurrent use.
type Normalizer struct {
	stopwords  StopwordSet
	lemmatizer Lemmatizer
	workers    int
}

func NewNormalizer(stopwords StopwordSet, lemmatizer Lemmatizer, workers int) *Normalizer {
	if stopwords == nil {
		stopwords = NLTKEnglish()
	}
	if lemmatizer == nil {
		lemmatizer = NoopLemmatizer
	}
	if workers <= 0 {
		workers = DEFAULT_WORKERS
	}
	return &Normalizer{
		stopwords:  stopwords,
		lemmatizer: lemmatizer,
		workers:    workers,
	}
}

// Normalize cleans one comment. If cleaning fails the original text is
// returned so a single bad comment never sinks a batch.
func (n *Normalizer) Normalize(text string) string {
	cleaned, err := n.normalize(text)
	if err != nil {
		slog.Error("[Preprocessing] Failed to normalize comment, using original text",
			slog.String("error", err.Error()),
			slog.Int("length", len(text)))
		metrics.NormalizationFailures.Inc()
		return text
	}
	return cleaned
}

// NormalizeAll cleans every comment in parallel. Output order matches input.
func (n *Normalizer) NormalizeAll(texts []string) []string {
	out := make([]string, len(texts))

	var g errgroup.Group
	g.SetLimit(n.workers)
	for i, text := range texts {
		g.Go(func() error {
			out[i] = n.Normalize(text)
			return nil
		})
	}
	_ = g.Wait()

	slog.Debug("[Preprocessing] Normalized comments", slog.Int("count", len(texts)))
	return out
}

func (n *Normalizer) normalize(text string) (cleaned string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("normalize panicked: %v", r)
		}
	}()

	s := strings.ToLower(text)
	s = strings.TrimSpace(s)
	s = stripNonASCII(s)
	s = strings.ReplaceAll(s, "\n", " ")
	s = keepAllowed(s)

	tokens := strings.Fields(s)
	kept := tokens[:0]
	for _, tok := range tokens {
		if Protected[tok] || !n.stopwords.Contains(tok) {
			kept = append(kept, tok)
		}
	}
	for i, tok := range kept {
		if lemma := n.lemmatizer.Lemma(tok); lemma != "" {
			kept[i] = lemma
		}
	}

	return strings.Join(kept, " "), nil
}

func stripNonASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)
}

// keepAllowed keeps ASCII letters, digits, whitespace and ! ? . ,
func keepAllowed(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case unicode.IsSpace(r):
			return r
		case r == '!' || r == '?' || r == '.' || r == ',':
			return r
		}
		return -1
	}, s)
}

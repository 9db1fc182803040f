package preprocessing

import (
	"fmt"

	"github.com/aaaton/golem/v4"
	"github.com/aaaton/golem/v4/dicts/en"
)

// Lemmatizer reduces a lower-cased token to its dictionary form. Unknown
// tokens come back unchanged.
type Lemmatizer interface {
	Lemma(word string) string
}

type LemmatizerFunc func(word string) string

func (f LemmatizerFunc) Lemma(word string) string {
	return f(word)
}

// NoopLemmatizer returns every token unchanged.
var NoopLemmatizer = LemmatizerFunc(func(word string) string { return word })

// NewGolemLemmatizer loads the English golem dictionary. Loading takes a
// moment and a fair amount of memory so it is done once per process.
func NewGolemLemmatizer() (Lemmatizer, error) {
	l, err := golem.New(en.New())
	if err != nil {
		return nil, fmt.Errorf("[Preprocessing] failed to load lemmatizer dictionary: %w", err)
	}
	return l, nil
}

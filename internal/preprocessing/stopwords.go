package preprocessing

import (
	_ "embed"
	"strings"

	"github.com/bbalet/stopwords"
)

//go:embed data/nltk_english.txt
var nltkEnglish string

// Protected words carry polarity and are kept even though they are common
// stop words.
var Protected = map[string]bool{
	"not":     true,
	"no":      true,
	"but":     true,
	"however": true,
	"yet":     true,
}

type StopwordSet interface {
	Contains(word string) bool
}

type wordSet map[string]struct{}

func (s wordSet) Contains(word string) bool {
	_, ok := s[word]
	return ok
}

// NLTKEnglish is the NLTK English stop word list, the list the deployed
// vectorizers were fitted against.
func NLTKEnglish() StopwordSet {
	set := make(wordSet, 180)
	for _, w := range strings.Split(nltkEnglish, "\n") {
		if w = strings.TrimSpace(w); w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// LibrarySet checks words against github.com/bbalet/stopwords for an ISO
// 639-1 language code. The library only exposes a cleaning function, so a
// word is a stop word when cleaning it leaves nothing behind.
type LibrarySet struct {
	Lang string
}

func (s LibrarySet) Contains(word string) bool {
	if !isLetters(word) {
		return false
	}
	return strings.TrimSpace(stopwords.CleanString(word, s.Lang, false)) == ""
}

func isLetters(word string) bool {
	if word == "" {
		return false
	}
	for _, r := range word {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

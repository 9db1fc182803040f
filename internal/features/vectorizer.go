package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

const DEFAULT_TOKEN_PATTERN = `\b\w\w+\b`

const (
	NORM_L1   = "l1"
	NORM_L2   = "l2"
	NORM_NONE = ""
)

var ErrInvalidVectorizer = errors.New("invalid vectorizer")

// vectorizerFile is the JSON export of a fitted scikit-learn TfidfVectorizer.
type vectorizerFile struct {
	Vocabulary   map[string]int `json:"vocabulary"`
	IDF          []float64      `json:"idf"`
	NgramRange   []int          `json:"ngram_range"`
	Norm         *string        `json:"norm"`
	UseIDF       *bool          `json:"use_idf"`
	SublinearTF  bool           `json:"sublinear_tf"`
	Binary       bool           `json:"binary"`
	Lowercase    *bool          `json:"lowercase"`
	TokenPattern string         `json:"token_pattern"`
}

// Vectorizer is a fitted TF-IDF transformer. Its vocabulary and weights are
// fixed at load time and it is safe for concurrent use.
type Vectorizer struct {
	vocabulary  map[string]int
	terms       []string
	idf         []float64
	minN, maxN  int
	norm        string
	sublinearTF bool
	binary      bool
	lowercase   bool
	token       *regexp.Regexp
}

// LoadVectorizer decodes a vectorizer artifact.
func LoadVectorizer(r io.Reader) (*Vectorizer, error) {
	var f vectorizerFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("[FeatureEncoder] %w: decode: %v", ErrInvalidVectorizer, err)
	}
	return newVectorizer(f)
}

func newVectorizer(f vectorizerFile) (*Vectorizer, error) {
	width := len(f.Vocabulary)
	if width == 0 {
		return nil, fmt.Errorf("[FeatureEncoder] %w: empty vocabulary", ErrInvalidVectorizer)
	}

	terms := make([]string, width)
	for term, idx := range f.Vocabulary {
		if idx < 0 || idx >= width || terms[idx] != "" {
			return nil, fmt.Errorf("[FeatureEncoder] %w: vocabulary index %d for %q is out of range or duplicated",
				ErrInvalidVectorizer, idx, term)
		}
		terms[idx] = term
	}

	v := &Vectorizer{
		vocabulary:  f.Vocabulary,
		terms:       terms,
		minN:        1,
		maxN:        1,
		norm:        NORM_L2,
		sublinearTF: f.SublinearTF,
		binary:      f.Binary,
		lowercase:   true,
	}

	useIDF := f.UseIDF == nil || *f.UseIDF
	if useIDF {
		if len(f.IDF) != width {
			return nil, fmt.Errorf("[FeatureEncoder] %w: %d idf weights for %d terms",
				ErrInvalidVectorizer, len(f.IDF), width)
		}
		v.idf = f.IDF
	}

	if len(f.NgramRange) != 0 {
		if len(f.NgramRange) != 2 || f.NgramRange[0] < 1 || f.NgramRange[1] < f.NgramRange[0] {
			return nil, fmt.Errorf("[FeatureEncoder] %w: bad ngram_range %v", ErrInvalidVectorizer, f.NgramRange)
		}
		v.minN, v.maxN = f.NgramRange[0], f.NgramRange[1]
	}

	if f.Norm != nil {
		switch *f.Norm {
		case NORM_L1, NORM_L2, NORM_NONE:
			v.norm = *f.Norm
		default:
			return nil, fmt.Errorf("[FeatureEncoder] %w: unknown norm %q", ErrInvalidVectorizer, *f.Norm)
		}
	}

	if f.Lowercase != nil {
		v.lowercase = *f.Lowercase
	}

	pattern := f.TokenPattern
	if pattern == "" {
		pattern = DEFAULT_TOKEN_PATTERN
	}
	// python's (?u) flag has no RE2 equivalent and is implied for ASCII input
	pattern = strings.ReplaceAll(pattern, "(?u)", "")
	token, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("[FeatureEncoder] %w: token pattern: %v", ErrInvalidVectorizer, err)
	}
	v.token = token

	return v, nil
}

// Width is the vocabulary size, the length of every vector this produces.
func (v *Vectorizer) Width() int {
	return len(v.terms)
}

// FeatureNames returns the vocabulary terms in column order.
func (v *Vectorizer) FeatureNames() []string {
	return append([]string(nil), v.terms...)
}

// Transform turns one document into a feature vector.
func (v *Vectorizer) Transform(text string) []float64 {
	row := make([]float64, v.Width())
	v.fill(text, row)
	return row
}

// TransformAll builds one row per document.
func (v *Vectorizer) TransformAll(texts []string) *Matrix {
	data := make([]float64, len(texts)*v.Width())
	for i, text := range texts {
		v.fill(text, data[i*v.Width():(i+1)*v.Width()])
	}
	return newMatrix(len(texts), v.Width(), data, v.FeatureNames())
}

func (v *Vectorizer) fill(text string, row []float64) {
	for _, gram := range v.ngrams(text) {
		if idx, ok := v.vocabulary[gram]; ok {
			row[idx]++
		}
	}

	for i, tf := range row {
		if tf == 0 {
			continue
		}
		switch {
		case v.binary:
			tf = 1
		case v.sublinearTF:
			tf = 1 + math.Log(tf)
		}
		if v.idf != nil {
			tf *= v.idf[i]
		}
		row[i] = tf
	}

	var norm float64
	switch v.norm {
	case NORM_L2:
		norm = floats.Norm(row, 2)
	case NORM_L1:
		norm = floats.Norm(row, 1)
	}
	if norm > 0 {
		floats.Scale(1/norm, row)
	}
}

func (v *Vectorizer) ngrams(text string) []string {
	if v.lowercase {
		text = strings.ToLower(text)
	}
	tokens := v.token.FindAllString(text, -1)
	if v.minN == 1 && v.maxN == 1 {
		return tokens
	}

	var grams []string
	for n := v.minN; n <= v.maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			grams = append(grams, strings.Join(tokens[i:i+n], " "))
		}
	}
	return grams
}

// NewVectorizerFromVocabulary builds an unweighted count vectorizer over
// terms, mostly useful for tests and smoke runs.
func NewVectorizerFromVocabulary(terms []string) (*Vectorizer, error) {
	sorted := append([]string(nil), terms...)
	sort.Strings(sorted)
	vocab := make(map[string]int, len(sorted))
	for i, t := range sorted {
		vocab[t] = i
	}
	noIDF := false
	return newVectorizer(vectorizerFile{Vocabulary: vocab, UseIDF: &noIDF})
}

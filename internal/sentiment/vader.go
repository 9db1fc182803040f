package sentiment

import (
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
)

const VADER_THRESHOLD = 0.20

var (
	linkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	urlPattern  = regexp.MustCompile(`https?://\S+|www\.\S+`)
	tagPattern  = regexp.MustCompile(`<[^>]*>`)
)

// Baseline scores raw comments with the VADER lexicon. It runs next to the
// trained model so operators can see how often the two agree.
type Baseline struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func NewBaseline() *Baseline {
	return &Baseline{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func RemoveLinks(input string) string {
	input = linkPattern.ReplaceAllString(input, "$1") // Keep only the text
	return urlPattern.ReplaceAllString(input, "")
}

// ConvertMarkdownToText renders comment markdown (*bold*, links) and strips
// the resulting tags so VADER only sees words.
func ConvertMarkdownToText(input string) string {
	input = RemoveLinks(input)
	output := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	plainText := tagPattern.ReplaceAllString(string(output), "")
	return strings.Join(strings.Fields(plainText), " ")
}

// Score returns the VADER compound score and the label it maps to.
func (b *Baseline) Score(text string) (float64, Label) {
	score := b.analyzer.PolarityScores(ConvertMarkdownToText(text)).Compound

	switch {
	case score >= VADER_THRESHOLD:
		return score, Positive
	case score <= -VADER_THRESHOLD:
		return score, Negative
	default:
		return score, Neutral
	}
}

// Labels scores every comment, preserving order.
func (b *Baseline) Labels(texts []string) []Label {
	out := make([]Label, len(texts))
	for i, t := range texts {
		_, out[i] = b.Score(t)
	}
	return out
}

// Agreement is the share of positions where both label slices agree.
// Mismatched lengths or empty input yield 0.
func Agreement(a, b []Label) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	same := 0
	for i := range a {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) / float64(len(a))
}

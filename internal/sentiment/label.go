package sentiment

import (
	"fmt"
	"strings"
)

type Label string

const (
	Positive Label = "Positive"
	Negative Label = "Negative"
	Neutral  Label = "Neutral"
)

// Labels lists every label in display order.
var Labels = []Label{Positive, Negative, Neutral}

// ToLabel maps a raw classifier output onto a label: 1 is Positive, -1 is
// Negative and every other value is Neutral.
func ToLabel(raw float64) Label {
	switch raw {
	case 1:
		return Positive
	case -1:
		return Negative
	default:
		return Neutral
	}
}

// ToLabels maps a batch of raw outputs, preserving order.
func ToLabels(raw []float64) []Label {
	out := make([]Label, len(raw))
	for i, r := range raw {
		out[i] = ToLabel(r)
	}
	return out
}

func ParseLabel(s string) (Label, error) {
	for _, l := range Labels {
		if strings.EqualFold(s, string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown sentiment label %q", s)
}

func (l Label) String() string {
	return string(l)
}

// Count tallies labels. Every label is present in the result, zero or not.
func Count(labels []Label) map[Label]int {
	counts := make(map[Label]int, len(Labels))
	for _, l := range Labels {
		counts[l] = 0
	}
	for _, l := range labels {
		counts[l]++
	}
	return counts
}

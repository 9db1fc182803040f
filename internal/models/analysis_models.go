package models

import (
	"time"

	"github.com/spacesedan/ytsentiment/internal/sentiment"
)

// Prediction pairs a raw comment with the label the model gave it.
type Prediction struct {
	Comment  Comment         `json:"comment"`
	Label    sentiment.Label `json:"label"`
	Raw      float64         `json:"raw"`
	Baseline sentiment.Label `json:"baseline,omitempty"`
}

type ModelInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Stage   string `json:"stage"`
	RunID   string `json:"run_id,omitempty"`
}

// Analysis is the complete result of one video analysis request.
type Analysis struct {
	ID                string                  `json:"id" dynamodbav:"analysis_id"`
	VideoID           string                  `json:"video_id" dynamodbav:"video_id"`
	Input             string                  `json:"input" dynamodbav:"input"`
	Predictions       []Prediction            `json:"predictions" dynamodbav:"predictions"`
	Counts            map[sentiment.Label]int `json:"counts" dynamodbav:"counts"`
	BaselineAgreement *float64                `json:"baseline_agreement,omitempty" dynamodbav:"baseline_agreement,omitempty"`
	Model             ModelInfo               `json:"model" dynamodbav:"model"`
	CreatedAt         time.Time               `json:"created_at" dynamodbav:"created_at"`
}

// AnalysisSummary is Analysis without the per comment predictions.
type AnalysisSummary struct {
	ID                string                  `json:"id"`
	VideoID           string                  `json:"video_id"`
	CommentCount      int                     `json:"comment_count"`
	Counts            map[sentiment.Label]int `json:"counts"`
	BaselineAgreement *float64                `json:"baseline_agreement,omitempty"`
	Model             ModelInfo               `json:"model"`
	CreatedAt         time.Time               `json:"created_at"`
}

func (a *Analysis) Summary() AnalysisSummary {
	return AnalysisSummary{
		ID:                a.ID,
		VideoID:           a.VideoID,
		CommentCount:      len(a.Predictions),
		Counts:            a.Counts,
		BaselineAgreement: a.BaselineAgreement,
		Model:             a.Model,
		CreatedAt:         a.CreatedAt,
	}
}

// WithLabel returns a shallow copy holding only the predictions labelled l,
// in their original order.
func (a *Analysis) WithLabel(l sentiment.Label) *Analysis {
	out := *a
	out.Predictions = make([]Prediction, 0, a.Counts[l])
	for _, p := range a.Predictions {
		if p.Label == l {
			out.Predictions = append(out.Predictions, p)
		}
	}
	return &out
}

// Page returns the 1-based page of predictions. Out of range pages are empty.
func (a *Analysis) Page(page, perPage int) []Prediction {
	if page < 1 || perPage < 1 {
		return []Prediction{}
	}
	start := (page - 1) * perPage
	if start >= len(a.Predictions) {
		return []Prediction{}
	}
	end := start + perPage
	if end > len(a.Predictions) {
		end = len(a.Predictions)
	}
	return a.Predictions[start:end]
}

package models

import "time"

// Comment is a top level comment as returned by the platform. Text is the
// display formatted body and is never modified after fetch.
type Comment struct {
	ID          string    `json:"id"`
	Author      string    `json:"author,omitempty"`
	Text        string    `json:"text"`
	LikeCount   int64     `json:"like_count,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// CommentTexts returns the raw text of every comment, in order.
func CommentTexts(comments []Comment) []string {
	texts := make([]string, len(comments))
	for i, c := range comments {
		texts[i] = c.Text
	}
	return texts
}

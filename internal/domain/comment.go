package domain

import (
	"errors"
	"strings"
	"time"
)

// Common validation errors for Comment
var (
	ErrEmptyCommentID   = errors.New("comment ID cannot be empty")
	ErrEmptyCommentText = errors.New("comment text cannot be empty")
	ErrEmptyOwnerID     = errors.New("comment owner ID cannot be empty")
)

// Comment is a VK comment collected from a wall post. It is identified by the
// owner (user or community) and the comment ID, which VK only guarantees to be
// unique per owner.
type Comment struct {
	ID              int64      `json:"id"`
	OwnerID         int64      `json:"owner_id"`
	PostID          int64      `json:"post_id"`
	AuthorID        int64      `json:"author_id"`
	Text            string     `json:"text"`
	CreatedAt       time.Time  `json:"created_at"`
	LikeCount       int        `json:"like_count"`
	ReplyCount      int        `json:"reply_count"`
	MatchedKeywords []string   `json:"matched_keywords"`
	Sentiment       string     `json:"sentiment,omitempty"`
	AnalyzedAt      *time.Time `json:"analyzed_at,omitempty"`
}

// Validate checks the fields required to persist a comment.
func (c *Comment) Validate() error {
	if c.ID == 0 {
		return ErrEmptyCommentID
	}
	if c.OwnerID == 0 {
		return ErrEmptyOwnerID
	}
	if strings.TrimSpace(c.Text) == "" {
		return ErrEmptyCommentText
	}
	return nil
}

// CommentAnalysis is the derived data the analysis pass attaches to a comment.
type CommentAnalysis struct {
	MatchedKeywords []string `json:"matched_keywords"`
	Sentiment       string   `json:"sentiment"`
}

// Sentiment labels produced by the analyzer.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

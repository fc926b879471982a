package models

import (
	"errors"
	"time"
)

// NewsItem reports a significant single-step price move.
type NewsItem struct {
	ID            string    `json:"id"`
	Market        string    `json:"market"`
	Resource      string    `json:"resource"`
	PercentChange int       `json:"percent_change"` // Rounded, signed
	Price         int64     `json:"price"`
	Headline      string    `json:"headline"`
	Description   string    `json:"description"`
	PublishedAt   time.Time `json:"published_at"`
}

// Direction returns "increase" or "decrease" following the sign of the move.
func (n *NewsItem) Direction() string {
	if n.PercentChange < 0 {
		return "decrease"
	}
	return "increase"
}

// Validate checks that all news fields are valid
func (n *NewsItem) Validate() error {
	if n.Market == "" || n.Resource == "" {
		return errors.New("news market and resource must not be empty")
	}
	if n.Headline == "" {
		return errors.New("news headline must not be empty")
	}
	if n.Price < 1 {
		return errors.New("news price must be at least 1")
	}
	return nil
}

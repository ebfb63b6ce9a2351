// Package signal standardizes the chat-derived payloads shared between the
// Twitch ingestion layer and the price engine.
package signal

import (
	"strings"
	"time"
)

// Direction is the semantic meaning extracted from a single chat message.
type Direction int

const (
	// Up pushes the price higher on the next tick.
	Up Direction = iota
	// Down pushes the price lower on the next tick.
	Down
)

// String returns the wire label for a direction.
func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// Tick is one persisted price point: the resolved counts of an interval and
// the price after applying their net delta.
type Tick struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	UpCount   int64     `json:"up_count"`
	DownCount int64     `json:"down_count"`
}

// Classifier maps raw chat text to zero or more directions via
// case-insensitive substring matching. The keywords are not mutually
// exclusive: with up "STONKS" and down "STONKS DOWN", the message
// "stonks down" increments both counters.
type Classifier struct {
	up   string
	down string
}

// NewClassifier lowercases the configured keywords once up front.
func NewClassifier(upKeyword, downKeyword string) Classifier {
	return Classifier{
		up:   strings.ToLower(upKeyword),
		down: strings.ToLower(downKeyword),
	}
}

// Classify returns every direction the message matches, in up-then-down
// order. An empty slice means the message carries no signal.
func (c Classifier) Classify(text string) []Direction {
	lowered := strings.ToLower(text)
	var out []Direction
	if c.up != "" && strings.Contains(lowered, c.up) {
		out = append(out, Up)
	}
	if c.down != "" && strings.Contains(lowered, c.down) {
		out = append(out, Down)
	}
	return out
}

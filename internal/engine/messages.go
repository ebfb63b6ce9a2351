package engine

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aithusa712/TwitchStonks/internal/hub"
)

const (
	messageTypeTick       = "tick"
	messageTypeStatus     = "status"
	messageTypeLiveCounts = "live_counts"
)

// TickMessage is pushed after each committed tick and, with the latest
// persisted counts, as the full-state snapshot on subscriber registration.
type TickMessage struct {
	Type            string    `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	Price           float64   `json:"price"`
	UpCount         int64     `json:"up_count"`
	DownCount       int64     `json:"down_count"`
	NextTickAt      time.Time `json:"next_tick_at"`
	TwitchConnected bool      `json:"twitch_connected"`
	StreamLive      bool      `json:"stream_live"`
}

// StatusMessage is pushed when either connectivity flag flips.
type StatusMessage struct {
	Type            string    `json:"type"`
	TwitchConnected bool      `json:"twitch_connected"`
	StreamLive      bool      `json:"stream_live"`
	NextTickAt      time.Time `json:"next_tick_at"`
}

// LiveCountsMessage reflects the unresolved counters between ticks so viewer
// UIs can show pending activity.
type LiveCountsMessage struct {
	Type       string    `json:"type"`
	UpCount    int64     `json:"up_count"`
	DownCount  int64     `json:"down_count"`
	NextTickAt time.Time `json:"next_tick_at"`
}

// Snapshot is the read-only state view returned by the status endpoint.
type Snapshot struct {
	Channel             string    `json:"twitch_channel"`
	CurrentPrice        float64   `json:"current_price"`
	TwitchConnected     bool      `json:"twitch_connected"`
	StreamLive          bool      `json:"stream_live"`
	NextTickAt          time.Time `json:"next_tick_at"`
	TickIntervalMinutes float64   `json:"tick_interval_minutes"`
	UpKeyword           string    `json:"up_keyword"`
	DownKeyword         string    `json:"down_keyword"`
}

// encode serializes a payload once for fan-out. The message structs contain
// nothing unmarshalable, so a failure here indicates a programming error and
// is logged rather than propagated.
func encode(log zerolog.Logger, payload interface{}) hub.Message {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode broadcast payload")
		return hub.Message{Type: "invalid", Data: []byte("{}")}
	}
	msgType := messageTypeTick
	switch payload.(type) {
	case StatusMessage:
		msgType = messageTypeStatus
	case LiveCountsMessage:
		msgType = messageTypeLiveCounts
	}
	return hub.Message{Type: msgType, Data: data}
}

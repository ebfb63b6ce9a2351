// Package twitch hosts the two upstream collaborators: the chat feed that
// produces raw message lines and the Helix poller that tracks whether the
// stream is live.
package twitch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultChatURL = "wss://irc-ws.chat.twitch.tv:443"

// Chat reconnection uses a fixed delay: Twitch IRC disconnects are routine
// and an exponential backoff would only delay recovery of the signal feed.
const chatReconnectDelay = 5 * time.Second

// ChatClient keeps a long-lived IRC-over-websocket connection to a single
// Twitch channel and hands every chat line to the engine.
type ChatClient struct {
	log       zerolog.Logger
	username  string
	token     string
	channel   string
	url       string
	onMessage func(string)
	onStatus  func(bool)
}

// ChatOption configures ChatClient construction.
type ChatOption func(*ChatClient)

// WithChatURL overrides the IRC websocket endpoint, used by tests.
func WithChatURL(url string) ChatOption {
	return func(c *ChatClient) {
		if url != "" {
			c.url = url
		}
	}
}

// NewChatClient builds the chat collaborator. onMessage receives the text of
// every PRIVMSG; onStatus receives connectivity edges (the consumer dedupes).
func NewChatClient(log zerolog.Logger, username, oauthToken, channel string, onMessage func(string), onStatus func(bool), opts ...ChatOption) *ChatClient {
	c := &ChatClient{
		log:       log,
		username:  username,
		token:     oauthToken,
		channel:   strings.ToLower(channel),
		url:       defaultChatURL,
		onMessage: onMessage,
		onStatus:  onStatus,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects and listens until the context is canceled, reconnecting
// forever on failure. Connectivity problems are reported through onStatus and
// never returned as fatal.
func (c *ChatClient) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.onStatus(false)
			c.log.Warn().Err(err).Msg("twitch chat disconnected, retrying")
			select {
			case <-time.After(chatReconnectDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (c *ChatClient) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial twitch irc: %w", err)
	}
	defer conn.Close()

	for _, line := range []string{
		"PASS " + c.token,
		"NICK " + c.username,
		"JOIN #" + c.channel,
	} {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return fmt.Errorf("irc handshake: %w", err)
		}
	}

	c.log.Info().Str("channel", c.channel).Msg("connected to twitch chat")
	c.onStatus(true)

	// Close the socket when the context dies so the blocking read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("irc read: %w", err)
		}
		// A frame may carry several CRLF-separated IRC lines.
		for _, raw := range strings.Split(string(payload), "\r\n") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			if strings.HasPrefix(raw, "PING") {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, []byte(strings.Replace(raw, "PING", "PONG", 1))); err != nil {
					return fmt.Errorf("irc pong: %w", err)
				}
				continue
			}
			if text, ok := extractPrivMsg(raw); ok {
				c.onMessage(text)
			}
		}
	}
}

// extractPrivMsg pulls the message text out of an IRC line of the form
// ":nick!user@host PRIVMSG #channel :message text".
func extractPrivMsg(raw string) (string, bool) {
	idx := strings.Index(raw, "PRIVMSG")
	if idx < 0 {
		return "", false
	}
	trailing := raw[idx+len("PRIVMSG"):]
	sep := strings.Index(trailing, " :")
	if sep < 0 {
		return "", false
	}
	return trailing[sep+2:], true
}

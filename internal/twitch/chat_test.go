package twitch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestExtractPrivMsg(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{
			"plain message",
			":nick!nick@nick.tmi.twitch.tv PRIVMSG #somechannel :STONKS to the moon",
			"STONKS to the moon", true,
		},
		{
			"message containing colon",
			":a!a@a.tmi.twitch.tv PRIVMSG #chan :note: stonks down",
			"note: stonks down", true,
		},
		{"ping line", "PING :tmi.twitch.tv", "", false},
		{"join ack", ":nick.tmi.twitch.tv JOIN #chan", "", false},
		{"privmsg without trailing", ":n!n@n PRIVMSG #chan", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractPrivMsg(tc.raw)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("extractPrivMsg(%q) = (%q, %v), want (%q, %v)", tc.raw, got, ok, tc.want, tc.ok)
			}
		})
	}
}

// fakeIRC upgrades one connection, records the handshake, pushes scripted
// lines, and captures anything the client writes back.
type fakeIRC struct {
	upgrader websocket.Upgrader
	script   []string

	mu       sync.Mutex
	received []string
}

func (f *fakeIRC) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// PASS, NICK, JOIN
	for i := 0; i < 3; i++ {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, string(msg))
		f.mu.Unlock()
	}

	for _, line := range f.script {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}

	// Capture the PONG (or whatever else the client sends) until it hangs up.
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, string(msg))
		f.mu.Unlock()
	}
}

func (f *fakeIRC) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.received))
	copy(out, f.received)
	return out
}

func TestChatClientHandshakeMessagesAndPong(t *testing.T) {
	irc := &fakeIRC{script: []string{
		":n!n@n.tmi.twitch.tv PRIVMSG #somechannel :stonks\r\n:m!m@m.tmi.twitch.tv PRIVMSG #somechannel :stonks down\r\n",
		"PING :tmi.twitch.tv",
	}}
	srv := httptest.NewServer(http.HandlerFunc(irc.handler))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	var mu sync.Mutex
	var messages []string
	var statuses []bool
	client := NewChatClient(zerolog.Nop(), "botname", "oauth:token", "SomeChannel",
		func(text string) {
			mu.Lock()
			messages = append(messages, text)
			mu.Unlock()
		},
		func(connected bool) {
			mu.Lock()
			statuses = append(statuses, connected)
			mu.Unlock()
		},
		WithChatURL(wsURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = client.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(messages)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(messages) < 2 || messages[0] != "stonks" || messages[1] != "stonks down" {
		t.Fatalf("unexpected messages: %v", messages)
	}
	if len(statuses) == 0 || !statuses[0] {
		t.Fatalf("expected connected=true status edge, got %v", statuses)
	}

	received := irc.snapshot()
	if len(received) < 3 {
		t.Fatalf("server saw too few frames: %v", received)
	}
	if received[0] != "PASS oauth:token" || received[1] != "NICK botname" || received[2] != "JOIN #somechannel" {
		t.Fatalf("unexpected handshake: %v", received[:3])
	}
	foundPong := false
	for _, frame := range received[3:] {
		if strings.HasPrefix(frame, "PONG") {
			foundPong = true
		}
	}
	if !foundPong {
		t.Fatalf("client never answered PING: %v", received)
	}
}

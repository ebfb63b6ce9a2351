package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultTokenURL     = "https://id.twitch.tv/oauth2/token"
	defaultHelixURL     = "https://api.twitch.tv/helix"
	defaultPollInterval = 3 * time.Minute
	tokenExpirySkew     = 60 * time.Second
)

// HelixClient polls the Twitch Helix streams endpoint to learn whether the
// channel is live, refreshing its app access token as it expires.
type HelixClient struct {
	log          zerolog.Logger
	clientID     string
	clientSecret string
	channel      string
	onStatus     func(bool)

	tokenURL     string
	apiURL       string
	pollInterval time.Duration
	http         *http.Client

	token          string
	tokenExpiresAt time.Time
	now            func() time.Time
}

// HelixOption configures HelixClient construction.
type HelixOption func(*HelixClient)

// WithHelixPollInterval overrides the polling cadence.
func WithHelixPollInterval(d time.Duration) HelixOption {
	return func(h *HelixClient) {
		if d > 0 {
			h.pollInterval = d
		}
	}
}

// WithHelixEndpoints overrides the token and API base URLs, used by tests.
func WithHelixEndpoints(tokenURL, apiURL string) HelixOption {
	return func(h *HelixClient) {
		if tokenURL != "" {
			h.tokenURL = tokenURL
		}
		if apiURL != "" {
			h.apiURL = strings.TrimSuffix(apiURL, "/")
		}
	}
}

// NewHelixClient builds the liveness poller. onStatus receives liveness edges
// on every poll; the consumer dedupes repeats.
func NewHelixClient(log zerolog.Logger, clientID, clientSecret, channel string, onStatus func(bool), opts ...HelixOption) *HelixClient {
	h := &HelixClient{
		log:          log,
		clientID:     clientID,
		clientSecret: clientSecret,
		channel:      strings.ToLower(channel),
		onStatus:     onStatus,
		tokenURL:     defaultTokenURL,
		apiURL:       defaultHelixURL,
		pollInterval: defaultPollInterval,
		http:         &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run polls until the context is canceled. Poll failures are logged and
// swallowed; the stream status simply stays at its last known value.
func (h *HelixClient) Run(ctx context.Context) error {
	if err := h.poll(ctx); err != nil {
		h.log.Warn().Err(err).Msg("initial helix poll failed")
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := h.poll(ctx); err != nil {
				h.log.Warn().Err(err).Msg("helix poll failed")
			}
		}
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type streamsResponse struct {
	Data []json.RawMessage `json:"data"`
}

func (h *HelixClient) poll(ctx context.Context) error {
	if err := h.ensureToken(ctx); err != nil {
		return err
	}

	live, status, err := h.fetchStreamStatus(ctx)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		// Token revoked before its reported expiry; refresh once and retry.
		if err := h.refreshToken(ctx); err != nil {
			return err
		}
		live, status, err = h.fetchStreamStatus(ctx)
		if err != nil {
			return err
		}
	}
	if status != http.StatusOK {
		return fmt.Errorf("helix streams returned status %d", status)
	}

	h.onStatus(live)
	return nil
}

func (h *HelixClient) fetchStreamStatus(ctx context.Context) (live bool, status int, err error) {
	endpoint := fmt.Sprintf("%s/streams?user_login=%s", h.apiURL, url.QueryEscape(h.channel))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Client-Id", h.clientID)

	resp, err := h.http.Do(req)
	if err != nil {
		return false, 0, fmt.Errorf("helix streams request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, resp.StatusCode, nil
	}
	var payload streamsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, resp.StatusCode, fmt.Errorf("decode streams response: %w", err)
	}
	return len(payload.Data) > 0, resp.StatusCode, nil
}

func (h *HelixClient) ensureToken(ctx context.Context) error {
	if h.token != "" && h.tokenExpiresAt.Sub(h.now()) > tokenExpirySkew {
		return nil
	}
	return h.refreshToken(ctx)
}

func (h *HelixClient) refreshToken(ctx context.Context) error {
	form := url.Values{
		"client_id":     {h.clientID},
		"client_secret": {h.clientSecret},
		"grant_type":    {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.token = ""
		return fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return fmt.Errorf("token endpoint returned empty token")
	}
	if payload.ExpiresIn <= 0 {
		payload.ExpiresIn = 3600
	}

	h.token = payload.AccessToken
	h.tokenExpiresAt = h.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	h.log.Info().Int64("expires_in", payload.ExpiresIn).Msg("obtained twitch helix token")
	return nil
}

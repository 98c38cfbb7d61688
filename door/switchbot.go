package door

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/zephraph/sps/backoff"
	"github.com/zephraph/sps/clock"
)

// DefaultBaseURL is the SwitchBot cloud API root.
const DefaultBaseURL = "https://api.switch-bot.com/v1.1"

// statusOK is the SwitchBot body statusCode for a successful command.
const statusOK = 100

// SwitchBotConfig holds the API credentials and the bot pressing the
// buzzer.
type SwitchBotConfig struct {
	Token    string
	Secret   string
	DeviceID string
	BaseURL  string
}

// SwitchBot presses a SwitchBot device through the cloud API.
type SwitchBot struct {
	cfg         SwitchBotConfig
	http        *http.Client
	clock       clock.Clock
	strategy    backoff.Strategy
	maxAttempts int
	logger      *slog.Logger
}

// SwitchBotOption configures a SwitchBot.
type SwitchBotOption func(*SwitchBot)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) SwitchBotOption { return func(s *SwitchBot) { s.http = c } }

// WithClock sets the clock used for request timestamps.
func WithClock(c clock.Clock) SwitchBotOption { return func(s *SwitchBot) { s.clock = c } }

// WithRetry sets the retry strategy and the maximum number of attempts.
func WithRetry(strategy backoff.Strategy, maxAttempts int) SwitchBotOption {
	return func(s *SwitchBot) {
		s.strategy = strategy
		s.maxAttempts = maxAttempts
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SwitchBotOption { return func(s *SwitchBot) { s.logger = l } }

// NewSwitchBot returns a client for cfg.
func NewSwitchBot(cfg SwitchBotConfig, opts ...SwitchBotOption) *SwitchBot {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	s := &SwitchBot{
		cfg:         cfg,
		http:        &http.Client{Timeout: 10 * time.Second},
		clock:       clock.Real{},
		strategy:    backoff.Exponential(500*time.Millisecond, 5*time.Second),
		maxAttempts: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type command struct {
	Command     string `json:"command"`
	Parameter   string `json:"parameter"`
	CommandType string `json:"commandType"`
}

type response struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// Sign returns the sign header for token, timestamp t and nonce.
func Sign(token, secret, t, nonce string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token + t + nonce))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Press sends the press command, retrying transient failures.
func (s *SwitchBot) Press(ctx context.Context) error {
	attempt := 0
	err := backoff.Retry(ctx, s.strategy, s.maxAttempts, func(ctx context.Context) error {
		attempt++
		err := s.press(ctx)
		if err != nil {
			s.logger.Warn("switchbot press failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("door: press %s: %w", s.cfg.DeviceID, err)
	}
	return nil
}

func (s *SwitchBot) press(ctx context.Context) error {
	body, err := json.Marshal(command{Command: "press", Parameter: "default", CommandType: "command"})
	if err != nil {
		return backoff.Permanent(err)
	}
	url := s.cfg.BaseURL + "/devices/" + s.cfg.DeviceID + "/commands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}

	nonce, err := newNonce()
	if err != nil {
		return backoff.Permanent(err)
	}
	t := strconv.FormatInt(s.clock.Now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json; charset=utf8")
	req.Header.Set("Authorization", s.cfg.Token)
	req.Header.Set("t", t)
	req.Header.Set("nonce", nonce)
	req.Header.Set("sign", Sign(s.cfg.Token, s.cfg.Secret, t, nonce))

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("switchbot: http %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return backoff.Permanent(fmt.Errorf("switchbot: http %d", resp.StatusCode))
	}
	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("switchbot: decode response: %w", err)
	}
	if r.StatusCode != statusOK {
		return fmt.Errorf("switchbot: status %d: %s", r.StatusCode, r.Message)
	}
	return nil
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

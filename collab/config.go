// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package collab

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/tandem-editor/tandem/lib/clock"
	"github.com/tandem-editor/tandem/transport"
)

// Config holds engine settings. The zero value is not usable —
// construct via ConfigFromEnv or set ServerURL and let New fill the
// remaining defaults.
type Config struct {
	// ServerURL is the collaboration server endpoint
	// (e.g., "ws://localhost:9400/collab"). Reconnection reuses it.
	ServerURL string `env:"TANDEM_SERVER_URL" yaml:"server_url"`

	// ShareBaseURL is the web prefix for share and invite links
	// (e.g., "https://tandem.dev/join"). The default permission a bare
	// share link grants is room policy on the server — the client
	// never assumes one.
	ShareBaseURL string `env:"TANDEM_SHARE_BASE_URL" envDefault:"https://tandem.dev/join" yaml:"share_base_url"`

	// HandshakeTimeout bounds dial plus hello/welcome exchange, per
	// attempt.
	HandshakeTimeout time.Duration `env:"TANDEM_HANDSHAKE_TIMEOUT" envDefault:"10s" yaml:"handshake_timeout"`

	// JoinTimeout bounds room create and join requests.
	JoinTimeout time.Duration `env:"TANDEM_JOIN_TIMEOUT" envDefault:"10s" yaml:"join_timeout"`

	// MaxConnectAttempts bounds both initial connection retries and
	// reconnection retries after a drop. Exhaustion settles the state
	// machine into StateError; there is no infinite retry loop.
	MaxConnectAttempts int `env:"TANDEM_MAX_CONNECT_ATTEMPTS" envDefault:"5" yaml:"max_connect_attempts"`

	// ReconnectBaseDelay is the first backoff step; each subsequent
	// attempt doubles it up to ReconnectMaxDelay.
	ReconnectBaseDelay time.Duration `env:"TANDEM_RECONNECT_BASE_DELAY" envDefault:"500ms" yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `env:"TANDEM_RECONNECT_MAX_DELAY" envDefault:"15s" yaml:"reconnect_max_delay"`

	// PresenceThrottle is the minimum spacing between outbound cursor
	// or selection broadcasts. The newest local position always
	// supersedes an unsent older one.
	PresenceThrottle time.Duration `env:"TANDEM_PRESENCE_THROTTLE" envDefault:"50ms" yaml:"presence_throttle"`

	// ChatRetentionLimit caps the in-memory chat log; the oldest
	// messages are dropped past it.
	ChatRetentionLimit int `env:"TANDEM_CHAT_RETENTION" envDefault:"500" yaml:"chat_retention"`

	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger `env:"-" yaml:"-"`

	// Clock abstracts time for tests. If nil, the real clock.
	Clock clock.Clock `env:"-" yaml:"-"`

	// Dialer opens transport connections. If nil, a WebSocket dialer
	// bounded by HandshakeTimeout.
	Dialer transport.Dialer `env:"-" yaml:"-"`
}

// ConfigFromEnv loads Config from TANDEM_* environment variables.
func ConfigFromEnv() (Config, error) {
	var config Config
	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("collab: parsing environment config: %w", err)
	}
	return config, nil
}

// withDefaults fills unset fields. Values that came through
// ConfigFromEnv already carry envDefault values; this covers directly
// constructed configs (tests, embedding editors).
func (c Config) withDefaults() Config {
	if c.ShareBaseURL == "" {
		c.ShareBaseURL = "https://tandem.dev/join"
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 10 * time.Second
	}
	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = 5
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 15 * time.Second
	}
	if c.PresenceThrottle <= 0 {
		c.PresenceThrottle = 50 * time.Millisecond
	}
	if c.ChatRetentionLimit <= 0 {
		c.ChatRetentionLimit = 500
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Dialer == nil {
		c.Dialer = &transport.WebSocketDialer{HandshakeTimeout: c.HandshakeTimeout}
	}
	return c
}

package config

import (
	"fmt"
	"os"
	"time"
)

// Default configuration values (production)
const (
	DefaultDomain   = "tavern.palfrey.net"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "" // Optional, empty by default
	DefaultTURNUser = ""
	DefaultTURNPass = ""

	// DefaultHeartbeat is how often the client pings the signaling server.
	// The ping doubles as the trigger for lazy reconnection, so it should
	// stay short enough that a dropped channel is noticed within a minute.
	DefaultHeartbeat = 30 * time.Second
)

// Config holds application configuration
type Config struct {
	// Domain is the signaling server domain
	Domain string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay routes all media through TURN
	ForceRelay bool

	// Heartbeat is the keep-alive ping interval
	Heartbeat time.Duration
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := opts.Domain
	if domain == "" {
		domain = os.Getenv("TAVERN_DOMAIN")
	}
	if domain == "" {
		domain = DefaultDomain
	}

	stunServer := opts.STUNServer
	if stunServer == "" {
		stunServer = os.Getenv("STUN_SERVER")
	}
	if stunServer == "" {
		stunServer = DefaultSTUN
	}

	turnServer := opts.TURNServer
	if turnServer == "" {
		turnServer = os.Getenv("TURN_SERVER")
	}
	if turnServer == "" {
		turnServer = DefaultTURN
	}

	turnUser := opts.TURNUser
	if turnUser == "" {
		turnUser = os.Getenv("TURN_USERNAME")
	}
	if turnUser == "" {
		turnUser = DefaultTURNUser
	}

	turnPass := opts.TURNPass
	if turnPass == "" {
		turnPass = os.Getenv("TURN_PASSWORD")
	}
	if turnPass == "" {
		turnPass = DefaultTURNPass
	}

	return &Config{
		Domain:     domain,
		STUNServer: stunServer,
		TURNServer: turnServer,
		TURNUser:   turnUser,
		TURNPass:   turnPass,
		ForceRelay: opts.ForceRelay,
		Heartbeat:  DefaultHeartbeat,
	}, nil
}

// WebSocketURL returns the signaling endpoint for a participant. The path is
// keyed by the participant id, so the server can associate the connection
// with the session identity on open.
func (c *Config) WebSocketURL(participantID string) string {
	return fmt.Sprintf("wss://%s/ws/%s", c.Domain, participantID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

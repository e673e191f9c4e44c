// Package config holds the runtime configuration of the server
package config

import (
	"os"
	"strconv"
	"time"
)

// Config collects every tunable of the server. The timer values exist
// here so tests can shrink them instead of waiting out real timeouts.
type Config struct {
	Port  string
	Debug bool

	// MatchRatingBand is the maximum rating difference between two
	// players the matchmaker will pair.
	MatchRatingBand int

	// MatchWaitTimeout is how long a player stays queued before being
	// told no opponent was found.
	MatchWaitTimeout time.Duration

	// AIMoveDelay is the pause before an AI move is requested once it
	// becomes the AI's turn.
	AIMoveDelay time.Duration

	// AbandonGrace is how long a multiplayer game stays paused after a
	// disconnect before the missing player forfeits.
	AbandonGrace time.Duration

	// SessionRetention is how long a finished session stays queryable
	// before it is purged.
	SessionRetention time.Duration
}

// Default returns the configuration matching production behavior.
func Default() *Config {
	return &Config{
		Port:             "8080",
		MatchRatingBand:  200,
		MatchWaitTimeout: 30 * time.Second,
		AIMoveDelay:      500 * time.Millisecond,
		AbandonGrace:     30 * time.Second,
		SessionRetention: 60 * time.Second,
	}
}

// LoadEnv overlays environment variables onto the config. Unset or
// malformed values leave the current value in place.
func (c *Config) LoadEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("MATCH_RATING_BAND"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MatchRatingBand = n
		}
	}
	if v := os.Getenv("MATCH_WAIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.MatchWaitTimeout = d
		}
	}
	if v := os.Getenv("AI_MOVE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.AIMoveDelay = d
		}
	}
	if v := os.Getenv("ABANDON_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.AbandonGrace = d
		}
	}
	if v := os.Getenv("SESSION_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.SessionRetention = d
		}
	}
}

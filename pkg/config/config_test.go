package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 200, cfg.MatchRatingBand)
	assert.Equal(t, 30*time.Second, cfg.MatchWaitTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.AIMoveDelay)
	assert.Equal(t, 30*time.Second, cfg.AbandonGrace)
	assert.Equal(t, 60*time.Second, cfg.SessionRetention)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MATCH_RATING_BAND", "150")
	t.Setenv("MATCH_WAIT_TIMEOUT", "10s")
	t.Setenv("ABANDON_GRACE", "not-a-duration")

	cfg := Default()
	cfg.LoadEnv()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 150, cfg.MatchRatingBand)
	assert.Equal(t, 10*time.Second, cfg.MatchWaitTimeout)
	// malformed values keep the default
	assert.Equal(t, 30*time.Second, cfg.AbandonGrace)
}

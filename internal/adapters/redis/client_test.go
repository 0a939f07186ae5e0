package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_GivesUpAfterAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 100 * time.Millisecond
	cfg.MaxAttempts = 2
	cfg.RetryInterval = time.Millisecond

	client, err := NewClient(context.Background(), cfg)

	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestNewClient_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"

	_, err := NewClient(ctx, cfg)

	require.ErrorIs(t, err, context.Canceled)
}

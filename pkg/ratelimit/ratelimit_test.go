package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("upstream status %d", e.code) }
func (e *statusErr) StatusCode() int { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassFatal},
		{"status 429", &statusErr{429}, ClassRateLimited},
		{"status 503", &statusErr{503}, ClassTransientNetwork},
		{"status 400", &statusErr{400}, ClassFatal},
		{"rate limit message", errors.New("Too Many Requests, please slow down"), ClassRateLimited},
		{"throttle message", errors.New("request was throttled"), ClassRateLimited},
		{"net error", &net.DNSError{Err: "lookup failed", IsTimeout: true}, ClassTransientNetwork},
		{"connection reset", errors.New("read tcp: connection reset by peer"), ClassTransientNetwork},
		{"timeout text", errors.New("context deadline exceeded: request timed out"), ClassTransientNetwork},
		{"unrelated", errors.New("invalid signature"), ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestBackoffSchedule(t *testing.T) {
	p := Policy{
		MaxAttempts:   5,
		RateLimitBase: 10 * time.Millisecond,
		RateLimitCap:  25 * time.Millisecond,
		TransientBase: 5 * time.Millisecond,
	}

	d, retry := p.Backoff(ClassRateLimited, 1)
	require.True(t, retry)
	assert.Equal(t, 10*time.Millisecond, d)

	d, retry = p.Backoff(ClassRateLimited, 4)
	require.True(t, retry)
	assert.Equal(t, 25*time.Millisecond, d, "rate-limit backoff is capped")

	d, retry = p.Backoff(ClassTransientNetwork, 3)
	require.True(t, retry)
	assert.Equal(t, 15*time.Millisecond, d, "transient backoff is linear")

	_, retry = p.Backoff(ClassFatal, 1)
	assert.False(t, retry, "fatal errors never retry")
}

func TestAcquireSlotEnforcesMinInterval(t *testing.T) {
	l := NewLimiter(20) // 50ms between slots
	l.maxJitter = 0

	ctx := context.Background()
	require.NoError(t, l.AcquireSlot(ctx))

	start := time.Now()
	require.NoError(t, l.AcquireSlot(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestAcquireSlotHonorsContext(t *testing.T) {
	l := NewLimiter(1)
	l.maxJitter = 0

	ctx := context.Background()
	require.NoError(t, l.AcquireSlot(ctx))

	cancelled, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.AcquireSlot(cancelled))
}

// Package ratelimit paces upstream requests and classifies failures
// into a retry policy.
package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"regexp"
	"time"

	"golang.org/x/time/rate"
)

// Class buckets an upstream failure for the retry policy.
type Class int

const (
	ClassFatal Class = iota
	ClassRateLimited
	ClassTransientNetwork
)

func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassTransientNetwork:
		return "transient_network"
	default:
		return "fatal"
	}
}

// StatusError is implemented by errors that carry an HTTP status code.
type StatusError interface {
	error
	StatusCode() int
}

// Limiter serializes callers so at least 1/rps elapses between granted
// slots, plus a small random jitter to avoid thundering-herd sync with
// other clients of the same upstream.
type Limiter struct {
	limiter   *rate.Limiter
	maxJitter time.Duration
}

func NewLimiter(rps int) *Limiter {
	if rps < 1 {
		rps = 1
	}
	interval := time.Second / time.Duration(rps)
	return &Limiter{
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		maxJitter: 100 * time.Millisecond,
	}
}

// AcquireSlot blocks until the next request slot is available or ctx is
// done.
func (l *Limiter) AcquireSlot(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	if l.maxJitter > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(rand.Int63n(int64(l.maxJitter)))):
		}
	}
	return nil
}

var (
	rateLimitPattern = regexp.MustCompile(`(?i)429|too many requests|rate limit|throttl`)
	transientPattern = regexp.MustCompile(`(?i)connection reset|connection refused|timeout|timed out|no such host|temporary failure|broken pipe|EOF`)
)

// Classify maps an upstream error onto a retry class. Status 429 and
// rate-limit phrasing win over generic network noise.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}

	var se StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode() == 429:
			return ClassRateLimited
		case se.StatusCode() >= 500:
			return ClassTransientNetwork
		}
	}

	msg := err.Error()
	if rateLimitPattern.MatchString(msg) {
		return ClassRateLimited
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransientNetwork
	}
	if transientPattern.MatchString(msg) {
		return ClassTransientNetwork
	}

	return ClassFatal
}

// Policy holds retry tuning. Zero values take the production defaults;
// tests shrink the durations.
type Policy struct {
	MaxAttempts   int
	RateLimitBase time.Duration
	RateLimitCap  time.Duration
	TransientBase time.Duration
	MaxJitter     time.Duration
}

func DefaultPolicy(maxAttempts int) Policy {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	return Policy{
		MaxAttempts:   maxAttempts,
		RateLimitBase: 5 * time.Second,
		RateLimitCap:  30 * time.Second,
		TransientBase: time.Second,
		MaxJitter:     time.Second,
	}
}

// Backoff returns how long to wait before retrying attempt (1-based)
// for the given class, or false when the class never retries.
// Rate-limited waits grow linearly up to a cap; transient network waits
// grow linearly without one. Both carry jitter.
func (p Policy) Backoff(class Class, attempt int) (time.Duration, bool) {
	if attempt < 1 {
		attempt = 1
	}
	switch class {
	case ClassRateLimited:
		d := p.RateLimitBase * time.Duration(attempt)
		if d > p.RateLimitCap {
			d = p.RateLimitCap
		}
		return d + p.jitter(), true
	case ClassTransientNetwork:
		return p.TransientBase*time.Duration(attempt) + p.jitter(), true
	default:
		return 0, false
	}
}

func (p Policy) jitter() time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(p.MaxJitter)))
}

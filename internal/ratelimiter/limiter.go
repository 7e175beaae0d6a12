package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Op is a kind of outbound Bot API call that is limited separately.
type Op string

const (
	OpSend   Op = "send"
	OpDelete Op = "delete"
)

// Limiters holds one token bucket limiter per outbound operation.
// Burst is set equal to the rate so no extra burst capacity is allowed
// beyond the configured per-second maximum.
type Limiters struct {
	limiters map[Op]*rate.Limiter
}

// New creates Limiters with ratePerSec tokens per second per operation.
// A non-positive rate disables limiting.
func New(ratePerSec int) *Limiters {
	r := rate.Limit(ratePerSec)
	burst := ratePerSec
	if ratePerSec <= 0 {
		r, burst = rate.Inf, 1
	}

	return &Limiters{
		limiters: map[Op]*rate.Limiter{
			OpSend:   rate.NewLimiter(r, burst),
			OpDelete: rate.NewLimiter(r, burst),
		},
	}
}

// Wait blocks until the operation's limiter grants a token.
// Called immediately before each Bot API call.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (l *Limiters) Wait(ctx context.Context, op Op) error {
	lim, ok := l.limiters[op]
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}

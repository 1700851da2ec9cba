package utils

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter spaces out page openings so the sites are not hit in bursts
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows perSecond events per second with a burst of one.
// A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Wait blocks until the next event is allowed or ctx is done
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Package ratelimiter throttles inbound chat traffic per author so one noisy
// or hostile peer cannot flood the channel stores.
package ratelimiter

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AuthorLimiter applies a token bucket per author id and periodically evicts
// idle entries.
type AuthorLimiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	byAuthor map[string]*bucket
	hits     uint64
	idleTTL  time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates an author-keyed limiter; returns nil if args are invalid. A nil
// limiter allows everything, so callers can pass it through unconditionally.
func New(messagesPerSecond float64, burst int, idleTTL time.Duration) *AuthorLimiter {
	if messagesPerSecond <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &AuthorLimiter{
		limit:    rate.Limit(messagesPerSecond),
		burst:    burst,
		byAuthor: make(map[string]*bucket),
		idleTTL:  idleTTL,
	}
}

// Allow reports whether one message from the author can be accepted at now.
func (l *AuthorLimiter) Allow(authorID string, now time.Time) bool {
	if l == nil {
		return true
	}
	authorID = strings.TrimSpace(authorID)
	if authorID == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byAuthor[authorID]
	if !ok {
		b = &bucket{
			limiter:  rate.NewLimiter(l.limit, l.burst),
			lastSeen: now,
		}
		l.byAuthor[authorID] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for id, entry := range l.byAuthor {
			if entry.lastSeen.Before(cutoff) {
				delete(l.byAuthor, id)
			}
		}
	}

	return allowed
}

// Package expiry computes license validity windows. Pure arithmetic, no
// persistence: callers decide what to do with a negative remaining count.
package expiry

import (
	"math"
	"time"
)

// LifetimeDaysRemaining is the sentinel for keys that never expire.
const LifetimeDaysRemaining = -1

type Expiry struct {
	ExpiresAt     *time.Time
	DaysRemaining int
}

// Compute derives the expiry timestamp and days remaining from the moment a
// key was activated. durationDays 0 means lifetime: no expiry, sentinel -1.
// DaysRemaining is the ceiling of the remaining window in 24h days and may
// be negative once the window has passed.
func Compute(activatedAt time.Time, durationDays int, now time.Time) Expiry {
	if durationDays <= 0 {
		return Expiry{ExpiresAt: nil, DaysRemaining: LifetimeDaysRemaining}
	}

	expiresAt := activatedAt.Add(time.Duration(durationDays) * 24 * time.Hour)
	remaining := int(math.Ceil(expiresAt.Sub(now).Hours() / 24))

	return Expiry{ExpiresAt: &expiresAt, DaysRemaining: remaining}
}

// Expired reports whether a computed window has run out. Lifetime keys are
// never expired.
func (e Expiry) Expired() bool {
	return e.ExpiresAt != nil && e.DaysRemaining <= 0
}

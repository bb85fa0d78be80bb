package model

import (
	"math"
	"time"
)

// IsExpired reports whether an optional expiry has passed at now.
// A nil expiry never expires; an expiry equal to now counts as expired.
func IsExpired(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return !expiresAt.After(now)
}

// DaysRemaining is ceil((expiresAt - now) / 24h) floored at zero.
func DaysRemaining(expiresAt *time.Time, now time.Time) *int {
	if expiresAt == nil {
		return nil
	}
	left := expiresAt.Sub(now)
	days := 0
	if left > 0 {
		days = int(math.Ceil(left.Hours() / 24))
	}
	return &days
}

// CurrentEntitlement picks the most recently created entitling
// subscription. Equal creation times fall back to the higher ID.
func CurrentEntitlement(subs []Subscription, now time.Time) *Subscription {
	var best *Subscription
	for i := range subs {
		s := &subs[i]
		if !s.IsEntitling(now) {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) ||
			(s.CreatedAt.Equal(best.CreatedAt) && s.ID > best.ID) {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

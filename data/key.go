package data

import "time"

// TTL sentinels returned by Key.TimeToLive.
const (
	NoExpiry   int64 = -1
	ExpiredTTL int64 = -2
)

// Key identifies an entry in a Database.
//
// Keys compare by Name only; ExpiresAt is metadata (the zero time means the key
// never expires).
type Key struct {
	Name      string
	ExpiresAt time.Time
}

// SafeKey creates a key with no expiration.
func SafeKey(name string) Key {
	return Key{Name: name}
}

// SafeKeyTTL creates a key that expires ttl after now.
func SafeKeyTTL(name string, ttl time.Duration, now time.Time) Key {
	return Key{Name: name, ExpiresAt: now.Add(ttl)}
}

// HasExpiry reports whether the key has an expiration instant.
func (k Key) HasExpiry() bool {
	return !k.ExpiresAt.IsZero()
}

// IsExpired reports whether the key has an expiration and now has reached it.
func (k Key) IsExpired(now time.Time) bool {
	return k.HasExpiry() && !now.Before(k.ExpiresAt)
}

// TimeToLive returns the remaining lifetime in milliseconds, NoExpiry if the
// key has no expiration, or ExpiredTTL once it has expired.
//
// The remaining time is rounded up, so a live key never reports 0.
func (k Key) TimeToLive(now time.Time) int64 {
	if !k.HasExpiry() {
		return NoExpiry
	}
	if k.IsExpired(now) {
		return ExpiredTTL
	}
	d := k.ExpiresAt.Sub(now)
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}

// WithoutExpiry returns a copy of the key that never expires.
func (k Key) WithoutExpiry() Key {
	return Key{Name: k.Name}
}

func (k Key) String() string {
	return k.Name
}

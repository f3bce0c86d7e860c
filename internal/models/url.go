package models

import "time"

// ShortURL represents a shortened URL and its associated metadata.
type ShortURL struct {
	// ID is the unique identifier for the shortened URL record.
	ID int64
	// ShortCode is the short code or key associated with the original URL.
	ShortCode string
	// OriginalURL is the original, full-length URL that the short code points to.
	OriginalURL string
	// ValidityMinutes is the lifetime of the record in minutes, fixed at creation.
	ValidityMinutes int64
	// IsActive indicates whether the record can still serve redirects.
	// It starts true and is flipped to false exactly once when expiry is detected.
	IsActive bool
	// CreatedAt is the timestamp indicating when the shortened URL was created.
	CreatedAt time.Time
	// ExpiresAt is CreatedAt plus ValidityMinutes, derived once and stored.
	ExpiresAt time.Time
	// Clicks holds the recorded redirect events, newest first.
	Clicks []Click
}

// ExpiredAt reports whether the record is past its expiry at the given instant.
// The comparison is strict: a record whose expiry equals now is still fresh.
func (u *ShortURL) ExpiredAt(now time.Time) bool {
	return now.After(u.ExpiresAt)
}

// Click represents a single recorded redirect event.
type Click struct {
	ID         int64
	ShortURLID int64
	Timestamp  time.Time
	Referrer   string
	UserAgent  string
	IP         string
	Location   string
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mkravets/shortlink/internal/database"
	"github.com/mkravets/shortlink/internal/models"
	"github.com/mkravets/shortlink/internal/shortcode"
)

var (
	// ErrInvalidURL is returned when the original URL doesn't parse as an absolute URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidValidity is returned when the validity period is not a positive number of minutes.
	ErrInvalidValidity = errors.New("invalid validity period")
	// ErrInvalidShortCode is returned when a custom short code doesn't match the accepted shape.
	ErrInvalidShortCode = errors.New("invalid short code")
	// ErrMaxRetriesExceeded is returned when the maximum number of retries for generating a short code is exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")
)

// DefaultValidityMinutes is applied when a creation request omits the validity period.
const DefaultValidityMinutes = 30

// Location resolution is not implemented, every click records this placeholder.
const unknownLocation = "Unknown"

// URLRepository defines the interface for working with URLs at the business logic layer.
type URLRepository interface {
	// Create inserts a new shortened URL into the repository.
	// Returns database.ErrShortCodeExists if the short code is already taken.
	Create(ctx context.Context, shortCode, originalURL string, validityMinutes int64, createdAt, expiresAt time.Time) (*models.ShortURL, error)

	// GetByShortCode retrieves a URL and its click log by short code.
	// Returns database.ErrURLNotFound if no record owns the code.
	GetByShortCode(ctx context.Context, shortCode string) (*models.ShortURL, error)

	// Exists reports whether a short code is already taken.
	Exists(ctx context.Context, shortCode string) (bool, error)

	// Deactivate marks the record with the given id inactive. Idempotent.
	Deactivate(ctx context.Context, id int64) error

	// DeactivateMany marks all records with the given ids inactive. Idempotent.
	DeactivateMany(ctx context.Context, ids []int64) error

	// ListActive returns all records still marked active, newest first,
	// including records whose expiry has not been detected yet.
	ListActive(ctx context.Context) ([]models.ShortURL, error)

	// AppendClick records a redirect event. An unknown short code is a no-op.
	AppendClick(ctx context.Context, shortCode string, click models.Click) (*models.Click, error)

	// Ping reports whether the underlying store is reachable.
	Ping(ctx context.Context) error
}

// CreateURLParams carries the validated-at-the-boundary input of CreateShortURL.
type CreateURLParams struct {
	OriginalURL     string
	ValidityMinutes int64
	// CustomCode, when non-empty, is used instead of a generated code.
	CustomCode string
}

// ClickParams carries the optional request metadata captured for a click.
type ClickParams struct {
	Referrer  string
	UserAgent string
	IP        string
}

// URLService provides methods to manage the short URL lifecycle: creation,
// resolution with lazy expiry, statistics and click recording.
// The service uses a URLRepository interface to interact with the underlying database.
type URLService struct {
	repo URLRepository
	now  func() time.Time
}

// NewURLService creates a new instance of URLService with the provided repository.
func NewURLService(repo URLRepository) *URLService {
	return &URLService{
		repo: repo,
		now:  time.Now,
	}
}

// CreateShortURL validates the input, settles on a unique short code and persists
// the record. The expiry is derived once: createdAt + validity minutes.
//
// A supplied custom code must match the accepted shape and be free; a generated
// code is retried a bounded number of times, widening the code length once the
// retries at the default length are used up. The unique constraint on the store
// remains the authoritative collision guard; the Exists probe is a fast path.
func (s *URLService) CreateShortURL(ctx context.Context, params CreateURLParams) (*models.ShortURL, error) {
	const op = "service.URLService.CreateShortURL"
	const maxRetries = 5

	if !isAbsoluteURL(params.OriginalURL) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidURL)
	}
	if params.ValidityMinutes <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidValidity)
	}

	createdAt := s.now().UTC()
	expiresAt := createdAt.Add(time.Duration(params.ValidityMinutes) * time.Minute)

	if params.CustomCode != "" {
		if !shortcode.IsValid(params.CustomCode) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidShortCode)
		}

		taken, err := s.repo.Exists(ctx, params.CustomCode)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to check short code: %w", op, err)
		}
		if taken {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}

		url, err := s.repo.Create(ctx, params.CustomCode, params.OriginalURL, params.ValidityMinutes, createdAt, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to create short url: %w", op, err)
		}

		return url, nil
	}

	length := shortcode.DefaultLength

	for i := 0; i < 2*maxRetries; i++ {
		if i == maxRetries {
			length = shortcode.ExtendedLength
		}

		code, err := shortcode.Generate(length)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate short code: %w", op, err)
		}

		taken, err := s.repo.Exists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to check short code: %w", op, err)
		}
		if taken {
			continue
		}

		url, err := s.repo.Create(ctx, code, params.OriginalURL, params.ValidityMinutes, createdAt, expiresAt)
		if err != nil {
			if errors.Is(err, database.ErrShortCodeExists) {
				continue
			}

			return nil, fmt.Errorf("%s: failed to create short url: %w", op, err)
		}

		return url, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// ResolveShortCode retrieves the record behind a short code for redirecting.
// Absent and inactive records resolve to database.ErrURLNotFound. A record whose
// expiry has passed is deactivated on the spot and then also reported as not
// found (lazy expiry-on-read).
func (s *URLService) ResolveShortCode(ctx context.Context, shortCode string) (*models.ShortURL, error) {
	const op = "service.URLService.ResolveShortCode"

	url, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	if !url.IsActive {
		return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	if url.ExpiredAt(s.now()) {
		if err := s.repo.Deactivate(ctx, url.ID); err != nil {
			return nil, fmt.Errorf("%s: failed to deactivate expired url: %w", op, err)
		}

		return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	return url, nil
}

// ListActiveURLs returns all still-unexpired active records, newest first.
// Records discovered to be past their expiry are deactivated in one batch and
// excluded from the result. The two phases run without a shared transaction,
// so the sweep is best-effort cleanup rather than a correctness guarantee.
func (s *URLService) ListActiveURLs(ctx context.Context) ([]models.ShortURL, error) {
	const op = "service.URLService.ListActiveURLs"

	urls, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list urls: %w", op, err)
	}

	now := s.now()
	fresh := make([]models.ShortURL, 0, len(urls))
	var expiredIDs []int64

	for _, url := range urls {
		// The sweep counts expires_at <= now as expired, so an expiry equal to
		// the sweep instant is swept while the resolve path would still serve it.
		if !url.ExpiresAt.After(now) {
			expiredIDs = append(expiredIDs, url.ID)
			continue
		}
		fresh = append(fresh, url)
	}

	if len(expiredIDs) > 0 {
		if err := s.repo.DeactivateMany(ctx, expiredIDs); err != nil {
			return nil, fmt.Errorf("%s: failed to deactivate expired urls: %w", op, err)
		}
	}

	return fresh, nil
}

// GetURLStats retrieves the record behind a short code for the statistics view.
// The freshness rule matches ResolveShortCode, but an expired record is only
// reported as not found, not deactivated; the next redirect attempt performs
// the actual deactivation.
func (s *URLService) GetURLStats(ctx context.Context, shortCode string) (*models.ShortURL, error) {
	const op = "service.URLService.GetURLStats"

	url, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get url stats: %w", op, err)
	}

	if !url.IsActive || url.ExpiredAt(s.now()) {
		return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	return url, nil
}

// RecordClick appends a click with the captured request metadata to the record
// owning the short code. An unknown short code drops the click silently; the
// caller treats any returned error as log-and-continue.
func (s *URLService) RecordClick(ctx context.Context, shortCode string, params ClickParams) error {
	const op = "service.URLService.RecordClick"

	click := models.Click{
		Timestamp: s.now().UTC(),
		Referrer:  params.Referrer,
		UserAgent: params.UserAgent,
		IP:        params.IP,
		Location:  unknownLocation,
	}

	if _, err := s.repo.AppendClick(ctx, shortCode, click); err != nil {
		return fmt.Errorf("%s: failed to record click: %w", op, err)
	}

	return nil
}

// Ping reports whether the backing store is reachable.
func (s *URLService) Ping(ctx context.Context) error {
	const op = "service.URLService.Ping"

	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func isAbsoluteURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && u.Scheme != "" && u.Host != ""
}

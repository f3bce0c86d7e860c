package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mkravets/shortlink/internal/database"
	"github.com/mkravets/shortlink/internal/models"
)

type urlRecord struct {
	ID              int64     `db:"id"`
	ShortCode       string    `db:"short_code"`
	OriginalURL     string    `db:"original_url"`
	ValidityMinutes int64     `db:"validity_minutes"`
	IsActive        bool      `db:"is_active"`
	CreatedAt       time.Time `db:"created_at"`
	ExpiresAt       time.Time `db:"expires_at"`
}

func (r *urlRecord) ToShortURL() *models.ShortURL {
	return &models.ShortURL{
		ID:              r.ID,
		ShortCode:       r.ShortCode,
		OriginalURL:     r.OriginalURL,
		ValidityMinutes: r.ValidityMinutes,
		IsActive:        r.IsActive,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

type clickRecord struct {
	ID         int64          `db:"id"`
	ShortURLID int64          `db:"short_url_id"`
	ClickedAt  time.Time      `db:"clicked_at"`
	Referrer   sql.NullString `db:"referrer"`
	UserAgent  sql.NullString `db:"user_agent"`
	IP         sql.NullString `db:"ip"`
	Location   sql.NullString `db:"location"`
}

func (r *clickRecord) ToClick() models.Click {
	return models.Click{
		ID:         r.ID,
		ShortURLID: r.ShortURLID,
		Timestamp:  r.ClickedAt,
		Referrer:   r.Referrer.String,
		UserAgent:  r.UserAgent.String,
		IP:         r.IP.String,
		Location:   r.Location.String,
	}
}

type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{
		db: db,
	}
}

// Create inserts a new short URL record. The short_code column carries a unique
// constraint, which is the authoritative uniqueness guarantee; a violation is
// remapped to database.ErrShortCodeExists.
func (r *URLRepository) Create(ctx context.Context, shortCode, originalURL string, validityMinutes int64, createdAt, expiresAt time.Time) (*models.ShortURL, error) {
	const op = "database.postgres.URLRepository.Create"

	rec := new(urlRecord)
	query := `INSERT INTO short_urls(short_code, original_url, validity_minutes, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode, originalURL, validityMinutes, createdAt, expiresAt)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to create url record: %w", op, err)
	}

	return rec.ToShortURL(), nil
}

// GetByShortCode retrieves a short URL record together with its click log,
// newest click first.
func (r *URLRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.ShortURL, error) {
	const op = "database.postgres.URLRepository.GetByShortCode"

	rec := new(urlRecord)
	query := `SELECT * FROM short_urls
		WHERE short_code = $1`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	url := rec.ToShortURL()

	clicks, err := r.clicksFor(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get click records: %w", op, err)
	}
	url.Clicks = clicks

	return url, nil
}

// Exists probes whether a short code is already taken. It serves as a fast path
// only; Create still enforces uniqueness through the database constraint.
func (r *URLRepository) Exists(ctx context.Context, shortCode string) (bool, error) {
	const op = "database.postgres.URLRepository.Exists"

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM short_urls WHERE short_code = $1)`

	if err := r.db.GetContext(ctx, &exists, query, shortCode); err != nil {
		return false, fmt.Errorf("%s: failed to check short code: %w", op, err)
	}

	return exists, nil
}

// Deactivate sets is_active to false for the given record id. The operation is
// idempotent: deactivating an already inactive or unknown id is not an error.
func (r *URLRepository) Deactivate(ctx context.Context, id int64) error {
	const op = "database.postgres.URLRepository.Deactivate"

	query := `UPDATE short_urls
		SET is_active = FALSE
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%s: failed to deactivate url record: %w", op, err)
	}

	return nil
}

// DeactivateMany sets is_active to false for all given record ids in one statement.
func (r *URLRepository) DeactivateMany(ctx context.Context, ids []int64) error {
	const op = "database.postgres.URLRepository.DeactivateMany"

	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`UPDATE short_urls SET is_active = FALSE WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("%s: failed to build query: %w", op, err)
	}

	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("%s: failed to deactivate url records: %w", op, err)
	}

	return nil
}

// ListActive returns all records still marked active, newest first, including
// records whose expiry has passed but has not yet been detected. Click logs are
// attached to each record, newest click first.
func (r *URLRepository) ListActive(ctx context.Context) ([]models.ShortURL, error) {
	const op = "database.postgres.URLRepository.ListActive"

	var recs []urlRecord
	query := `SELECT * FROM short_urls
		WHERE is_active = TRUE
		ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &recs, query); err != nil {
		return nil, fmt.Errorf("%s: failed to list url records: %w", op, err)
	}

	urls := make([]models.ShortURL, 0, len(recs))
	if len(recs) == 0 {
		return urls, nil
	}

	ids := make([]int64, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}

	clickQuery, args, err := sqlx.In(`SELECT * FROM clicks
		WHERE short_url_id IN (?)
		ORDER BY clicked_at DESC`, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to build click query: %w", op, err)
	}

	var clickRecs []clickRecord
	if err := r.db.SelectContext(ctx, &clickRecs, r.db.Rebind(clickQuery), args...); err != nil {
		return nil, fmt.Errorf("%s: failed to list click records: %w", op, err)
	}

	clicksByURL := make(map[int64][]models.Click, len(recs))
	for _, rec := range clickRecs {
		clicksByURL[rec.ShortURLID] = append(clicksByURL[rec.ShortURLID], rec.ToClick())
	}

	for _, rec := range recs {
		url := rec.ToShortURL()
		url.Clicks = clicksByURL[rec.ID]
		urls = append(urls, *url)
	}

	return urls, nil
}

// AppendClick records a redirect event against the record owning the short code.
// An unknown short code is a silent no-op so that click logging can never fail
// a redirect on its own.
func (r *URLRepository) AppendClick(ctx context.Context, shortCode string, click models.Click) (*models.Click, error) {
	const op = "database.postgres.URLRepository.AppendClick"

	var shortURLID int64
	idQuery := `SELECT id FROM short_urls
		WHERE short_code = $1`

	err := r.db.GetContext(ctx, &shortURLID, idQuery, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	rec := new(clickRecord)
	query := `INSERT INTO clicks(short_url_id, clicked_at, referrer, user_agent, ip, location)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`

	err = r.db.GetContext(ctx, rec, query, shortURLID, click.Timestamp,
		nullString(click.Referrer), nullString(click.UserAgent), nullString(click.IP), nullString(click.Location))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create click record: %w", op, err)
	}

	result := rec.ToClick()

	return &result, nil
}

// Ping reports whether the underlying database connection is alive.
func (r *URLRepository) Ping(ctx context.Context) error {
	const op = "database.postgres.URLRepository.Ping"

	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s: database is unreachable: %w", op, err)
	}

	return nil
}

func (r *URLRepository) clicksFor(ctx context.Context, shortURLID int64) ([]models.Click, error) {
	var recs []clickRecord
	query := `SELECT * FROM clicks
		WHERE short_url_id = $1
		ORDER BY clicked_at DESC`

	if err := r.db.SelectContext(ctx, &recs, query, shortURLID); err != nil {
		return nil, err
	}

	clicks := make([]models.Click, 0, len(recs))
	for _, rec := range recs {
		clicks = append(clicks, rec.ToClick())
	}

	return clicks, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

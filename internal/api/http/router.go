package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/mkravets/shortlink/internal/models"
	"github.com/mkravets/shortlink/internal/service"
)

// URLService defines the interface for the core URL shortening business logic.
type URLService interface {
	// CreateShortURL validates the input, settles on a unique short code and
	// persists the record. It returns the created record or an error naming
	// the validation or collision failure.
	CreateShortURL(ctx context.Context, params service.CreateURLParams) (*models.ShortURL, error)

	// ResolveShortCode retrieves the record behind a short code for redirecting,
	// deactivating it on the spot if its expiry has passed.
	ResolveShortCode(ctx context.Context, shortCode string) (*models.ShortURL, error)

	// ListActiveURLs returns all still-unexpired active records, newest first,
	// sweeping detected-expired records in the process.
	ListActiveURLs(ctx context.Context) ([]models.ShortURL, error)

	// GetURLStats retrieves the record behind a short code for the statistics
	// view without mutating it.
	GetURLStats(ctx context.Context, shortCode string) (*models.ShortURL, error)

	// RecordClick appends a click with the captured request metadata.
	RecordClick(ctx context.Context, shortCode string, params service.ClickParams) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// getValidate initializes a new validator instance for validating incoming request payloads.
// It customizes tag name extraction from struct fields to match JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter initializes and returns a new HTTP router with all routes and middleware configured.
// baseURL, when non-empty, is used to compose public short links; otherwise the
// scheme and host of each request are used.
func NewRouter(logger *httplog.Logger, urlSvc URLService, baseURL string) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"POST", "GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.NotFound(handleRouteNotFound)

	validate := getValidate()
	links := linkBuilder{baseURL: baseURL}

	r.Get("/health", handleHealth(urlSvc))

	r.Route("/shorturls", func(r chi.Router) {
		r.Post("/", handleCreateShortURL(urlSvc, validate, links))
		r.Get("/", handleListShortURLs(urlSvc, links))
		r.Get("/{shortCode}", handleGetURLStats(urlSvc, links))
	})

	r.Get("/{shortCode}", handleRedirect(urlSvc))

	return r
}

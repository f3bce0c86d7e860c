package http

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/mkravets/shortlink/internal/database"
	"github.com/mkravets/shortlink/internal/models"
	"github.com/mkravets/shortlink/internal/service"
	"github.com/mkravets/shortlink/internal/shortcode"
	"github.com/mkravets/shortlink/pkg/response"
)

const serviceName = "URL Shortener Service"

// linkBuilder composes public short links from a configured base URL,
// falling back to the scheme and host of the inbound request.
type linkBuilder struct {
	baseURL string
}

func (b linkBuilder) Build(r *http.Request, shortCode string) string {
	base := b.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}

	return strings.TrimSuffix(base, "/") + "/" + shortCode
}

// createURLRequest represents the request payload for creating a shortened URL.
type createURLRequest struct {
	URL       string `json:"url" validate:"required,url"`
	Validity  *int64 `json:"validity,omitempty" validate:"omitempty,gt=0"`
	Shortcode string `json:"shortcode,omitempty" validate:"omitempty,alphanum,min=3,max=20"`
}

// createURLResponse represents the response payload for a successful creation.
type createURLResponse struct {
	ShortLink string `json:"shortLink"`
	Expiry    string `json:"expiry"`
}

type clickResponse struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	IP        string `json:"ip,omitempty"`
	Location  string `json:"location,omitempty"`
}

// statsResponse represents the statistics view of a single shortened URL.
type statsResponse struct {
	Shortcode   string          `json:"shortcode"`
	OriginalURL string          `json:"originalUrl"`
	ShortLink   string          `json:"shortLink"`
	CreatedAt   string          `json:"createdAt"`
	ExpiresAt   string          `json:"expiresAt"`
	TotalClicks int             `json:"totalClicks"`
	Clicks      []clickResponse `json:"clicks"`
}

// urlListItem represents one record in the listing of active shortened URLs.
type urlListItem struct {
	ID          int64           `json:"id"`
	OriginalURL string          `json:"originalUrl"`
	Shortcode   string          `json:"shortcode"`
	ShortLink   string          `json:"shortLink"`
	CreatedAt   string          `json:"createdAt"`
	ExpiresAt   string          `json:"expiresAt"`
	Validity    int64           `json:"validity"`
	IsActive    bool            `json:"isActive"`
	Clicks      []clickResponse `json:"clicks"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
	Database  string `json:"database"`
}

func toClickResponses(clicks []models.Click) []clickResponse {
	out := make([]clickResponse, 0, len(clicks))
	for _, click := range clicks {
		out = append(out, clickResponse{
			ID:        click.ID,
			Timestamp: click.Timestamp.Format(time.RFC3339),
			Referrer:  click.Referrer,
			UserAgent: click.UserAgent,
			IP:        click.IP,
			Location:  click.Location,
		})
	}

	return out
}

// handleHealth reports service and database liveness. The endpoint always
// answers 200; a failing store is reflected in the body, not the status code.
func handleHealth(svc URLService) http.HandlerFunc {
	const op = "api.http.handleHealth"

	return func(w http.ResponseWriter, r *http.Request) {
		dbStatus := "OK"
		status := "OK"

		if err := svc.Ping(r.Context()); err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})
			dbStatus = "ERROR"
			status = "DEGRADED"
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, healthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Service:   serviceName,
			Database:  dbStatus,
		})
	}
}

// handleCreateShortURL handles POST requests to shorten a URL.
//
// The request must contain a valid absolute URL, optionally a validity period
// in minutes and a custom shortcode. The handler validates the input, calls the
// URL shortening service and returns the public short link with its expiry.
func handleCreateShortURL(svc URLService, validate *validator.Validate, links linkBuilder) http.HandlerFunc {
	const op = "api.http.handleCreateShortURL"

	return func(w http.ResponseWriter, r *http.Request) {
		var req createURLRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.URLRequiredResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.InvalidRequestBodyResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, validationErrorResponse(err))
			return
		}

		validity := int64(service.DefaultValidityMinutes)
		if req.Validity != nil {
			validity = *req.Validity
		}

		url, err := svc.CreateShortURL(r.Context(), service.CreateURLParams{
			OriginalURL:     req.URL,
			ValidityMinutes: validity,
			CustomCode:      req.Shortcode,
		})
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidURL):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.InvalidURLResponse)
			case errors.Is(err, service.ErrInvalidValidity):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.InvalidValidityResponse)
			case errors.Is(err, service.ErrInvalidShortCode):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.InvalidShortcodeResponse)
			case errors.Is(err, database.ErrShortCodeExists):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.ShortcodeExistsResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerError("Failed to create short URL"))
			}
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, createURLResponse{
			ShortLink: links.Build(r, url.ShortCode),
			Expiry:    url.ExpiresAt.Format(time.RFC3339),
		})
	}
}

// validationErrorResponse maps a validator error on the create payload to the
// error body of the offending field, mirroring the service-level taxonomy.
func validationErrorResponse(err error) response.ErrorResponse {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return response.InvalidRequestBodyResponse
	}

	fieldErr := validationErrs[0]
	switch fieldErr.Field() {
	case "url":
		if fieldErr.Tag() == "required" {
			return response.URLRequiredResponse
		}
		return response.InvalidURLResponse
	case "validity":
		return response.InvalidValidityResponse
	case "shortcode":
		return response.InvalidShortcodeResponse
	default:
		return response.InvalidRequestBodyResponse
	}
}

// handleGetURLStats handles GET requests for the statistics of one shortened URL.
//
// A malformed shortcode is rejected with 400 before any lookup; an unknown,
// inactive or expired shortcode yields 404. The two outcomes stay distinct.
func handleGetURLStats(svc URLService, links linkBuilder) http.HandlerFunc {
	const op = "api.http.handleGetURLStats"

	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "shortCode")

		if !shortcode.IsValid(code) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.InvalidShortcodeResponse)
			return
		}

		url, err := svc.GetURLStats(r.Context(), code)
		if err != nil {
			if errors.Is(err, database.ErrURLNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ShortcodeNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerError("Failed to retrieve statistics"))
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, statsResponse{
			Shortcode:   url.ShortCode,
			OriginalURL: url.OriginalURL,
			ShortLink:   links.Build(r, url.ShortCode),
			CreatedAt:   url.CreatedAt.Format(time.RFC3339),
			ExpiresAt:   url.ExpiresAt.Format(time.RFC3339),
			TotalClicks: len(url.Clicks),
			Clicks:      toClickResponses(url.Clicks),
		})
	}
}

// handleListShortURLs handles GET requests for all currently active, unexpired
// shortened URLs, newest first, including their click logs.
func handleListShortURLs(svc URLService, links linkBuilder) http.HandlerFunc {
	const op = "api.http.handleListShortURLs"

	return func(w http.ResponseWriter, r *http.Request) {
		urls, err := svc.ListActiveURLs(r.Context())
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerError("Failed to retrieve short URLs"))
			return
		}

		items := make([]urlListItem, 0, len(urls))
		for _, url := range urls {
			items = append(items, urlListItem{
				ID:          url.ID,
				OriginalURL: url.OriginalURL,
				Shortcode:   url.ShortCode,
				ShortLink:   links.Build(r, url.ShortCode),
				CreatedAt:   url.CreatedAt.Format(time.RFC3339),
				ExpiresAt:   url.ExpiresAt.Format(time.RFC3339),
				Validity:    url.ValidityMinutes,
				IsActive:    url.IsActive,
				Clicks:      toClickResponses(url.Clicks),
			})
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, items)
	}
}

// handleRedirect handles GET requests on a bare shortcode path.
//
// The shortcode is resolved through the service, a click is recorded with the
// request metadata and the client is redirected to the original URL. A click
// recording failure is logged and never blocks the redirect.
func handleRedirect(svc URLService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "shortCode")

		if !shortcode.IsValid(code) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.InvalidShortcodeResponse)
			return
		}

		url, err := svc.ResolveShortCode(r.Context(), code)
		if err != nil {
			if errors.Is(err, database.ErrURLNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ShortcodeNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err, "short_code": code})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerError("Failed to process redirect"))
			return
		}

		err = svc.RecordClick(r.Context(), code, service.ClickParams{
			Referrer:  r.Referer(),
			UserAgent: r.UserAgent(),
			IP:        r.RemoteAddr,
		})
		if err != nil {
			// The redirect must succeed even if analytics logging fails.
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "click_err": err, "short_code": code})
		}

		http.Redirect(w, r, url.OriginalURL, http.StatusFound)
	}
}

func handleRouteNotFound(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, response.RouteNotFoundResponse)
}

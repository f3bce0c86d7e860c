package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jmoiron/sqlx"
	"github.com/mkravets/shortlink/internal/config"
	"github.com/mkravets/shortlink/internal/database/postgres"
	"github.com/mkravets/shortlink/internal/service"
	"github.com/mkravets/shortlink/pkg/response"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	api "github.com/mkravets/shortlink/internal/api/http"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const baseURL = "http://sho.rt"

type APITestSuite struct {
	suite.Suite
	pgCont  testcontainers.Container
	cfg     config.Postgres
	db      *sqlx.DB
	urlRepo *postgres.URLRepository
	urlSvc  *service.URLService
	logger  *httplog.Logger
	server  *httptest.Server
	e       *httpexpect.Expect
}

func (suite *APITestSuite) SetupSuite() {
	ctx := context.Background()

	pgUser := "test"
	pgPassword := "test"
	pgDB := "shortlink"

	var err error
	suite.pgCont, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:16-alpine",
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDB,
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForListeningPort("5432/tcp"),
		},
		Started: true,
	})
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %v", err)
	}
	suite.T().Cleanup(func() {
		if err := suite.pgCont.Terminate(ctx); err != nil {
			suite.T().Fatalf("Failed to terminate postgres container: %v", err)
		}
	})

	pgHost, err := suite.pgCont.Host(ctx)
	if err != nil {
		suite.T().Fatalf("Failed to get postgres container host: %v", err)
	}

	pgPort, err := suite.pgCont.MappedPort(ctx, "5432")
	if err != nil {
		suite.T().Fatalf("Failed to get postgres container port: %v", err)
	}

	suite.cfg = config.Postgres{
		User:     pgUser,
		Password: pgPassword,
		Host:     pgHost,
		Port:     pgPort.Int(),
		DB:       pgDB,
		SSLMode:  "disable",
	}

	suite.db, err = sqlx.Connect("pgx", suite.cfg.DSN())
	if err != nil {
		suite.T().Fatalf("Failed to connect to database: %v", err)
	}
	suite.T().Cleanup(func() {
		if err := suite.db.Close(); err != nil {
			suite.T().Fatalf("Failed to close database: %v", err)
		}
	})

	migrationPath := "file://../../migrations"

	m, err := migrate.New(migrationPath, suite.cfg.DSN())
	if err != nil {
		suite.T().Fatalf("Failed to initialize migrations: %v", err)
	}

	if err := m.Up(); err != nil {
		suite.T().Fatalf("Failed to run migrations: %v", err)
	}
	suite.T().Cleanup(func() {
		if err := m.Down(); err != nil {
			suite.T().Fatalf("Failed to rollback migrations: %v", err)
		}
	})

	suite.urlRepo = postgres.NewURLRepository(suite.db)
	suite.urlSvc = service.NewURLService(suite.urlRepo)

	suite.logger = httplog.NewLogger("", httplog.Options{Writer: io.Discard})
	router := api.NewRouter(suite.logger, suite.urlSvc, baseURL)
	suite.server = httptest.NewServer(router)
	suite.e = httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  suite.server.URL,
		Reporter: httpexpect.NewAssertReporter(suite.T()),
		Client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	})
}

func (suite *APITestSuite) SetupSubTest() {
	ctx := context.Background()

	_, err := suite.db.ExecContext(ctx, `TRUNCATE TABLE short_urls RESTART IDENTITY CASCADE`)
	if err != nil {
		suite.T().Fatalf("Failed to clean short_urls table: %v", err)
	}
}

func (suite *APITestSuite) insertExpiredRecord(shortCode string) {
	ctx := context.Background()

	query := `INSERT INTO short_urls(short_code, original_url, validity_minutes, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	now := time.Now().UTC()
	_, err := suite.db.ExecContext(ctx, query, shortCode, "https://example.com", int64(1),
		now.Add(-2*time.Minute), now.Add(-time.Minute))
	if err != nil {
		suite.T().Fatalf("Failed to insert expired record: %v", err)
	}
}

func (suite *APITestSuite) isActiveInDB(shortCode string) bool {
	ctx := context.Background()

	var isActive bool
	query := `SELECT is_active FROM short_urls
		WHERE short_code = $1`

	if err := suite.db.GetContext(ctx, &isActive, query, shortCode); err != nil {
		suite.T().Fatalf("Failed to get url record: %v", err)
	}

	return isActive
}

func (suite *APITestSuite) TestHealth() {
	suite.Run("success", func() {
		suite.e.GET("/health").
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("status", "OK").
			HasValue("database", "OK")
	})
}

func (suite *APITestSuite) TestCreateShortURL() {
	const path = "/shorturls"

	suite.Run("generated shortcode", func() {
		resp := suite.e.POST(path).
			WithJSON(map[string]string{"url": "https://example.com"}).
			Expect().
			Status(http.StatusCreated).
			JSON().Object()

		resp.Value("shortLink").String().Match(`^http://sho\.rt/[A-Za-z0-9]{6}$`)
		resp.Value("expiry").String().AsDateTime(time.RFC3339)
	})

	suite.Run("custom shortcode conflict", func() {
		suite.e.POST(path).
			WithJSON(map[string]any{
				"url":       "https://example.com",
				"shortcode": "mycode",
			}).
			Expect().
			Status(http.StatusCreated)

		suite.e.POST(path).
			WithJSON(map[string]any{
				"url":       "https://example.org",
				"shortcode": "mycode",
			}).
			Expect().
			Status(http.StatusConflict).
			JSON().Object().
			HasValue("error", response.ShortcodeExistsResponse.Error).
			HasValue("message", response.ShortcodeExistsResponse.Message)
	})
}

func (suite *APITestSuite) TestRedirectAndStats() {
	suite.Run("redirect records a click visible in stats", func() {
		suite.e.POST("/shorturls").
			WithJSON(map[string]any{
				"url":       "https://example.com",
				"shortcode": "mycode",
			}).
			Expect().
			Status(http.StatusCreated)

		suite.e.GET("/mycode").
			WithHeader("Referer", "https://referrer.example").
			Expect().
			Status(http.StatusFound).
			Header("Location").IsEqual("https://example.com")

		resp := suite.e.GET("/shorturls/mycode").
			Expect().
			Status(http.StatusOK).
			JSON().Object()

		resp.
			HasValue("shortcode", "mycode").
			HasValue("originalUrl", "https://example.com").
			HasValue("shortLink", baseURL+"/mycode").
			HasValue("totalClicks", 1)

		resp.Value("clicks").Array().Value(0).Object().
			HasValue("referrer", "https://referrer.example").
			HasValue("location", "Unknown")
	})

	suite.Run("expired shortcode is deactivated on redirect", func() {
		suite.insertExpiredRecord("mycode")

		suite.e.GET("/mycode").
			Expect().
			Status(http.StatusNotFound).
			JSON().Object().
			HasValue("error", response.ShortcodeNotFoundResponse.Error).
			HasValue("message", response.ShortcodeNotFoundResponse.Message)

		suite.Require().False(suite.isActiveInDB("mycode"))
	})

	suite.Run("expired shortcode stats return 404 without deactivation", func() {
		suite.insertExpiredRecord("mycode")

		suite.e.GET("/shorturls/mycode").
			Expect().
			Status(http.StatusNotFound).
			JSON().Object().
			HasValue("error", response.ShortcodeNotFoundResponse.Error).
			HasValue("message", response.ShortcodeNotFoundResponse.Message)

		suite.Require().True(suite.isActiveInDB("mycode"))
	})
}

func (suite *APITestSuite) TestListShortURLs() {
	const path = "/shorturls"

	suite.Run("expired records are swept out of the listing", func() {
		suite.e.POST(path).
			WithJSON(map[string]any{
				"url":       "https://example.com",
				"shortcode": "fresh1",
			}).
			Expect().
			Status(http.StatusCreated)

		suite.insertExpiredRecord("stale1")

		resp := suite.e.GET(path).
			Expect().
			Status(http.StatusOK).
			JSON().Array()

		resp.Length().IsEqual(1)
		resp.Value(0).Object().
			HasValue("shortcode", "fresh1").
			HasValue("isActive", true)

		suite.Require().False(suite.isActiveInDB("stale1"))
	})
}

func TestAPI(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}

	suite.Run(t, new(APITestSuite))
}

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/robertarktes/seat-reservations/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/seat-reservations/internal/adapters/redis"
	"github.com/robertarktes/seat-reservations/internal/auth"
	"github.com/robertarktes/seat-reservations/internal/booking"
	"github.com/robertarktes/seat-reservations/internal/catalog"
	"github.com/robertarktes/seat-reservations/internal/config"
	"github.com/robertarktes/seat-reservations/internal/domain"
	httphandler "github.com/robertarktes/seat-reservations/internal/http"
	"github.com/robertarktes/seat-reservations/internal/idempotency"
	"github.com/robertarktes/seat-reservations/internal/observability"
	"github.com/robertarktes/seat-reservations/internal/ratelimit"
	"github.com/robertarktes/seat-reservations/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	return host + ":" + mapped.Port()
}

func TestIntegration_SignupSeedBook(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	crdbAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "cockroachdb/cockroach:v24.1.1",
		Cmd:          []string{"start-single-node", "--insecure"},
		ExposedPorts: []string{"26257/tcp", "8080/tcp"},
		WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
	}, "26257")
	mongoAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	}, "27017")
	redisAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
	}, "6379")

	cfg := &config.Config{
		StoreDriver:    config.DriverCRDB,
		CRDBDSN:        "postgresql://root@" + crdbAddr + "/defaultdb?sslmode=disable",
		MongoURI:       "mongodb://" + mongoAddr,
		MongoDB:        "seats_it",
		MongoAudit:     true,
		RedisAddr:      redisAddr,
		JWTSecret:      "integration",
		TokenTTL:       time.Hour,
		BcryptCost:     4,
		IdempotencyTTL: time.Hour,
		SeatsCacheTTL:  time.Minute,
	}
	logger := observability.NewNopLogger()

	backend, err := storage.Open(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(backend.Close)

	cat := catalog.Catalog{Blocks: []catalog.Block{{Section: "Sofa", Rows: catalog.Range{1, 1}, Cols: catalog.Range{1, 2}}}}
	seeder := catalog.NewSeeder(backend.Seats, cat, logger)
	require.NoError(t, seeder.Seed(ctx))
	require.NoError(t, seeder.Seed(ctx))

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	t.Cleanup(func() { redisClient.Close() })
	cache := redisadapter.NewCache(redisClient)

	bookingSvc := booking.NewService(backend.Seats, logger,
		booking.WithCache(cache, cfg.SeatsCacheTTL),
		booking.WithAuditor(mongoadapter.NewAuditLogger(backend.Mongo, logger)),
	)
	authSvc := auth.NewService(backend.Users, auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL), cfg.BcryptCost)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	handlers := httphandler.NewHandlers(bookingSvc, authSvc, idemp, map[string]httphandler.Pinger{"store": backend}, logger)
	r := httphandler.SetupRouter(handlers, logger, httphandler.RouterOptions{
		RateLimiter:         ratelimit.NewRateLimiter(cache),
		RateLimitPerMinute:  1000,
		BookingRequiresAuth: true,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	post := func(path, token string, body interface{}) (int, map[string]interface{}) {
		data, _ := json.Marshal(body)
		req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(data))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	status, _ := post("/signup", "", map[string]string{"username": "greeshma", "email": "G@Example.com", "password": "pw"})
	require.Equal(t, http.StatusCreated, status)
	status, body := post("/login", "", map[string]string{"email": "g@example.com", "password": "pw"})
	require.Equal(t, http.StatusOK, status)
	token := body["token"].(string)

	resp, err := http.Get(srv.URL + "/seats")
	require.NoError(t, err)
	var seats []domain.Seat
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&seats))
	resp.Body.Close()
	require.Len(t, seats, 2)
	assert.False(t, seats[0].Booked)

	sofa11 := domain.SeatID{Section: "Sofa", Row: 1, Col: 1}
	sofa12 := domain.SeatID{Section: "Sofa", Row: 1, Col: 2}

	status, _ = post("/book-seat", token, map[string]interface{}{"seats": []domain.SeatID{sofa11}})
	assert.Equal(t, http.StatusOK, status)

	status, body = post("/book-seat", token, map[string]interface{}{"seats": []domain.SeatID{sofa12, sofa11}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Seat Sofa-1-1 is already booked", body["error"])
	assert.Equal(t, true, body["partial"])

	status, _ = post("/book-seat", "", map[string]interface{}{"section": "Sofa", "row": 1, "col": 3})
	assert.Equal(t, http.StatusUnauthorized, status)

	resp, err = http.Get(srv.URL + "/seats")
	require.NoError(t, err)
	seats = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&seats))
	resp.Body.Close()
	for _, s := range seats {
		assert.True(t, s.Booked, s.SeatID.String())
	}

	n, err := backend.Mongo.Collection("audit_logs").CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

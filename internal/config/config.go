package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

const (
	DriverCRDB  = "crdb"
	DriverMongo = "mongo"
)

type Config struct {
	Port                string
	StoreDriver         string
	CRDBDSN             string
	MongoURI            string
	MongoDB             string
	RedisAddr           string
	RabbitURL           string
	JWTSecret           string
	TokenTTL            time.Duration
	BcryptCost          int
	SeatCatalogFile     string
	BookingRequiresAuth bool
	// MongoAudit writes the booking audit log to MONGO_URI even when seats live in crdb.
	MongoAudit          bool
	IdempotencyTTL      time.Duration
	SeatsCacheTTL       time.Duration
	RateLimitPerMinute  int
	OTLPEndpoint        string
	CORSAllowedOrigins  []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getenv("PORT", "5000"),
		StoreDriver:        getenv("STORE_DRIVER", DriverCRDB),
		CRDBDSN:            os.Getenv("CRDB_DSN"),
		MongoURI:           getenv("MONGO_URI", "mongodb://127.0.0.1:27017"),
		MongoDB:            getenv("MONGO_DB", "seats"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RabbitURL:          os.Getenv("RABBIT_URL"),
		JWTSecret:          getenv("JWT_SECRET", "secret_key"),
		SeatCatalogFile:    os.Getenv("SEAT_CATALOG_FILE"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CORSAllowedOrigins: listEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	var err error
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SeatsCacheTTL, err = durationEnv("SEATS_CACHE_TTL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.BcryptCost, err = intEnv("BCRYPT_COST", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = intEnv("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return nil, err
	}
	if cfg.BookingRequiresAuth, err = boolEnv("BOOKING_REQUIRES_AUTH", false); err != nil {
		return nil, err
	}
	if cfg.MongoAudit, err = boolEnv("MONGO_AUDIT", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverCRDB:
		if c.CRDBDSN == "" {
			return errors.New("CRDB_DSN is required when STORE_DRIVER=crdb")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required when STORE_DRIVER=mongo")
		}
	default:
		return errors.Newf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.Newf("BCRYPT_COST %d out of range", c.BcryptCost)
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrap(err, key)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrap(err, key)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.Wrap(err, key)
	}
	return b, nil
}

// listEnv splits a comma separated value, dropping blanks.
func listEnv(key string, def []string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

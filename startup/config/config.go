package config

import (
	"os"
	"strconv"
	"time"

	"github.com/ijatinydv/ParkEase-sub000/service"
)

type Config struct {
	BookingDBHost   string
	BookingDBPort   string
	AuditDBHost     string
	RedisAddress    string
	JaegerAddress   string
	SpotCatalogURL  string
	TrustServiceURL string
}

func NewConfig() *Config {
	return &Config{
		BookingDBHost:   os.Getenv("BOOKING_DB_HOST"),
		BookingDBPort:   os.Getenv("BOOKING_DB_PORT"),
		AuditDBHost:     os.Getenv("AUDIT_DB_HOST"),
		RedisAddress:    os.Getenv("REDIS_ADDRESS"),
		JaegerAddress:   os.Getenv("JAEGER_ADDRESS"),
		SpotCatalogURL:  os.Getenv("SPOT_CATALOG_URL"),
		TrustServiceURL: os.Getenv("TRUST_SERVICE_URL"),
	}
}

// PolicyConfig builds the engine policy knobs, starting from the defaults
// and applying any environment overrides.
func PolicyConfig() service.Config {
	cfg := service.DefaultConfig()
	if rate, ok := envFloat("PLATFORM_FEE_RATE"); ok {
		cfg.FeeRate = rate
	}
	if rate, ok := envFloat("PLATFORM_TAX_RATE"); ok {
		cfg.TaxRate = rate
	}
	if minutes, ok := envInt("BUFFER_MINUTES"); ok {
		cfg.Buffer = time.Duration(minutes) * time.Minute
	}
	if multiplier, ok := envFloat("OVERTIME_MULTIPLIER"); ok {
		cfg.OvertimeMultiplier = multiplier
	}
	return cfg
}

func envFloat(name string) (float64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

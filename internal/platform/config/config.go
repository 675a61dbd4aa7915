package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"ocpihub/internal/ocpi"
)

// Server captures everything main needs to wire the process.
type Server struct {
	Addr string

	// Own identity handed out during the credentials handshake.
	CountryCode     string
	PartyID         string
	Role            ocpi.Role
	PartyName       string
	PartyWebsite    string
	ExternalBaseURL string

	// Command log streams; empty paths disable persistence.
	PartyLogPath string
	AssetLogPath string

	// Asset store behavior.
	AllowDowngrades  bool
	KeepRemovedEVSEs bool
	TariffTolerance  time.Duration

	// Optional backends; empty values disable each one.
	RedisURL     string
	PostgresURL  string
	KafkaBrokers []string
	KafkaTopic   string

	// Admin API.
	JWTSigningKey string

	// Outbound handshake client defaults.
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// VersionsURL is where partners discover our supported versions.
func (s Server) VersionsURL() string {
	return strings.TrimRight(s.ExternalBaseURL, "/") + "/versions"
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if v := os.Getenv("OCPIHUB_KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr: env("OCPIHUB_ADDR", ":8080"),

		CountryCode:     env("OCPIHUB_COUNTRY_CODE", "DE"),
		PartyID:         env("OCPIHUB_PARTY_ID", "HUB"),
		Role:            ocpi.Role(env("OCPIHUB_ROLE", string(ocpi.RoleHub))),
		PartyName:       env("OCPIHUB_PARTY_NAME", "ocpihub"),
		PartyWebsite:    os.Getenv("OCPIHUB_PARTY_WEBSITE"),
		ExternalBaseURL: env("OCPIHUB_BASE_URL", "http://localhost:8080"),

		PartyLogPath: os.Getenv("OCPIHUB_PARTY_LOG"),
		AssetLogPath: os.Getenv("OCPIHUB_ASSET_LOG"),

		AllowDowngrades:  envBool("OCPIHUB_ALLOW_DOWNGRADES", false),
		KeepRemovedEVSEs: envBool("OCPIHUB_KEEP_REMOVED_EVSES", true),
		TariffTolerance:  envDuration("OCPIHUB_TARIFF_TOLERANCE", 0),

		RedisURL:     os.Getenv("OCPIHUB_REDIS_URL"),
		PostgresURL:  os.Getenv("OCPIHUB_POSTGRES_URL"),
		KafkaBrokers: brokers,
		KafkaTopic:   env("OCPIHUB_KAFKA_TOPIC", "ocpihub.events"),

		JWTSigningKey: jwtSigningKey,

		ConnectTimeout: envDuration("OCPIHUB_CONNECT_TIMEOUT", 10*time.Second),
		RequestTimeout: envDuration("OCPIHUB_REQUEST_TIMEOUT", 30*time.Second),
	}
}

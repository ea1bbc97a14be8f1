// Package config loads application configuration from environment variables.
package config

import (
	"log"     // log reports configuration errors and halts start-up
	"os"      // os provides access to environment variables
	"strconv" // strconv converts numeric settings
	"strings" // strings normalises the store driver name
)

// Config holds the process-level settings.  Each field corresponds to one
// environment variable.  Marketplace rules (commission, SLA, proximity and
// so on) live in Marketplace and are loaded separately with envconfig.
type Config struct {
	Env            string // application environment (e.g. "dev", "prod")
	Port           string // HTTP port to listen on
	StoreDriver    string // "mysql" or "memory"
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign access tokens
	AccessTTLMin   int    // access token lifetime in minutes
	RefreshTTLDays int    // refresh token lifetime in days
	BcryptCost     int    // bcrypt cost for password hashing
}

// Load reads the process configuration and returns a Config.  Required
// variables are enforced by must(), and a missing value stops the program
// with a fatal log message.  The DB_* variables are only required when
// STORE_DRIVER is mysql; the in-memory store needs none of them.
func Load() Config {
	cfg := Config{
		Env:            must("APP_ENV"),                                   // environment (dev/test/prod)
		Port:           must("APP_PORT"),                                  // port to bind the HTTP server
		StoreDriver:    strings.ToLower(getenv("STORE_DRIVER", "mysql")), // persistence backend
		DBPass:         os.Getenv("DB_PASS"),                              // empty allowed
		JWTSecret:      must("JWT_SECRET"),                                // secret used for signing JWTs
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),                   // TTL for access tokens in minutes
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),                 // TTL for refresh tokens in days
		BcryptCost:     mustInt("BCRYPT_COST"),                            // cost factor for bcrypt
	}
	switch cfg.StoreDriver {
	case "mysql":
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case "memory":
	default:
		log.Fatalf("invalid STORE_DRIVER %q (want mysql or memory)", cfg.StoreDriver)
	}
	return cfg
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the value into an integer.  A value
// that is present but not numeric is just as fatal as a missing one.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

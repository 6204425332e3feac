package config

import (
	"fmt"
	"strconv"
	"time"
)

// parseEnv overlays environment variables:
//
//	SECRET_SALT             base64 secret salt
//	TOKEN_DURATION_IN_SECS  token lifetime in seconds
//	TOKEN_GRACE_PERIOD      grace period, "90s" style or seconds
//	DATABASE_URL            PostgreSQL DSN
//	REDIS_ADDR              Redis address
//	SQLITE_PATH             SQLite database file
//	STORE_BACKEND           postgres, redis or sqlite
//	HTTP_ADDR, GRPC_ADDR    listen addresses
//	LOG_LEVEL               debug, info, warn or error
func parseEnv(config *Config, getenv func(string) string) error {
	if getenv == nil {
		return nil
	}

	setString(&config.SecretSalt, getenv("SECRET_SALT"))
	setString(&config.DatabaseDSN, getenv("DATABASE_URL"))
	setString(&config.RedisAddr, getenv("REDIS_ADDR"))
	setString(&config.SQLitePath, getenv("SQLITE_PATH"))
	setString(&config.StoreBackend, getenv("STORE_BACKEND"))
	setString(&config.EndpointAddrHTTP, getenv("HTTP_ADDR"))
	setString(&config.EndpointAddrGRPC, getenv("GRPC_ADDR"))
	setString(&config.LogLevel, getenv("LOG_LEVEL"))

	if v := getenv("TOKEN_DURATION_IN_SECS"); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TOKEN_DURATION_IN_SECS: %w", err)
		}
		config.TokenDuration = time.Duration(secs) * time.Second
	}

	if v := getenv("TOKEN_GRACE_PERIOD"); v != "" {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			return fmt.Errorf("TOKEN_GRACE_PERIOD: %w", err)
		}
		config.GracePeriod = d
	}

	return nil
}

func parseSecondsOrDuration(v string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

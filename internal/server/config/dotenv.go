package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is read by LoadConfig unless ENV_FILE names another file.
const DefaultEnvFile = ".env"

// withEnvFile returns a getenv that prefers the process environment and
// falls back to the variables in the dotenv file at path. A missing file
// leaves getenv as is.
func withEnvFile(path string, getenv func(string) string) (func(string) string, error) {
	vals, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return getenv, nil
		}
		return nil, fmt.Errorf("config: env file %s: %w", path, err)
	}

	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return vals[key]
	}, nil
}

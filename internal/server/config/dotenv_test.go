package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "SECRET_SALT=" + testSalt + "\nTOKEN_DURATION_IN_SECS=120\nREDIS_ADDR=file:6379\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	getenv, err := withEnvFile(path, envMap(map[string]string{"REDIS_ADDR": "proc:6379"}))
	require.NoError(t, err)

	assert.Equal(t, testSalt, getenv("SECRET_SALT"))
	assert.Equal(t, "proc:6379", getenv("REDIS_ADDR"))
	assert.Equal(t, "", getenv("DATABASE_URL"))

	cfg, err := Load(nil, getenv)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.TokenDuration)
	assert.Equal(t, "proc:6379", cfg.RedisAddr)
}

func TestWithEnvFile_Missing(t *testing.T) {
	getenv, err := withEnvFile(filepath.Join(t.TempDir(), "nope.env"), envMap(map[string]string{"A": "1"}))
	require.NoError(t, err)
	assert.Equal(t, "1", getenv("A"))
}

func TestWithEnvFile_IsDirectory(t *testing.T) {
	_, err := withEnvFile(t.TempDir(), envMap(nil))
	assert.Error(t, err)
}

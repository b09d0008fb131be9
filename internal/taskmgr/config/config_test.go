package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// chdir moves into dir so godotenv only sees the .env the test writes.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, cfg.Backend)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.Seed)
	assert.Equal(t, "sqlite", cfg.DBConfig().Driver)
	assert.Empty(t, cfg.DBOptions())
}

func TestLoad_FileThenEnv(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeFile(t, `
BACKEND: remote
SERVER_URL: http://eagle.internal:9000
REQUEST_TIMEOUT: 3s
HTTP_PORT: 9000
KAFKA_BROKERS: ["k1:9092"]
`)
	t.Setenv("EAGLE_HTTP_PORT", "9100")
	t.Setenv("EAGLE_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("EAGLE_SEED", "false")
	t.Setenv("EAGLE_HASH_PASSWORDS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, cfg.Backend)
	assert.Equal(t, "http://eagle.internal:9000", cfg.ServerURL)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 9100, cfg.HTTPPort, "environment wins over the file")
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.Seed)
	assert.Len(t, cfg.DBOptions(), 1)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EAGLE_JWT_SECRET=from-dotenv\n"), 0o600))
	t.Setenv("EAGLE_JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("EAGLE_JWT_SECRET"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.JWTSecret)
	assert.NoError(t, cfg.ValidateServer())
}

func TestLoad_Invalid(t *testing.T) {
	chdir(t, t.TempDir())

	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "bad yaml", file: "BACKEND: [oops"},
		{name: "unknown backend", file: "BACKEND: cloud"},
		{name: "remote without url", file: "BACKEND: remote\nSERVER_URL: \"\""},
		{name: "bad env int", env: map[string]string{"EAGLE_HTTP_PORT": "eighty"}},
		{name: "bad env duration", env: map[string]string{"EAGLE_REQUEST_TIMEOUT": "soon"}},
		{name: "zero timeout", env: map[string]string{"EAGLE_REQUEST_TIMEOUT": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestValidateServer(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ValidateServer(), "secret is required")

	cfg.JWTSecret = "s"
	assert.NoError(t, cfg.ValidateServer())
}

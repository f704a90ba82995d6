package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "FIREBASE_API_KEY", "FIREBASE_AUTH_DOMAIN", "FIREBASE_DATABASE_URL",
		"FIREBASE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "FIREBASE_STORAGE_BUCKET",
		"FIREBASE_MESSAGING_SENDER_ID", "FIREBASE_APP_ID", "FIRESTORE_DATABASE_ID",
		"FIRESTORE_EMULATOR_HOST", "DOCSTORE_BACKEND", "GOOGLE_APPLICATION_CREDENTIALS",
		"FIREBASE_SERVICE_ACCOUNT_JSON", "PORT", "ALLOWED_ORIGINS", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	assert.Equal(t, EnvProduction, cfg.Env)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, DefaultEmulatorHost, cfg.EmulatorHost)
	assert.Equal(t, DefaultDatabaseID, cfg.FirestoreDatabase)
	assert.Equal(t, BackendFirestore, cfg.Backend)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.Firebase.StorageBucket)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "Development")
	t.Setenv("FIREBASE_API_KEY", "AIzaSyExample")
	t.Setenv("FIREBASE_AUTH_DOMAIN", "demo.firebaseapp.com")
	t.Setenv("FIREBASE_DATABASE_URL", "https://demo.firebaseio.com")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "fallback-project")
	t.Setenv("FIREBASE_PROJECT_ID", "demo")
	t.Setenv("FIREBASE_MESSAGING_SENDER_ID", "1234")
	t.Setenv("FIREBASE_APP_ID", "1:1234:web:abcd")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("FIRESTORE_EMULATOR_HOST", "localhost:9090")

	cfg := Load()

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, Firebase{
		APIKey:            "AIzaSyExample",
		AuthDomain:        "demo.firebaseapp.com",
		DatabaseURL:       "https://demo.firebaseio.com",
		ProjectID:         "demo",
		StorageBucket:     "demo.appspot.com",
		MessagingSenderID: "1234",
		AppID:             "1:1234:web:abcd",
	}, cfg.Firebase)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "localhost:9090", cfg.EmulatorHost)
}

func TestProjectIDFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_CLOUD_PROJECT", "gcp-project")

	cfg := Load()

	assert.Equal(t, "gcp-project", cfg.Firebase.ProjectID)
	assert.Equal(t, "gcp-project.appspot.com", cfg.Firebase.StorageBucket)
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: development
backend: memory
port: "7000"
log_level: debug
firebase:
  project_id: from-file
  storage_bucket: custom-bucket
allowed_origins:
  - https://app.example
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "from-file", cfg.Firebase.ProjectID)
	assert.Equal(t, "custom-bucket", cfg.Firebase.StorageBucket)
	assert.Equal(t, []string{"https://app.example"}, cfg.AllowedOrigins)
}

func TestLoadFileErrors(t *testing.T) {
	clearEnv(t)

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("firebase: [unterminated"), 0o600))
	_, err = LoadFile(path)
	require.Error(t, err)
}

func TestRedacted(t *testing.T) {
	f := Firebase{APIKey: "AIzaSyExample", ProjectID: "demo"}

	r := f.Redacted()

	assert.Equal(t, "AIza*********", r.APIKey)
	assert.Equal(t, "demo", r.ProjectID)
	assert.Equal(t, "AIzaSyExample", f.APIKey)
	assert.Equal(t, "****", Firebase{APIKey: "abc"}.Redacted().APIKey)
}

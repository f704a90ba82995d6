package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	BackendFirestore = "firestore"
	BackendMemory    = "memory"

	DefaultEmulatorHost = "127.0.0.1:8080"
	DefaultDatabaseID   = "(default)"
)

// Firebase is the client configuration bundle of a Firebase project.
type Firebase struct {
	APIKey            string `yaml:"api_key"`
	AuthDomain        string `yaml:"auth_domain"`
	DatabaseURL       string `yaml:"database_url"`
	ProjectID         string `yaml:"project_id"`
	StorageBucket     string `yaml:"storage_bucket"`
	MessagingSenderID string `yaml:"messaging_sender_id"`
	AppID             string `yaml:"app_id"`
}

// Redacted returns a copy safe to log.
func (f Firebase) Redacted() Firebase {
	if f.APIKey != "" {
		f.APIKey = mask(f.APIKey)
	}
	return f
}

type Config struct {
	Env      string   `yaml:"env"`
	Firebase Firebase `yaml:"firebase"`

	FirestoreDatabase  string `yaml:"firestore_database"`
	EmulatorHost       string `yaml:"emulator_host"`
	Backend            string `yaml:"backend"`
	CredentialsFile    string `yaml:"credentials_file"`
	ServiceAccountJSON string `yaml:"-"`

	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
}

func (c Config) IsDevelopment() bool { return c.Env == EnvDevelopment }

// Load reads the configuration from the environment.
func Load() Config {
	var cfg Config
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg
}

// LoadFile reads a YAML file and then applies environment overrides on top.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(c *Config) {
	setFromEnv(&c.Env, "APP_ENV")

	setFromEnv(&c.Firebase.APIKey, "FIREBASE_API_KEY")
	setFromEnv(&c.Firebase.AuthDomain, "FIREBASE_AUTH_DOMAIN")
	setFromEnv(&c.Firebase.DatabaseURL, "FIREBASE_DATABASE_URL")
	// FIREBASE_PROJECT_ID wins over GOOGLE_CLOUD_PROJECT
	setFromEnv(&c.Firebase.ProjectID, "GOOGLE_CLOUD_PROJECT")
	setFromEnv(&c.Firebase.ProjectID, "FIREBASE_PROJECT_ID")
	setFromEnv(&c.Firebase.StorageBucket, "FIREBASE_STORAGE_BUCKET")
	setFromEnv(&c.Firebase.MessagingSenderID, "FIREBASE_MESSAGING_SENDER_ID")
	setFromEnv(&c.Firebase.AppID, "FIREBASE_APP_ID")

	setFromEnv(&c.FirestoreDatabase, "FIRESTORE_DATABASE_ID")
	setFromEnv(&c.EmulatorHost, "FIRESTORE_EMULATOR_HOST")
	setFromEnv(&c.Backend, "DOCSTORE_BACKEND")
	setFromEnv(&c.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setFromEnv(&c.ServiceAccountJSON, "FIREBASE_SERVICE_ACCOUNT_JSON")

	setFromEnv(&c.Port, "PORT")
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}
	setFromEnv(&c.LogLevel, "LOG_LEVEL")
	setFromEnv(&c.LogFormat, "LOG_FORMAT")
}

func applyDefaults(c *Config) {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env == "" {
		c.Env = EnvProduction
	}
	if c.Firebase.StorageBucket == "" && c.Firebase.ProjectID != "" {
		c.Firebase.StorageBucket = c.Firebase.ProjectID + ".appspot.com"
	}
	if c.FirestoreDatabase == "" {
		c.FirestoreDatabase = DefaultDatabaseID
	}
	if c.EmulatorHost == "" {
		c.EmulatorHost = DefaultEmulatorHost
	}
	if c.Backend == "" {
		c.Backend = BackendFirestore
	}
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	out := []string{}
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

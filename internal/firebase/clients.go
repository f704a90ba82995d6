package firebase

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"firedocs/backend/internal/config"
	"firedocs/backend/internal/docstore"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

const emulatorHostEnv = "FIRESTORE_EMULATOR_HOST"

// Clients bundles Firebase + GCP clients.
type Clients struct {
	App       *firebase.App
	Auth      *auth.Client
	Firestore *firestore.Client
	Storage   *storage.Client
	DocStore  *docstore.FirestoreDocStore

	ProjectID string
	Bucket    string
	// Emulator is the Firestore emulator address in use, if any.
	Emulator string
}

// NewClients connects to the project in cfg. Development mode targets the
// local Firestore emulator; Auth and Storage are then best effort.
func NewClients(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Clients, error) {
	logger.Debug("firebase config", "env", cfg.Env, "firebase", cfg.Firebase.Redacted())

	emulator := ""
	if cfg.IsDevelopment() {
		emulator = useEmulator(cfg.EmulatorHost)
		logger.Info("debug mode", "firestore_emulator", emulator)
	} else {
		if err := checkNoEmulator(); err != nil {
			return nil, err
		}
		logger.Info("production mode", "project", cfg.Firebase.ProjectID)
	}

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fs, err := firestore.NewClientWithDatabase(ctx, cfg.Firebase.ProjectID, cfg.FirestoreDatabase, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}

	c := &Clients{
		App:       app,
		Firestore: fs,
		DocStore:  docstore.NewFirestore(fs),
		ProjectID: cfg.Firebase.ProjectID,
		Bucket:    cfg.Firebase.StorageBucket,
		Emulator:  emulator,
	}

	c.Auth, err = app.Auth(ctx)
	if err != nil {
		if !cfg.IsDevelopment() {
			c.Close()
			return nil, fmt.Errorf("firebase auth client: %w", err)
		}
		logger.Warn("firebase auth unavailable", "error", err)
	}

	c.Storage, err = storage.NewClient(ctx, clientOptions(cfg)...)
	if err != nil {
		if !cfg.IsDevelopment() {
			c.Close()
			return nil, fmt.Errorf("storage client: %w", err)
		}
		logger.Warn("storage unavailable", "error", err)
	}

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Firestore != nil {
		_ = c.Firestore.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// useEmulator points the Firestore SDK at host unless FIRESTORE_EMULATOR_HOST
// already names one, and returns the address in effect.
func useEmulator(host string) string {
	if v := os.Getenv(emulatorHostEnv); v != "" {
		return v
	}
	if host == "" {
		host = config.DefaultEmulatorHost
	}
	_ = os.Setenv(emulatorHostEnv, host)
	return host
}

// checkNoEmulator refuses production mode while the SDK would still be
// redirected to an emulator.
func checkNoEmulator() error {
	if v := os.Getenv(emulatorHostEnv); v != "" {
		return fmt.Errorf("%s=%s is set outside development; unset it or set APP_ENV=development", emulatorHostEnv, v)
	}
	return nil
}

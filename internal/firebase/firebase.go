package firebase

import (
	"context"
	"fmt"

	"firedocs/backend/internal/config"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// NewApp builds the Firebase Admin app for cfg.
func NewApp(ctx context.Context, cfg config.Config) (*firebase.App, error) {
	if cfg.Firebase.ProjectID == "" {
		return nil, fmt.Errorf("missing FIREBASE_PROJECT_ID or GOOGLE_CLOUD_PROJECT")
	}
	return firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.Firebase.ProjectID,
		DatabaseURL:   cfg.Firebase.DatabaseURL,
		StorageBucket: cfg.Firebase.StorageBucket,
	}, clientOptions(cfg)...)
}

// clientOptions prefers a raw service account JSON over a credentials file.
// With neither, Application Default Credentials apply.
func clientOptions(cfg config.Config) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case cfg.ServiceAccountJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return opts
}

package middleware

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/cors"
)

func CORS(allowedOrigins []string, logger *slog.Logger) func(http.Handler) http.Handler {
	logger.Info("cors configured", "allowed_origins", allowedOrigins)

	// empty means allow all (development)
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

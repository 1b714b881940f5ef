package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the configured POS web clients to call the API.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, IdempotentReplayHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler
}

package middleware

import (
	"slices"

	"github.com/go-chi/cors"
)

// CORS builds the cross-origin policy for the dashboard frontend. With a
// wildcard origin, credentials are disabled: browsers refuse
// Access-Control-Allow-Credentials: true alongside "*".
func CORS(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	wildcard := slices.Contains(allowedOrigins, "*")

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: !wildcard,
		MaxAge:           600,
	}
}

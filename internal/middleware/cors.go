package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS allows the chat frontend to call the relay. "*" or an empty origin
// allows any origin.
func CORS(frontendURL string) func(http.Handler) http.Handler {
	origins := []string{"*"}
	if frontendURL != "" && frontendURL != "*" {
		origins = strings.Split(frontendURL, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})
}

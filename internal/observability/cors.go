package observability

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

// CORSMiddleware allows credentialed requests from the configured origins
// only. Preflight requests are answered without reaching the router.
func CORSMiddleware(config CORSConfig) func(http.Handler) http.Handler {
	origins := make([]string, 0, len(config.AllowedOrigins))
	for _, origin := range config.AllowedOrigins {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			origins = append(origins, origin)
		}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Accept", "Content-Type", "X-Internal-Secret"},
		AllowCredentials: true,
		MaxAge:           config.MaxAge,
	})
}

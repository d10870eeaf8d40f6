package middlewares

import (
	"net/http"

	muxHandlers "github.com/gorilla/handlers"
)

// CORS allows the scoresheet and dashboards to call the API from any of
// allowedOrigins. "*" allows every origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return muxHandlers.CORS(
		muxHandlers.AllowedOrigins(allowedOrigins),
		muxHandlers.AllowedMethods([]string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions,
		}),
		muxHandlers.AllowedHeaders([]string{
			"Content-Type", "X-Instance-ID", "X-Request-ID",
		}),
		muxHandlers.ExposedHeaders([]string{"X-Request-ID"}),
	)
}

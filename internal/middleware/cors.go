package middleware

import "github.com/go-chi/cors"

// defaultOrigins is used when no origins are configured, covering local
// dashboard development.
var defaultOrigins = []string{"http://localhost:3000"}

// CORS builds the cors.Options for the gateway. Credentials are only
// allowed with an explicit origin list; a wildcard origin disables them
// because browsers reject the combination.
func CORS(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}

	allowCreds := true
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCreds = false
			break
		}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Admin-Token"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}

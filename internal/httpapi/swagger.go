package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	// registers the generated API description with swag
	_ "llmhost/internal/httpapi/docs"
)

// MountSwagger serves the Swagger UI under /swagger/ and the API
// description at /swagger/doc.json.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

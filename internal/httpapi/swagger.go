//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/swaggo/swag"

	httpSwagger "github.com/swaggo/http-swagger"
)

// SwaggerInfo describes the dashboard API. Paths are generated into
// docTemplate by `make swagger-gen`; the checked-in template covers the
// info block so /swagger/ renders without generation.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "modeldash API",
	Description:      "Operator dashboard for a local model daemon: mirrored collections, mutations and live events.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {}
}`

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

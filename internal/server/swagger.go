package server

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/raysh454/scanhub/internal/server/docs" // registers the generated spec
)

//go:generate swag init -g internal/server/swagger.go -o internal/server/docs

// @title scanhub API
// @version 0.1
// @description Submit static and dynamic scans, poll their progress, download reports and triage alerts.
// @contact.name scanhub maintainers
// @contact.url https://github.com/raysh454/scanhub
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func (s *Server) mountDocs(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

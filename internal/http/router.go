package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	accountHandler "github.com/okulib/circulate/internal/http/account"
	"github.com/okulib/circulate/internal/http/auth"
	loanHandler "github.com/okulib/circulate/internal/http/loan"
	"github.com/okulib/circulate/internal/metrics"
)

func New(
	loansV1 *loanHandler.Handler,
	accountsV1 *accountHandler.Handler,
	jwtSecret []byte,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	router.Handle("/metrics", metrics.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(jwtSecret))

		r.Route("/loans", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			loansV1.Routes(r)
		})

		r.Route("/accounts", accountsV1.Routes)

		r.With(auth.RequireRole(auth.RoleAdmin)).Post("/sweep", loansV1.Sweep)
	})

	return router
}

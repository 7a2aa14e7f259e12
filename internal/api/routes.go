package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	origins    []string
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(deps Dependencies, log *logger.Logger) *Router {
	var origins []string
	if deps.Config != nil {
		origins = deps.Config.Server.CORSAllowedOrigins
	}
	return &Router{
		handler:    NewHandler(deps, log),
		middleware: NewMiddleware(log),
		origins:    origins,
		logger:     log.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(r.middleware.CORS(r.origins))

	router.Route("/api/v1", func(router chi.Router) {
		router.Get("/health", r.handler.GetHealth)
		router.Get("/agents", r.handler.GetAgents)
		router.Get("/checklist", r.handler.GetChecklistCatalog)

		// Cases and the active-case selection
		router.Get("/cases", r.handler.GetCases)
		router.Get("/cases/selected", r.handler.GetSelectedCase)
		router.Put("/cases/selected", r.handler.SelectCase)
		router.Delete("/cases/selected", r.handler.ClearSelectedCase)

		router.Route("/cases/{caseID}", func(router chi.Router) {
			router.Get("/", r.handler.GetCase)
			router.Get("/document", r.handler.GetDocument)

			router.Get("/checklist", r.handler.GetCaseChecklist)
			router.Put("/checklist/{itemID}", r.handler.PutChecklistItem)
			router.Post("/checklist/save", r.handler.SaveChecklist)

			router.Get("/defects", r.handler.GetDefects)
			router.Post("/defects", r.handler.AddDefect)
			router.Post("/defects/save", r.handler.SaveDefects)
			router.Post("/defects/analyze", r.handler.AnalyzeDefects)
			router.Put("/defects/{number}", r.handler.PutDefect)
			router.Delete("/defects/{number}", r.handler.DeleteDefect)
		})

		// Defects across all cases
		router.Get("/defects", r.handler.GetAllDefects)
		router.Delete("/defects/{defectID}", r.handler.DeleteDefectByID)

		router.Get("/projects", r.handler.GetProjects)
		router.Post("/projects", r.handler.PostProject)

		// Finished conversations and project details
		router.Post("/conversations", r.handler.RelayConversation)
		router.Get("/conversations/{conversationID}", r.handler.GetConversation)
		router.Put("/conversations/{conversationID}", r.handler.PutConversation)
		router.Post("/conversations/{conversationID}/analyze", r.handler.AnalyzeConversation)

		// Server-side voice session
		router.Get("/session", r.handler.GetSession)
		router.Post("/session/start", r.handler.StartSession)
		router.Post("/session/stop", r.handler.StopSession)
		router.Post("/session/mute", r.handler.MuteSession)
	})

	return router
}

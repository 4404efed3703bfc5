package cmd

import (
	"net/http"

	"tomodachi-cheki/internal/cache"
	"tomodachi-cheki/internal/handlers"
	"tomodachi-cheki/internal/middleware"
	"tomodachi-cheki/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// app bundles what the router needs.
type app struct {
	userService    *services.UserService
	photoService   *services.PhotoService
	memoService    *services.MemoService
	urlCache       *cache.SignedURLCache
	hub            *services.WSHub
	limiter        *middleware.RateLimiter
	allowedOrigins []string
	maxUploadBytes int64
	// objects is set when images live in process memory.
	objects handlers.ObjectReader
}

func newRateLimiter(rps float64, burst int) *middleware.RateLimiter {
	return middleware.NewRateLimiter(rate.Limit(rps), burst)
}

// newRouter builds the HTTP routes.
func newRouter(a *app) http.Handler {
	userHandler := handlers.NewUserHandler(a.userService)
	photoHandler := handlers.NewPhotoHandler(a.photoService, a.maxUploadBytes)
	memoHandler := handlers.NewMemoHandler(a.memoService)
	adminHandler := handlers.NewAdminHandler(a.urlCache)
	wsHandler := handlers.NewWebSocketHandler(a.hub, a.userService)

	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(a.allowedOrigins))

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		// Public routes
		r.Post("/auth/register", userHandler.Register)
		r.Post("/auth/login", userHandler.Login)

		// Guest routes
		r.Group(func(r chi.Router) {
			r.Use(a.limiter.Limit)
			r.Use(middleware.OptionalAuth(a.userService))
			r.Post("/photos", photoHandler.CreatePhoto)
			r.Get("/photos/{id}", photoHandler.GetPhoto)
			r.Post("/photos/{id}/receive", photoHandler.ReceivePhoto)
			r.Post("/photos/{id}/complete", photoHandler.CompletePhoto)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(a.userService))
			r.Get("/auth/me", userHandler.Me)
			r.Get("/photos", photoHandler.GetPhotos)
			r.Put("/photos/{id}/claim", photoHandler.ClaimPhoto)

			r.Get("/photos/{id}/memo", memoHandler.GetMemo)
			r.Put("/photos/{id}/memo", memoHandler.PutMemo)
			r.Delete("/photos/{id}/memo", memoHandler.DeleteMemo)
			r.Get("/photos/{id}/reunion", memoHandler.GetReunion)
			r.Put("/photos/{id}/reunion", memoHandler.PutReunion)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(a.userService))
				r.Get("/admin/signed-url-cache", adminHandler.CacheStats)
				r.Delete("/admin/signed-url-cache", adminHandler.ClearCache)
			})
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	if a.objects != nil {
		r.Get("/objects/*", handlers.ServeObject(a.objects))
	}

	return r
}

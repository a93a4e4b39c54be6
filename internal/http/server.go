package httpapi

import (
	"context"
	"net/http"
	"time"

	"tradehub-admin/internal/cache"
	"tradehub-admin/internal/config"
	"tradehub-admin/internal/metrics"
	"tradehub-admin/internal/realtime"
	"tradehub-admin/internal/services"
	"tradehub-admin/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type Server struct {
	DB          *sqlx.DB
	Config      config.Config
	Tokens      services.TokenService
	Catalog     services.Catalog
	Images      services.Images
	Cache       *cache.Store
	Sessions    *session.Manager
	Hub         *realtime.Hub
	Log         *zap.Logger
	HTTPMetrics *metrics.HTTPMetrics
	// SessionCheck is how often an open /ws/events socket verifies that its
	// session is still live.
	SessionCheck time.Duration
}

func NewServer(db *sqlx.DB, cfg config.Config, store *cache.Store, sessions *session.Manager, hub *realtime.Hub, log *zap.Logger) *Server {
	tokens := services.TokenService{
		Secret:    []byte(cfg.JWTSecret),
		Issuer:    cfg.JWTIssuer,
		AccessTTL: cfg.AccessTTL,
	}
	if log == nil {
		log = zap.NewNop()
	}
	media := services.MediaStore{Root: cfg.MediaStoragePath, MaxBytes: cfg.MaxUploadBytes}
	return &Server{
		DB:       db,
		Config:   cfg,
		Tokens:   tokens,
		Catalog:  services.NewCatalog(db, tokens, store),
		Images:   services.NewImages(db, media),
		Cache:    store,
		Sessions: sessions,
		Hub:      hub,
		Log:      log,

		SessionCheck: 5 * time.Second,
	}
}

func (s *Server) Router(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.Log, s.HTTPMetrics))
	r.Use(middleware.Recoverer)
	if len(s.Config.CorsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.Config.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", s.Login)
		api.Group(func(authed chi.Router) {
			authed.Use(WithAuth(s.Tokens, s.Sessions))
			authed.Post("/auth/logout", s.Logout)
			authed.Get("/auth/me", s.Me)
		})

		api.Get("/media/{bucket}/*", s.MediaContent)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(WithAuth(s.Tokens, s.Sessions))
			admin.Use(RequireAnyRole(services.UserRoles...))
			admin.Get("/stats", s.Stats)
			admin.Get("/metrics/history", s.MetricsHistory)

			admin.Route("/images", func(images chi.Router) {
				images.Get("/", s.ListImages)
				images.Post("/", s.UploadImage)
				images.Delete("/{id}", s.DeleteImage)
			})

			admin.Route("/views/{table}", func(views chi.Router) {
				views.Get("/", s.GetView)
				views.Patch("/", s.PatchView)
				views.Delete("/", s.ResetView)
			})

			admin.Route("/{table}", func(table chi.Router) {
				table.Get("/", s.ListRecords)
				table.Post("/", s.CreateRecord)
				table.Get("/{id}", s.GetRecord)
				table.Put("/{id}", s.UpdateRecord)
				table.Delete("/{id}", s.DeleteRecord)
			})
		})
	})

	r.Get("/ws/events", s.Events)
	return r
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.DB.PingContext(ctx); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

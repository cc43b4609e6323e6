package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sugang-app/apiserver/config"
	"github.com/sugang-app/apiserver/internal/db"
	"github.com/sugang-app/apiserver/internal/handlers"
	"github.com/sugang-app/apiserver/internal/metrics"
	"github.com/sugang-app/apiserver/internal/mq"
	"github.com/sugang-app/apiserver/internal/registration"
	"github.com/sugang-app/apiserver/internal/services"
	"github.com/sugang-app/apiserver/internal/store"
	"github.com/sugang-app/apiserver/types"
)

// Server wraps the HTTP server and the clients it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
}

// New constructs a Server with basic middleware and defaults. The database
// and queue clients are constructed once here and live for the process.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue, err := NewQueue(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	userRepo := store.NewUserRepository(dbConn)
	courseRepo := store.NewCourseRepository(dbConn)
	statusRepo := store.NewStatusRepository(dbConn)

	userService := services.NewUserService(userRepo)
	courseService := services.NewCourseService(courseRepo)
	producer := registration.NewProducer(queue, cfg.Registration, collector)

	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		_ = dbConn.Close()
		_ = queue.Close()
		return nil, errors.New("JWT_SECRET is required")
	}

	authMiddleware := handlers.RequireAuth(jwtSecret)
	regHandler := handlers.NewRegistrationHandler(producer, statusRepo, userService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", metrics.Handler(registry))
	router.Route("/courses", func(r chi.Router) {
		handlers.CourseRouter(r, courseService, authMiddleware)
	})
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, jwtSecret)
	})
	router.Route("/registrations", func(r chi.Router) {
		handlers.RegistrationRouter(r, producer, statusRepo, userService, authMiddleware)
	})
	router.With(authMiddleware).Get("/me/courses", regHandler.MyCourses)

	// Older route shapes, kept for existing clients.
	router.With(authMiddleware).Post("/register-course", regHandler.LegacySubmit(types.ActionRegister))
	router.With(authMiddleware).Post("/unregister-course", regHandler.LegacySubmit(types.ActionUnregister))

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
	}, nil
}

// NewQueue constructs the configured broker backend.
func NewQueue(ctx context.Context, cfg config.MQConfig) (*mq.MQ, error) {
	switch cfg.Backend {
	case "", "rabbitmq":
		backend, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	case "pubsub":
		backend, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	return s.httpServer.Close()
}

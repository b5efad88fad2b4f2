package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/mind-engage/mindengage-audit/internal/api/http"
	"github.com/mind-engage/mindengage-audit/internal/audit"
	auth "github.com/mind-engage/mindengage-audit/internal/auth/middleware"
	"github.com/mind-engage/mindengage-audit/internal/config"
	"github.com/mind-engage/mindengage-audit/internal/db"
	"github.com/mind-engage/mindengage-audit/internal/exam"
	"github.com/mind-engage/mindengage-audit/internal/logging"
	"github.com/mind-engage/mindengage-audit/internal/rbac"
	"github.com/mind-engage/mindengage-audit/internal/storage"
	syncx "github.com/mind-engage/mindengage-audit/internal/sync"
)

func main() {
	cfg, err := config.FromEnv(".env")
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.SlogLevel(), cfg.LogColor)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("auditd stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		return err
	}
	defer dbh.Close()

	store := audit.NewSQLStore(dbh, cfg.DBDriver)
	events := syncx.NewEventRepo(dbh, "auditd")
	audits := audit.NewService(store,
		audit.WithEvents(events),
		audit.WithLogger(logger.With("component", "audit")),
	)
	exams := exam.NewService(store,
		exam.WithEvents(events),
		exam.WithLogger(logger.With("component", "exam")),
		exam.WithSampleSize(cfg.ExamSampleSize),
	)

	secret := cfg.AuthHMACSecret
	if secret == "" {
		logger.Warn("AUTH_HMAC_SECRET unset, using the development key")
		secret = "supersecret-dev-key"
	}
	authSvc := auth.NewAuthService(secret, cfg.TokenTTL)
	users := auth.NewUsers(dbh, cfg.AdminUser, cfg.AdminPassHash)

	bs, err := storage.NewFSStore(cfg.BlobBasePath, cfg.PublicURL)
	if err != nil {
		return err
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.Requests(logger), middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.Health(r, func() error { return dbh.PingContext(ctx) })

	// Local login (enabled in offline mode by default; can be enabled online via env)
	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, users))
	}

	// Protected API (JWT → role from DB → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, cfg.Mode == config.ModeOffline))
		api.Mount(pr, api.Deps{
			Audits: audits,
			Exams:  exams,
			Users:  users,
			Blobs:  bs,
			Events: events,
			Guard:  rbac.NewGuard(nil),
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	api "github.com/mind-engage/mindengage-participation/internal/api/http"
	auth "github.com/mind-engage/mindengage-participation/internal/auth/middleware"
	"github.com/mind-engage/mindengage-participation/internal/classroom"
	"github.com/mind-engage/mindengage-participation/internal/config"
	"github.com/mind-engage/mindengage-participation/internal/db"
	"github.com/mind-engage/mindengage-participation/internal/lock"
	"github.com/mind-engage/mindengage-participation/internal/rbac"
	"github.com/mind-engage/mindengage-participation/internal/storage"
	syncx "github.com/mind-engage/mindengage-participation/internal/sync"
)

func main() {
	cfg, err := config.Load(envOr("ENV_FILE", ".env"))
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log, err := config.NewLogger(cfg.LogLevel, true)
	if err != nil {
		logrus.WithError(err).Fatal("logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	opts := []classroom.Option{classroom.WithLogger(log), classroom.WithWeeks(cfg.Weeks)}
	var (
		store  classroom.Store
		events *syncx.EventRepo
		dbh    *sqlx.DB
	)
	if cfg.DBDriver == "memory" {
		store = classroom.NewInMemoryStore()
	} else {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		dbh, err = db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("db open failed")
		}
		defer dbh.Close()
		store = classroom.NewSQLStore(dbh)
		events = syncx.NewEventRepo(dbh)
		opts = append(opts, classroom.WithEvents(events))
	}

	// --- Transcript archive ---
	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.WithError(err).Fatal("blob store")
	}
	opts = append(opts, classroom.WithArchive(bs))

	// --- Analysis locks ---
	if cfg.RedisAddr != "" {
		rc, err := lock.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.WithError(err).Fatal("redis")
		}
		defer rc.Close()
		opts = append(opts, classroom.WithLocker(lock.NewRedis(rc, cfg.LockTTL)))
	}

	svc := classroom.NewService(store, opts...)

	// --- Auth ---
	creds := auth.NewStaticChecker()
	if err := creds.Add(cfg.AdminUser, cfg.AdminPassHash, rbac.RoleAdmin); err != nil {
		log.WithError(err).Fatal("admin account")
	}

	router := api.NewRouter(api.Deps{
		Service:     svc,
		Auth:        auth.NewAuthService(cfg.AuthHMACSecret),
		Credentials: creds,
		Events:      events,
		Log:         log,
		Ready: func(ctx context.Context) error {
			if dbh == nil {
				return nil
			}
			return dbh.PingContext(ctx)
		},
	}, cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithFields(logrus.Fields{"addr": cfg.HTTPAddr, "mode": cfg.Mode, "db": cfg.DBDriver}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server")
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

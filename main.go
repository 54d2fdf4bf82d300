package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/jmoiron/sqlx"

	"library-backend/internal/books"
	"library-backend/internal/borrows"
	"library-backend/internal/platform/apidoc"
	"library-backend/internal/platform/auth"
	"library-backend/internal/platform/config"
	"library-backend/internal/platform/db"
	"library-backend/internal/platform/ids"
	"library-backend/internal/platform/logger"
	"library-backend/internal/platform/spa"
)

func main() {
	if err := run(); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	path := config.DefaultPath
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	flag.StringVar(&path, "config", path, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting", "mode", cfg.Mode, "version", cfg.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("connected to DB", "db", cfg.DB.DBName)

	if err := db.Migrate(ctx, conn); err != nil {
		return err
	}

	authSvc := auth.NewService(auth.NewStore(conn), []byte(cfg.JWT.Secret), cfg.JWT.TTL)
	if a := cfg.BootstrapAdmin; a.Email != "" {
		if err := authSvc.EnsureAdmin(ctx, a.Name, a.Email, a.Password); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(cfg, conn, authSvc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSEnabled() {
			logger.Info("listening", "addr", srv.Addr, "tls", true)
			err = srv.ListenAndServeTLS(cfg.Server.Cert, cfg.Server.Key)
		} else {
			logger.Info("listening", "addr", srv.Addr, "tls", false)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg *config.Config, conn *sqlx.DB, authSvc auth.AuthService) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	binding.EnableDecoderDisallowUnknownFields = true

	r := gin.New()
	r.Use(gin.Recovery(), logger.Middleware())
	_ = r.SetTrustedProxies(nil)

	if len(cfg.CORS.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowOrigins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := conn.PingContext(ctx); err != nil {
			logger.WarnContext(c.Request.Context(), "health check failed", "error", err)
			c.String(http.StatusServiceUnavailable, "db unavailable")
			return
		}
		c.String(http.StatusOK, "ok")
	})
	apidoc.RegisterRoutes(r)

	secret := []byte(cfg.JWT.Secret)
	requireAuth := auth.RequireAuth(secret)
	idGen := ids.NewULIDGen()

	api := r.Group("/api")
	auth.RegisterRoutes(api.Group("/auth"), authSvc)
	books.RegisterRoutes(api, books.NewService(conn, idGen), requireAuth, auth.RequireRole(auth.RoleAdmin))

	borrowStore := borrows.NewStore(conn)
	ledger := borrows.NewLedger(borrowStore, idGen, cfg.Ledger)
	borrows.RegisterRoutes(api.Group("/borrow", requireAuth), borrows.NewService(borrowStore, ledger))

	if cfg.Server.StaticDir != "" {
		r.NoRoute(spa.Handler(os.DirFS(cfg.Server.StaticDir)))
	} else {
		r.NoRoute(func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
		})
	}
	return r
}

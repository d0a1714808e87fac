// Package app assembles the service: storage, domain components, HTTP
// surface, and lifecycle.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/red-ai/redterm/internal/admin"
	"github.com/red-ai/redterm/internal/authz"
	"github.com/red-ai/redterm/internal/chat"
	"github.com/red-ai/redterm/internal/config"
	"github.com/red-ai/redterm/internal/db"
	"github.com/red-ai/redterm/internal/device"
	"github.com/red-ai/redterm/internal/http/api"
	"github.com/red-ai/redterm/internal/quota"
	"github.com/red-ai/redterm/internal/ratelimit"
	"github.com/red-ai/redterm/internal/roster"
	"github.com/red-ai/redterm/internal/security"
	"github.com/red-ai/redterm/internal/store"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	log "github.com/sirupsen/logrus"
)

// shutdownTimeout bounds the drain period on exit.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.Config) error {
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// Build opens the database, constructs every component, and returns the
// ready-to-serve router.
func Build(cfg config.Config) (*gin.Engine, *gorm.DB, error) {
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return nil, nil, errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, nil, errMigrate
	}

	authCfg := authz.Config{
		SuperAdmin: cfg.Auth.SuperAdmin,
		VIP:        cfg.Auth.VIP,
		TrialDays:  cfg.Auth.TrialDays,
	}

	records := store.NewRecordStore(conn)
	rosterStore := roster.NewStore(records)
	engine := authz.NewEngine(authCfg, rosterStore)
	tracker := quota.NewTracker(records, cfg.Quota.MessageLimit, authCfg.IsReserved)

	client := chat.NewClient(chat.ClientConfig{
		BaseURL:           cfg.Upstream.BaseURL,
		APIKey:            cfg.Upstream.APIKey,
		Model:             cfg.Upstream.Model,
		Temperature:       cfg.Upstream.Temperature,
		SystemInstruction: cfg.Upstream.SystemInstruction,
	})
	chatService := chat.NewService(client, tracker)

	jwtCfg := security.DefaultTokenConfig(cfg.JWT.Secret)
	jwtCfg.Expiry = cfg.JWT.Expiry
	if jwtCfg.Secret == "" {
		// Sessions will not survive a restart without a configured secret.
		secret, errSecret := randomSecret()
		if errSecret != nil {
			return nil, nil, errSecret
		}
		jwtCfg.Secret = secret
		log.Warn("no jwt secret configured, using an ephemeral one")
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	if addr := cfg.RateLimit.RedisAddr; addr != "" {
		limiter = ratelimit.NewRedisLimiter(redis.NewClient(&redis.Options{Addr: addr}), "redterm")
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	api.RegisterRoutes(r, api.Deps{
		DB:         conn,
		Engine:     engine,
		Device:     device.NewProvider(records),
		Roster:     rosterStore,
		Quota:      tracker,
		Admin:      admin.NewManager(authCfg, rosterStore, tracker),
		Chat:       chatService,
		JWT:        jwtCfg,
		Limiter:    limiter,
		LoginLimit: cfg.RateLimit.LoginPerMinute,
	})
	return r, conn, nil
}

// RunServer boots the HTTP server and blocks until the context is canceled
// or the listener fails.
func RunServer(ctx context.Context, cfg config.Config) error {
	r, conn, errBuild := Build(cfg)
	if errBuild != nil {
		return errBuild
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s (db dialect %s)", srv.Addr, db.DialectName(conn))
		if errServe := srv.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// requestLogger logs each request with method, path, status, and latency.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Info("request")
	}
}

// randomSecret returns a hex-encoded 32-byte secret.
func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	v1 "go_lpp/api/v1"
	"go_lpp/internal/auth"
	"go_lpp/internal/config"
	"go_lpp/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.WithField("component", "lpp")

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	logger.Info("configuration loaded")

	// 2. Initialize JWT
	auth.InitJWT(cfg.JWT.Secret)

	// 3. Open the state store
	st, err := store.Open(cfg.Data.Path(), cfg.Data.Debounce(), logrus.WithField("component", "store"))
	if err != nil {
		logger.WithError(err).Fatal("failed to open store")
	}
	defer st.Close()

	// 4. Directory gate: the provisioned operator account. Deployments with
	// a real directory service substitute their own auth.Gate here.
	gate := &auth.StaticGate{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
	}

	// 5. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	v1.SetupRouter(r, st, gate, cfg, logger)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("failed to start server")
		}
	}()

	// Flush any debounced state before exit.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
}

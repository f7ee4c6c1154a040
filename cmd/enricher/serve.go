package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/handlers"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/logger"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/middleware"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/pipeline"
)

const shutdownTimeout = 30 * time.Second

func serveCmd(envFile *string) *cobra.Command {
	var schedule time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ops API and optionally run the pipeline on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, *envFile)
			if err != nil {
				return err
			}
			defer a.close()

			if !cmd.Flags().Changed("schedule") {
				schedule = a.cfg.Pipeline.Schedule
			}
			return serve(ctx, a, schedule)
		},
	}

	cmd.Flags().DurationVar(&schedule, "schedule", 0, "run the pipeline at this interval (0 = never)")
	return cmd
}

func newRouter(a *app, schedule time.Duration) *gin.Engine {
	if a.cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Order matters: RequestID -> Logger -> Recovery -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.log))
	router.Use(middleware.Recovery(a.log))
	router.Use(middleware.CORS(a.cfg.CORS.Origins))

	healthHandler := handlers.NewHealthHandler(a.db, a.cfg.Server.Env, schedule)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)

	buildingHandler := handlers.NewBuildingHandler(a.registry)
	runHandler := handlers.NewRunHandler(a.runner)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/info", healthHandler.Info)
		v1.GET("/buildings/:bbl", buildingHandler.Get)
		v1.GET("/runs/latest", runHandler.Latest)
	}
	return router
}

func serve(ctx context.Context, a *app, schedule time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", a.cfg.Server.Port),
		Handler:           newRouter(a, schedule),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	if schedule > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.log.Info("Scheduler started", logger.Fields{"interval": schedule.String()})
			a.runner.Schedule(ctx, schedule, pipeline.Options{Refresh: a.cfg.Pipeline.Refresh})
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Server listening", logger.Fields{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if serveErr != nil {
			a.log.Error("Server failed", serveErr, nil)
		}
	}

	a.log.Info("Shutting down server...", nil)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("Server forced to shutdown", err, logger.Fields{
			"timeout": shutdownTimeout.String(),
		})
	}

	// Wait so an in-flight scheduled run releases its lock.
	cancel()
	wg.Wait()
	a.log.Info("Server exited", nil)
	return serveErr
}

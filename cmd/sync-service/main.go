package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/evnsoft/clubshift_backend/config"
	"github.com/evnsoft/clubshift_backend/models"
	"github.com/evnsoft/clubshift_backend/workflow"
	"github.com/gin-gonic/gin"
)

const defaultPort = "8081"

// Standalone dispatcher: drains registered shift exports to the accounting
// topic. Deployed separately from the API so publish backpressure never
// slows shift operations.
func main() {
	port := os.Getenv("SYNC_SERVICE_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		if config.GetDB() == nil {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		c.Status(http.StatusNoContent)
	})

	srv := &http.Server{Addr: ":" + port, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("sync-service server error: %v", err)
		}
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	dispatcher := workflow.NewSyncDispatcher(config.GetDB(), logger)
	go dispatcher.Run(sigCtx)

	logger.Infof("sync dispatcher running (id=%s)", dispatcher.DispatcherID)
	<-sigCtx.Done()
	_ = srv.Shutdown(context.Background())
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VanceHud/VanceNodeWarden/internal/backup"
	"github.com/VanceHud/VanceNodeWarden/internal/database"
	"github.com/VanceHud/VanceNodeWarden/internal/logging"
	"github.com/VanceHud/VanceNodeWarden/internal/server"
)

func main() {
	port := os.Getenv("NODEWARDEN_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("NODEWARDEN_DB_PATH")
	if dbPath == "" {
		dbPath = "nodewarden.db"
	}

	dataDir := os.Getenv("NODEWARDEN_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	logger := logging.Setup(os.Getenv("NODEWARDEN_LOG_LEVEL"))

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	cfg := server.Config{
		AdminTokenHash: os.Getenv("NODEWARDEN_ADMIN_TOKEN_HASH"),
		AttachmentDir:  dataDir + "/attachments",
		WebDAV: backup.WebDAVConfig{
			URL:      os.Getenv("BACKUP_WEBDAV_URL"),
			Username: os.Getenv("BACKUP_WEBDAV_USERNAME"),
			Password: os.Getenv("BACKUP_WEBDAV_PASSWORD"),
		},
		S3: backup.S3Config{
			Endpoint:        os.Getenv("BACKUP_S3_ENDPOINT"),
			Region:          os.Getenv("BACKUP_S3_REGION"),
			Bucket:          os.Getenv("BACKUP_S3_BUCKET"),
			AccessKeyID:     os.Getenv("BACKUP_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("BACKUP_S3_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("BACKUP_S3_SESSION_TOKEN"),
			ForcePathStyle:  os.Getenv("BACKUP_S3_FORCE_PATH_STYLE") == "true",
		},
		Limits: backup.DefaultLimits(),
	}
	if cfg.AdminTokenHash == "" {
		logger.Warn("NODEWARDEN_ADMIN_TOKEN_HASH is not set; admin API is disabled")
	}

	srv, err := server.New(db, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize server: %v", err)
	}

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	srv.Scheduler().Start(schedulerCtx)

	httpServer := &http.Server{
		Addr:        ":" + port,
		Handler:     srv.Router(),
		ReadTimeout: 5 * time.Second,
		// Run-now blocks until the backup finishes, so the write timeout has
		// to outlast the run timeout.
		WriteTimeout: cfg.Limits.RunTimeout + time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("nodewarden running", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopScheduler()
	srv.Scheduler().Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

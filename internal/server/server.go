package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/VanceHud/VanceNodeWarden/internal/backup"
	"github.com/VanceHud/VanceNodeWarden/internal/blob"
	"github.com/VanceHud/VanceNodeWarden/internal/handler"
	"github.com/VanceHud/VanceNodeWarden/internal/middleware"
	"github.com/VanceHud/VanceNodeWarden/internal/store"
	ws "github.com/VanceHud/VanceNodeWarden/internal/websocket"
)

// Config carries everything the server needs beyond the database handle.
type Config struct {
	AdminTokenHash string
	AttachmentDir  string
	WebDAV         backup.WebDAVConfig
	S3             backup.S3Config
	Limits         backup.Limits
}

type Server struct {
	db        *sql.DB
	hub       *ws.Hub
	backupH   *handler.BackupHandler
	auditH    *handler.AuditHandler
	runner    *backup.Runner
	scheduler *backup.Scheduler
	tokenHash string
	logger    *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	configStore := store.NewConfigStore(db)
	auditStore := store.NewAuditStore(db)
	attachmentStore := store.NewAttachmentStore(db)
	blobStore := blob.NewDiskStore(cfg.AttachmentDir)

	providers := map[backup.ProviderType]backup.Provider{
		backup.ProviderWebDAV: backup.NewWebDAVProvider(cfg.WebDAV),
		backup.ProviderS3:     backup.NewS3Provider(cfg.S3),
	}

	backupLogger := logger.With("component", "backup")
	runner, err := backup.NewRunner(db, configStore, attachmentStore, blobStore,
		auditStore, providers, cfg.Limits, backupLogger, func(e backup.Event) {
			hub.Broadcast(ws.Message{
				Type:   "backup_status",
				Action: e.Action,
				Extra: map[string]any{
					"reason": string(e.Reason),
					"detail": e.Detail,
				},
			})
		})
	if err != nil {
		return nil, err
	}

	return &Server{
		db:        db,
		hub:       hub,
		backupH:   handler.NewBackupHandler(runner, cfg.Limits, logger.With("component", "backup_handler")),
		auditH:    handler.NewAuditHandler(auditStore, logger.With("component", "audit_handler")),
		runner:    runner,
		scheduler: backup.NewScheduler(runner, 0, backupLogger),
		tokenHash: cfg.AdminTokenHash,
		logger:    logger,
	}, nil
}

// Runner returns the backup orchestrator.
func (s *Server) Runner() *backup.Runner {
	return s.runner
}

// Scheduler returns the periodic due-check scheduler.
func (s *Server) Scheduler() *backup.Scheduler {
	return s.scheduler
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("GET /ws", ws.Handle(s.hub, s.logger.With("component", "websocket")))

	// Admin routes — wrapped with RequireAdminToken middleware
	adminMux := http.NewServeMux()
	s.registerAdminRoutes(adminMux)

	authMiddleware := middleware.RequireAdminToken(s.tokenHash)
	outerMux.Handle("/api/admin/", authMiddleware(adminMux))

	// Apply request logging middleware
	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/backup", s.backupH.GetOverview)
	mux.HandleFunc("PATCH /api/admin/backup/settings", s.backupH.UpdateSettings)
	mux.HandleFunc("POST /api/admin/backup/run", s.backupH.RunNow)
	mux.HandleFunc("GET /api/admin/audit", s.auditH.ListRecent)
}

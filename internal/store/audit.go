package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/VanceHud/VanceNodeWarden/internal/model"
)

type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Append writes one audit record. targetID, actorIP, and detail may be empty.
func (s *AuditStore) Append(action, targetType, targetID, actorIP, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (id, action, target_type, target_id, actor_ip, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), action, targetType,
		nullable(targetID), nullable(actorIP), nullable(detail),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("append audit %q: %w", action, err)
	}
	return nil
}

// ListRecent returns the newest audit entries, most recent first.
func (s *AuditStore) ListRecent(limit int) ([]model.AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, action, target_type, target_id, actor_ip, detail, created_at
		 FROM audit_log ORDER BY created_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var targetID, actorIP, detail sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Action, &e.TargetType, &targetID, &actorIP, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.TargetID = targetID.String
		e.ActorIP = actorIP.String
		e.Detail = detail.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

package store

import (
	"database/sql"
	"fmt"

	"github.com/VanceHud/VanceNodeWarden/internal/model"
)

type AttachmentStore struct {
	db *sql.DB
}

func NewAttachmentStore(db *sql.DB) *AttachmentStore {
	return &AttachmentStore{db: db}
}

// ListRefs enumerates all attachment references ordered by owning cipher then id.
// The backup run streams each referenced blob in this order.
func (s *AttachmentStore) ListRefs() ([]model.AttachmentRef, error) {
	rows, err := s.db.Query(
		`SELECT id, cipher_id, file_name, size FROM attachments ORDER BY cipher_id, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list attachment refs: %w", err)
	}
	defer rows.Close()

	var refs []model.AttachmentRef
	for rows.Next() {
		var r model.AttachmentRef
		if err := rows.Scan(&r.AttachmentID, &r.CipherID, &r.FileName, &r.SizeBytes); err != nil {
			return nil, fmt.Errorf("scan attachment ref: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

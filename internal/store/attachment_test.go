package store

import (
	"database/sql"
	"testing"

	"github.com/VanceHud/VanceNodeWarden/internal/database"
)

func seedAttachment(t *testing.T, db *sql.DB, userID, cipherID, attachmentID, fileName string, size int64) {
	t.Helper()
	now := "2026-01-01T00:00:00Z"
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO users (id, email, password_hash, created_at, updated_at) VALUES (?, ?, '', ?, ?)`,
		userID, userID+"@example.com", now, now,
	); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO ciphers (id, user_id, type, name, data, created_at, updated_at) VALUES (?, ?, 1, 'login', '{}', ?, ?)`,
		cipherID, userID, now, now,
	); err != nil {
		t.Fatalf("seed cipher: %v", err)
	}
	if _, err := db.Exec(
		`INSERT INTO attachments (id, cipher_id, file_name, size, created_at) VALUES (?, ?, ?, ?, ?)`,
		attachmentID, cipherID, fileName, size, now,
	); err != nil {
		t.Fatalf("seed attachment: %v", err)
	}
}

func TestAttachmentListRefs(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	as := NewAttachmentStore(db)

	refs, err := as.ListRefs()
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("len = %d, want 0", len(refs))
	}

	seedAttachment(t, db, "u1", "cipher-b", "att-2", "photo.jpg", 2048)
	seedAttachment(t, db, "u1", "cipher-a", "att-1", "doc.pdf", 512)

	refs, err = as.ListRefs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("len = %d, want 2", len(refs))
	}

	// Ordered by cipher then attachment id.
	if refs[0].CipherID != "cipher-a" || refs[0].AttachmentID != "att-1" {
		t.Errorf("refs[0] = %+v", refs[0])
	}
	if refs[0].FileName != "doc.pdf" || refs[0].SizeBytes != 512 {
		t.Errorf("refs[0] fields = %+v", refs[0])
	}
	if refs[1].CipherID != "cipher-b" || refs[1].AttachmentID != "att-2" {
		t.Errorf("refs[1] = %+v", refs[1])
	}

	if got := refs[0].BlobKey(); got != "cipher-a/att-1" {
		t.Errorf("blob key = %q", got)
	}
}

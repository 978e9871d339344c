package backup

import (
	"encoding/json"
	"fmt"
	"time"
)

const manifestKind = "nodewarden.backup.manifest"

// Manifest is the commit record of a successful run. It is uploaded last, only
// after the database object and every attachment object are confirmed; its
// presence at a snapshot location is the durable proof the snapshot is complete.
type Manifest struct {
	Kind        string              `json:"kind"`
	Version     int                 `json:"version"`
	GeneratedAt string              `json:"generatedAt"`
	Provider    ProviderType        `json:"provider"`
	Reason      RunReason           `json:"reason"`
	Database    ManifestDatabase    `json:"database"`
	Attachments ManifestAttachments `json:"attachments"`
}

type ManifestDatabase struct {
	ObjectKey string `json:"objectKey"`
	SizeBytes int    `json:"sizeBytes"`
}

type ManifestAttachments struct {
	ObjectPrefix string `json:"objectPrefix"`
	Count        int    `json:"count"`
	TotalBytes   int64  `json:"totalBytes"`
}

func buildManifestPayload(provider ProviderType, reason RunReason, generatedAt time.Time,
	databaseObjectKey string, databaseSizeBytes int,
	attachmentsPrefix string, attachmentCount int, attachmentTotalBytes int64) ([]byte, error) {

	manifest := Manifest{
		Kind:        manifestKind,
		Version:     1,
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		Provider:    provider,
		Reason:      reason,
		Database: ManifestDatabase{
			ObjectKey: databaseObjectKey,
			SizeBytes: databaseSizeBytes,
		},
		Attachments: ManifestAttachments{
			ObjectPrefix: attachmentsPrefix,
			Count:        attachmentCount,
			TotalBytes:   attachmentTotalBytes,
		},
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal backup manifest: %w", err)
	}
	return data, nil
}

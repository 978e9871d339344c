package model

// AttachmentRef identifies one stored attachment blob. The backup run
// enumerates these fresh every time; they are never cached.
type AttachmentRef struct {
	CipherID     string `json:"cipher_id"`
	AttachmentID string `json:"attachment_id"`
	FileName     string `json:"file_name"`
	SizeBytes    int64  `json:"size_bytes"`
}

// BlobKey returns the attachment's key in the blob store.
func (r AttachmentRef) BlobKey() string {
	return r.CipherID + "/" + r.AttachmentID
}

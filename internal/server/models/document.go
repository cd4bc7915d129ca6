package models

import "time"

// Document upload states.
const (
	// DocumentPending: stored, ingestion event not yet published.
	DocumentPending = "pending"
	// DocumentQueued: ingestion event accepted by the bus.
	DocumentQueued = "queued"
)

// Document is an uploaded file owned by a user. The content lives in object
// storage under StorageKey; CollectionName names its vector collection in the
// external embedding worker.
type Document struct {
	ID             int64
	UserID         int64
	FileName       string
	ContentType    string
	SizeBytes      int64
	StorageKey     string
	CollectionName string
	Status         string
	UploadedAt     time.Time
}

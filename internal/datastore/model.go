package datastore

import "time"

// User is a reviewer resolved from the request identity header. Account
// management itself lives outside this service; rows here mirror the identity
// provider.
type User struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:120"`
	CreatedAt time.Time
}

// FileAsset is one uploaded source document. FileKey is the object store key
// of the original, immutable rendition; sidecar keys are derived from it, not
// stored.
type FileAsset struct {
	ID           uint   `gorm:"primaryKey"`
	ProjectID    uint   `gorm:"index"`
	FileKey      string `gorm:"size:512;index"`
	OriginalName string `gorm:"size:255"`
	MimeType     string `gorm:"size:120"`
	Size         *int64 // byte size recorded at upload time, nil when unknown
	FileType     string `gorm:"size:60"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Review session statuses.
const (
	ReviewPending    = "pending"
	ReviewInProgress = "in_progress"
	ReviewApproved   = "approved"
	ReviewRevision   = "request_revision"
)

// ReviewSession binds one reviewer to one document. Each reviewer owns an
// independent annotation layer, so (FileAssetID, ReviewerID) is unique.
type ReviewSession struct {
	ID          uint `gorm:"primaryKey"`
	FileAssetID uint `gorm:"index:idx_review_file_reviewer,unique"`
	ReviewerID  uint `gorm:"index:idx_review_file_reviewer,unique"`
	Status      string `gorm:"size:30"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

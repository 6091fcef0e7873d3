package domain

import "time"

// Upload tracks one spreadsheet accepted for import and where its bytes live.
// StorageKey is the object-storage path; the original filename is kept for
// display only.
type Upload struct {
	ID         string    `gorm:"type:text;primaryKey" json:"upload_id"`
	ProfileID  string    `gorm:"type:text;not null;index:idx_uploads_profile" json:"profile_id"`
	Filename   string    `gorm:"type:text" json:"filename"`
	FileType   string    `gorm:"type:text" json:"file_type"`
	SizeBytes  int64     `json:"size_bytes"`
	StorageKey string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"uploaded_at"`
	UpdatedAt  time.Time `json:"-"`
}

// TableName returns the database table name for Upload.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Upload) TableName() string {
	return "uploads"
}

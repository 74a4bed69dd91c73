package store

import "github.com/tendant/simple-media/internal/format"

// Artifact is the metadata record of a stored original or derived image.
// CreatedAt holds epoch milliseconds and doubles as the pagination cursor.
type Artifact struct {
	ID              string        `gorm:"column:id;primaryKey;size:36"`
	OwnerID         *string       `gorm:"column:owner_id;size:36;index"`
	OwnerLabel      *string       `gorm:"column:owner_label;size:64"`
	HomeNode        string        `gorm:"column:home_node;size:255;not null"`
	Format          format.Format `gorm:"column:format;size:16;not null"`
	Width           int           `gorm:"column:width;not null"`
	Height          int           `gorm:"column:height;not null"`
	RevocationToken string        `gorm:"column:revocation_token;size:128;uniqueIndex;not null"`
	DisableResizing bool          `gorm:"column:disable_resizing;not null;default:false"`
	CreatedAt       int64         `gorm:"column:created_at;autoCreateTime:milli;index;not null"`
}

func (Artifact) TableName() string { return "images" }

// AccessKey is an owner identity with a rotatable bearer secret.
type AccessKey struct {
	UUID      string `gorm:"column:uuid;primaryKey;size:36"`
	Key       string `gorm:"column:key;size:128;uniqueIndex;not null"`
	CreatedAt int64  `gorm:"column:created_at;autoCreateTime:milli;not null"`
}

func (AccessKey) TableName() string { return "api_keys" }

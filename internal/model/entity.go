package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel is the common embedded field set for every index/mirror table.
type BaseModel struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// AuthEntryRecord mirrors an in-memory auth.Entry so a restart does not
// silently invalidate sessions mid-conference. Keyed by the opaque hex
// token, not by ID.
type AuthEntryRecord struct {
	BaseModel
	Key    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"key"`
	Power  string    `gorm:"type:varchar(20);not null" json:"power"` // host, admin
	Expire time.Time `gorm:"not null" json:"expire"`
}

func (AuthEntryRecord) TableName() string {
	return "auth_entries"
}

// VoteRecord mirrors one day's vote tally for one event code, letting the
// admin dashboard query totals with SQL instead of reading every gob file.
type VoteRecord struct {
	BaseModel
	EventCode string `gorm:"type:varchar(64);not null;uniqueIndex:idx_vote_code_day" json:"event_code"`
	Day       string `gorm:"type:varchar(10);not null;uniqueIndex:idx_vote_code_day" json:"day"` // YYYY-MM-DD
	Count     int    `gorm:"not null;default:0" json:"count"`
}

func (VoteRecord) TableName() string {
	return "votes"
}

// TranscriptSessionRecord indexes one on-disk snapshot file for fast
// listing; the snapshot bytes themselves stay in the flat file this row
// points at.
type TranscriptSessionRecord struct {
	BaseModel
	RoomID    string    `gorm:"type:varchar(128);not null;index" json:"room_id"`
	StartedAt time.Time `gorm:"not null" json:"started_at"`
	FilePath  string    `gorm:"type:text;not null" json:"file_path"`
}

func (TranscriptSessionRecord) TableName() string {
	return "transcript_sessions"
}

package models

import (
	"time"
)

// MediaType is the post kind reported by Threads.
type MediaType string

const (
	MediaTypeText          MediaType = "TEXT"
	MediaTypeImage         MediaType = "IMAGE"
	MediaTypeVideo         MediaType = "VIDEO"
	MediaTypeCarouselAlbum MediaType = "CAROUSEL_ALBUM"
)

// Valid reports whether t is one of the stored media types.
func (t MediaType) Valid() bool {
	switch t {
	case MediaTypeText, MediaTypeImage, MediaTypeVideo, MediaTypeCarouselAlbum:
		return true
	}
	return false
}

// ThreadsMedia is a post authored by the tracked account. Rows are written once.
type ThreadsMedia struct {
	MediaID      string    `gorm:"primaryKey;size:64" json:"media_id"`
	AuthorUserID string    `gorm:"size:64;not null;index" json:"author_user_id"`
	CreatedAt    time.Time `gorm:"not null;index;autoCreateTime:false" json:"created_at"`
	MediaType    MediaType `gorm:"size:32;not null;check:media_type IN ('TEXT','IMAGE','VIDEO','CAROUSEL_ALBUM')" json:"media_type"`
	Permalink    string    `gorm:"type:text" json:"permalink"`
	InsertedAt   time.Time `gorm:"autoCreateTime" json:"inserted_at"`

	Insights []MediaInsight `gorm:"foreignKey:MediaID;references:MediaID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

func (ThreadsMedia) TableName() string {
	return "threads_media"
}

// MediaInsight is the per-day metric snapshot of one post.
type MediaInsight struct {
	MediaID   string    `gorm:"primaryKey;size:64" json:"media_id"`
	AsOfDate  Date      `gorm:"primaryKey;index" json:"as_of_date"`
	Views     int64     `gorm:"not null;default:0;check:views >= 0" json:"views"`
	Likes     int64     `gorm:"not null;default:0;check:likes >= 0" json:"likes"`
	Replies   int64     `gorm:"not null;default:0;check:replies >= 0" json:"replies"`
	Reposts   int64     `gorm:"not null;default:0;check:reposts >= 0" json:"reposts"`
	Quotes    int64     `gorm:"not null;default:0;check:quotes >= 0" json:"quotes"`
	Shares    int64     `gorm:"not null;default:0;check:shares >= 0" json:"shares"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MediaInsight) TableName() string {
	return "media_insights"
}

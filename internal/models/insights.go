package models

import (
	"time"
)

// UserInsightsDaily 账号级别的每日快照
// Likes, replies, reposts, quotes and clicks are lifetime totals; views is the value for the day.
type UserInsightsDaily struct {
	AsOfDate       Date      `gorm:"primaryKey" json:"as_of_date"`
	Views          int64     `gorm:"not null;default:0" json:"views"`
	Likes          int64     `gorm:"not null;default:0" json:"likes"`
	Replies        int64     `gorm:"not null;default:0" json:"replies"`
	Reposts        int64     `gorm:"not null;default:0" json:"reposts"`
	Quotes         int64     `gorm:"not null;default:0" json:"quotes"`
	Clicks         int64     `gorm:"not null;default:0" json:"clicks"`
	FollowersCount int64     `gorm:"not null;default:0" json:"followers_count"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserInsightsDaily) TableName() string {
	return "user_insights_daily"
}

// LinkClicksDaily 每日链接点击
type LinkClicksDaily struct {
	AsOfDate  Date      `gorm:"primaryKey" json:"as_of_date"`
	LinkURL   string    `gorm:"primaryKey;size:2048;index" json:"link_url"`
	Clicks    int64     `gorm:"not null;default:0" json:"clicks"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LinkClicksDaily) TableName() string {
	return "link_clicks_daily"
}

// BreakdownType is a follower demographics dimension.
type BreakdownType string

const (
	BreakdownCountry BreakdownType = "country"
	BreakdownCity    BreakdownType = "city"
	BreakdownAge     BreakdownType = "age"
	BreakdownGender  BreakdownType = "gender"
)

// BreakdownTypes lists every dimension collected per run, in collection order.
var BreakdownTypes = []BreakdownType{BreakdownCountry, BreakdownCity, BreakdownAge, BreakdownGender}

// FollowerDemographic 粉丝画像
type FollowerDemographic struct {
	AsOfDate      Date          `gorm:"primaryKey;index:idx_follower_demographics_type_date,priority:2" json:"as_of_date"`
	BreakdownType BreakdownType `gorm:"primaryKey;size:16;index:idx_follower_demographics_type_date,priority:1" json:"breakdown_type"`
	BreakdownKey  string        `gorm:"primaryKey;size:255" json:"breakdown_key"`
	Value         int64         `gorm:"not null;default:0" json:"value"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FollowerDemographic) TableName() string {
	return "follower_demographics"
}

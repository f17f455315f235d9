package models

import (
	"time"
)

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// RunTrigger records what started a run.
type RunTrigger string

const (
	TriggerAPI       RunTrigger = "api"
	TriggerCLI       RunTrigger = "cli"
	TriggerScheduler RunTrigger = "scheduler"
)

// IngestRun 采集任务执行记录
type IngestRun struct {
	ID                  string     `gorm:"primaryKey;size:36" json:"id"`
	Trigger             RunTrigger `gorm:"size:16;not null;default:'api'" json:"trigger"`
	StartedAt           time.Time  `gorm:"not null;index" json:"started_at"`
	EndedAt             *time.Time `json:"ended_at"`
	Status              RunStatus  `gorm:"size:16;not null;default:'running';index" json:"status"`
	ErrorMessage        *string    `gorm:"type:text" json:"error_message"`
	MediaCount          int        `gorm:"not null;default:0" json:"media_count"`
	MediaFailed         int        `gorm:"not null;default:0" json:"media_failed"`
	UserInsightsUpdated bool       `gorm:"not null;default:false" json:"user_insights_updated"`
}

func (IngestRun) TableName() string {
	return "ingest_runs"
}

// Finished reports whether the run reached a terminal status.
func (r *IngestRun) Finished() bool {
	return r.Status == RunStatusSuccess || r.Status == RunStatusFailed
}

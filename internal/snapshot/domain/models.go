// Package domain contains the persistence model for import batches
// ("snapshots") and the status lifecycle the record generation algorithm
// anchors on.
package domain

import (
	"context"
	"time"
)

type Status string

const (
	StatusNew                  Status = "NEW"
	StatusFileUploaded         Status = "FILE_UPLOADED"
	StatusParsingInProgress    Status = "PARSING_IN_PROGRESS"
	StatusParsingFinished      Status = "PARSING_FINISHED"
	StatusProcessingInProgress Status = "PROCESSING_IN_PROGRESS"
	StatusProcessingFinished   Status = "PROCESSING_FINISHED"
	StatusImportInProgress     Status = "IMPORT_IN_PROGRESS"
	StatusImportFinished       Status = "IMPORT_FINISHED"
	StatusCommitted            Status = "COMMITTED"
	StatusError                Status = "ERROR"
	StatusDiscarded            Status = "DISCARDED"
)

// Valid reports whether the status is one of the lifecycle values.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusFileUploaded, StatusParsingInProgress, StatusParsingFinished,
		StatusProcessingInProgress, StatusProcessingFinished, StatusImportInProgress,
		StatusImportFinished, StatusCommitted, StatusError, StatusDiscarded:
		return true
	}
	return false
}

// Active reports whether the status marks the snapshot as being processed,
// which is when ProcessingStartedDate gets stamped.
func (s Status) Active() bool {
	switch s {
	case StatusParsingInProgress, StatusParsingFinished, StatusProcessingInProgress,
		StatusProcessingFinished, StatusImportInProgress, StatusImportFinished,
		StatusCommitted:
		return true
	}
	return false
}

// Snapshot is one import batch. The id is caller-supplied (the job execution
// id of the import run).
type Snapshot struct {
	ID                    string     `gorm:"primaryKey;type:text" json:"jobExecutionId"`
	Status                Status     `gorm:"type:text;not null" json:"status"`
	ProcessingStartedDate *time.Time `gorm:"" json:"processingStartedDate,omitempty"`
	CommittedDate         *time.Time `gorm:"" json:"committedDate,omitempty"`
	CreatedAt             time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt             time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (Snapshot) TableName() string { return "snapshots" }

type ListRequest struct {
	Status Status
	Limit  int
	Offset int
}

type Page struct {
	Snapshots    []Snapshot
	TotalRecords int64
}

// Service is the snapshot store contract.
type Service interface {
	Create(ctx context.Context, snapshot Snapshot) (*Snapshot, error)
	Update(ctx context.Context, snapshot Snapshot) (*Snapshot, error)
	Get(ctx context.Context, id string) (*Snapshot, error)
	List(ctx context.Context, req ListRequest) (Page, error)
	Delete(ctx context.Context, id string) error
}

// Package domain contains the persistence model for source record versions.
// A record is one generation of a logical entity; versions share a matchedId
// and are ordered by the generation the store assigns at creation time.
package domain

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type RecordType string

const (
	TypeMarcBib       RecordType = "MARC_BIB"
	TypeMarcAuthority RecordType = "MARC_AUTHORITY"
	TypeMarcHolding   RecordType = "MARC_HOLDING"
	TypeEdifact       RecordType = "EDIFACT"
)

func (t RecordType) Valid() bool {
	switch t {
	case TypeMarcBib, TypeMarcAuthority, TypeMarcHolding, TypeEdifact:
		return true
	}
	return false
}

type State string

const (
	StateActual  State = "ACTUAL"
	StateOld     State = "OLD"
	StateDraft   State = "DRAFT"
	StateDeleted State = "DELETED"
)

func (s State) Valid() bool {
	switch s {
	case StateActual, StateOld, StateDraft, StateDeleted:
		return true
	}
	return false
}

// External id keys stored in the ExternalIDs holder.
const (
	ExternalInstanceID    = "instanceId"
	ExternalInstanceHRID  = "instanceHrid"
	ExternalHoldingsID    = "holdingsId"
	ExternalHoldingsHRID  = "holdingsHrid"
	ExternalAuthorityID   = "authorityId"
	ExternalAuthorityHRID = "authorityHrid"
)

// RawRecord is the unparsed source payload.
type RawRecord struct {
	Content string `json:"content"`
}

// ParsedRecord is the structured MARC payload, stored as jsonb.
type ParsedRecord struct {
	Content json.RawMessage `json:"content"`
}

// ErrorRecord carries the diagnostic payload of a failed parse.
type ErrorRecord struct {
	Content     string `json:"content,omitempty"`
	Description string `json:"description"`
}

// Record is the version header; the raw/parsed/error payloads live in side
// tables and are persisted atomically with it.
type Record struct {
	ID          string            `gorm:"primaryKey;type:text" json:"id"`
	SnapshotID  string            `gorm:"not null;type:text" json:"snapshotId"`
	MatchedID   string            `gorm:"not null;type:text" json:"matchedId"`
	Generation  int               `gorm:"not null;default:0" json:"generation"`
	RecordType  RecordType        `gorm:"type:text;not null" json:"recordType"`
	State       State             `gorm:"type:text;not null;default:ACTUAL" json:"state"`
	Order       *int              `gorm:"column:record_order" json:"order,omitempty"`
	ExternalIDs datatypes.JSONMap `gorm:"column:external_ids;type:jsonb" json:"externalIdsHolder,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`

	RawRecord    *RawRecord    `gorm:"-" json:"rawRecord,omitempty"`
	ParsedRecord *ParsedRecord `gorm:"-" json:"parsedRecord,omitempty"`
	ErrorRecord  *ErrorRecord  `gorm:"-" json:"errorRecord,omitempty"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "records" }

// ExternalID returns the named entry of the external ids holder.
func (r *Record) ExternalID(key string) string {
	if r.ExternalIDs == nil {
		return ""
	}
	if value, ok := r.ExternalIDs[key].(string); ok {
		return value
	}
	return ""
}

// RawRecordRow backs the raw_records side table.
type RawRecordRow struct {
	RecordID string `gorm:"primaryKey;type:text"`
	Content  string `gorm:"type:text;not null"`
}

func (RawRecordRow) TableName() string { return "raw_records" }

// ParsedRecordRow backs the parsed_records side table.
type ParsedRecordRow struct {
	RecordID string         `gorm:"primaryKey;type:text"`
	Content  datatypes.JSON `gorm:"type:jsonb;not null"`
}

func (ParsedRecordRow) TableName() string { return "parsed_records" }

// ErrorRecordRow backs the error_records side table.
type ErrorRecordRow struct {
	RecordID    string `gorm:"primaryKey;type:text"`
	Content     string `gorm:"type:text"`
	Description string `gorm:"type:text;not null"`
}

func (ErrorRecordRow) TableName() string { return "error_records" }

// ListRequest filters the record listing. MatchedID, Generation and the
// CreatedAfter/CreatedBefore bounds form the query predicate over the
// indexed columns.
type ListRequest struct {
	RecordType    RecordType
	State         State
	SnapshotID    string
	MatchedID     string
	Generation    *int
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

type Page struct {
	Records      []Record
	TotalRecords int64
}

// Service is the record store contract. Create assigns the generation; it is
// never supplied by the caller.
type Service interface {
	Create(ctx context.Context, record Record) (*Record, error)
	GetByID(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, record Record) (*Record, error)
	List(ctx context.Context, req ListRequest) (Page, error)
	Delete(ctx context.Context, id string) error
	DeleteBySnapshot(ctx context.Context, snapshotID string) error
}

package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OutboxEvent describes one event to store in the outbox.
type OutboxEvent struct {
	Type      string
	Envelope  Envelope
	DedupeKey string
}

// OutboxRow backs the data_import_events table.
type OutboxRow struct {
	ID        int64          `gorm:"primaryKey"`
	EventType string         `gorm:"not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	DedupeKey *string        `gorm:"uniqueIndex"`
	Published bool           `gorm:"not null;default:false"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (OutboxRow) TableName() string { return "data_import_events" }

// Outbox inserts outbound events into the data_import_events table so they
// commit atomically with the record mutation that produced them.
type Outbox struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewOutbox(db *gorm.DB, genID *snowflake.Node) *Outbox {
	return &Outbox{db: db, genID: genID}
}

// Publish stores an event using the default database connection.
func (o *Outbox) Publish(ctx context.Context, event OutboxEvent) error {
	return o.publish(ctx, o.db, event)
}

// PublishTx stores an event using an existing transaction.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event OutboxEvent) error {
	if tx == nil {
		return errors.New("missing_transaction")
	}
	return o.publish(ctx, tx, event)
}

func (o *Outbox) publish(ctx context.Context, db *gorm.DB, event OutboxEvent) error {
	if o == nil || db == nil || o.genID == nil {
		return errors.New("outbox_unavailable")
	}
	name := strings.TrimSpace(event.Type)
	if name == "" {
		name = strings.TrimSpace(event.Envelope.EventType)
	}
	if name == "" {
		return errors.New("missing_event_type")
	}

	payload := datatypes.JSONMap{
		"eventType":    event.Envelope.EventType,
		"eventPayload": event.Envelope.EventPayload,
	}
	if event.Envelope.ID != "" {
		payload["id"] = event.Envelope.ID
	}

	dedupe := strings.TrimSpace(event.DedupeKey)
	var dedupeValue any
	if dedupe != "" {
		dedupeValue = dedupe
	}

	now := time.Now().UTC()
	return db.WithContext(ctx).Exec(
		`INSERT INTO data_import_events (id, event_type, payload, dedupe_key, published, created_at)
		 VALUES (?, ?, ?, ?, false, ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		o.genID.Generate(),
		name,
		payload,
		dedupeValue,
		now,
	).Error
}

// PendingBatch returns up to limit unpublished outbox rows, oldest first.
func (o *Outbox) PendingBatch(ctx context.Context, limit int) ([]OutboxRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []OutboxRow
	err := o.db.WithContext(ctx).
		Where("published = ?", false).
		Order("created_at").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkPublished flags a delivered outbox row.
func (o *Outbox) MarkPublished(ctx context.Context, id int64) error {
	return o.db.WithContext(ctx).
		Model(&OutboxRow{}).
		Where("id = ?", id).
		Update("published", true).Error
}

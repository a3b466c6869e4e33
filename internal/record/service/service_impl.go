package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vijay-eis/mod-source-record-storage/internal/clock"
	"github.com/vijay-eis/mod-source-record-storage/internal/observability/metrics"
	recorddomain "github.com/vijay-eis/mod-source-record-storage/internal/record/domain"
	snapshotdomain "github.com/vijay-eis/mod-source-record-storage/internal/snapshot/domain"
	"github.com/vijay-eis/mod-source-record-storage/internal/storeerr"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.StoreMetrics
}

func NewService(p ServiceParam) recorddomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("record.service"),
		clock:   p.Clock,
		metrics: metrics.Store(),
	}
}

// Create validates the owning snapshot, assigns the generation and persists
// the header together with its raw/parsed/error payloads in one transaction.
// The generation counts only lineage predecessors whose snapshot committed
// before this record's snapshot began processing, so a batch that commits out
// of temporal order cannot inflate generations assigned earlier.
func (s *Service) Create(ctx context.Context, record recorddomain.Record) (*recorddomain.Record, error) {
	if err := validateNew(&record); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var snapshot snapshotdomain.Snapshot
		if err := tx.Where("id = ?", record.SnapshotID).First(&snapshot).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("snapshot %s: %w", record.SnapshotID, storeerr.ErrNotFound)
			}
			return err
		}
		if snapshot.ProcessingStartedDate == nil {
			return fmt.Errorf("snapshot %s has no processing start date: %w",
				record.SnapshotID, storeerr.ErrValidation)
		}

		if err := s.lockLineage(tx, record.MatchedID); err != nil {
			return err
		}

		generation, err := s.nextGeneration(tx, record.MatchedID, snapshot)
		if err != nil {
			return err
		}
		record.Generation = generation

		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if err := savePayloads(tx, &record); err != nil {
			return err
		}

		if generation > 0 {
			// The newest generation owns the ACTUAL state of the lineage.
			return tx.Exec(
				`UPDATE records SET state = ?, updated_at = ?
				 WHERE matched_id = ? AND id <> ? AND state = ?`,
				recorddomain.StateOld,
				now,
				record.MatchedID,
				record.ID,
				recorddomain.StateActual,
			).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncRecordsCreated(string(record.RecordType))
	s.log.Debug("record created",
		zap.String("record_id", record.ID),
		zap.String("matched_id", record.MatchedID),
		zap.Int("generation", record.Generation))
	return &record, nil
}

// lockLineage serializes concurrent creations for one matchedId. A row lock
// is not enough because the first two writers of a lineage both see an empty
// set, so an advisory transaction lock keyed on the matchedId is taken
// instead. Dialects without advisory locks (sqlite in tests) run
// single-writer and skip it.
func (s *Service) lockLineage(tx *gorm.DB, matchedID string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(`SELECT pg_advisory_xact_lock(hashtext(?))`, matchedID).Error
}

// nextGeneration is MAX(generation)+1 over lineage records whose snapshot is
// COMMITTED with a commit timestamp earlier than the current snapshot's
// processing start; 0 when no predecessor qualifies. The result is final:
// later commits never re-order generations already assigned.
func (s *Service) nextGeneration(tx *gorm.DB, matchedID string, snapshot snapshotdomain.Snapshot) (int, error) {
	var result struct {
		MaxGeneration *int
	}
	err := tx.Raw(
		`SELECT MAX(r.generation) AS max_generation
		 FROM records r
		 JOIN snapshots s ON s.id = r.snapshot_id
		 WHERE r.matched_id = ?
		   AND s.status = ?
		   AND s.committed_date IS NOT NULL
		   AND s.committed_date < ?`,
		matchedID,
		snapshotdomain.StatusCommitted,
		snapshot.ProcessingStartedDate,
	).Scan(&result).Error
	if err != nil {
		return 0, err
	}
	if result.MaxGeneration == nil {
		return 0, nil
	}
	return *result.MaxGeneration + 1, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*recorddomain.Record, error) {
	var record recorddomain.Record
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("record %s: %w", id, storeerr.ErrNotFound)
		}
		return nil, err
	}
	if err := loadPayloads(s.db.WithContext(ctx), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Update is a full replace of the header and payloads. Generation and
// matchedId are immutable and carried over from the stored version.
func (s *Service) Update(ctx context.Context, record recorddomain.Record) (*recorddomain.Record, error) {
	if record.ID == "" {
		return nil, fmt.Errorf("missing record id: %w", storeerr.ErrValidation)
	}
	if record.State != "" && !record.State.Valid() {
		return nil, fmt.Errorf("unknown record state %q: %w", record.State, storeerr.ErrValidation)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing recorddomain.Record
		if err := tx.Where("id = ?", record.ID).First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("record %s: %w", record.ID, storeerr.ErrNotFound)
			}
			return err
		}

		record.Generation = existing.Generation
		record.MatchedID = existing.MatchedID
		record.CreatedAt = existing.CreatedAt
		record.UpdatedAt = s.clock.Now()
		if record.State == "" {
			record.State = existing.State
		}

		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		if err := deletePayloads(tx, record.ID); err != nil {
			return err
		}
		return savePayloads(tx, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Service) List(ctx context.Context, req recorddomain.ListRequest) (recorddomain.Page, error) {
	query := s.db.WithContext(ctx).Model(&recorddomain.Record{})
	if req.RecordType != "" {
		query = query.Where("record_type = ?", req.RecordType)
	}
	if req.State != "" {
		query = query.Where("state = ?", req.State)
	}
	if req.SnapshotID != "" {
		query = query.Where("snapshot_id = ?", req.SnapshotID)
	}
	if req.MatchedID != "" {
		query = query.Where("matched_id = ?", req.MatchedID)
	}
	if req.Generation != nil {
		query = query.Where("generation = ?", *req.Generation)
	}
	if req.CreatedAfter != nil {
		query = query.Where("created_at > ?", *req.CreatedAfter)
	}
	if req.CreatedBefore != nil {
		query = query.Where("created_at < ?", *req.CreatedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return recorddomain.Page{}, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	var records []recorddomain.Record
	err := query.Order("created_at ASC, id ASC").Limit(limit).Offset(req.Offset).Find(&records).Error
	if err != nil {
		return recorddomain.Page{}, err
	}
	for i := range records {
		if err := loadPayloads(s.db.WithContext(ctx), &records[i]); err != nil {
			return recorddomain.Page{}, err
		}
	}
	return recorddomain.Page{Records: records, TotalRecords: total}, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deletePayloads(tx, id); err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&recorddomain.Record{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("record %s: %w", id, storeerr.ErrNotFound)
		}
		return nil
	})
}

func (s *Service) DeleteBySnapshot(ctx context.Context, snapshotID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&recorddomain.Record{}).
			Where("snapshot_id = ?", snapshotID).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		for _, id := range ids {
			if err := deletePayloads(tx, id); err != nil {
				return err
			}
		}
		return tx.Where("snapshot_id = ?", snapshotID).Delete(&recorddomain.Record{}).Error
	})
}

func validateNew(record *recorddomain.Record) error {
	record.SnapshotID = strings.TrimSpace(record.SnapshotID)
	if record.SnapshotID == "" {
		return fmt.Errorf("missing snapshot id: %w", storeerr.ErrValidation)
	}
	if !record.RecordType.Valid() {
		return fmt.Errorf("unknown record type %q: %w", record.RecordType, storeerr.ErrValidation)
	}
	if record.RawRecord == nil {
		return fmt.Errorf("missing raw record: %w", storeerr.ErrValidation)
	}
	if record.State == "" {
		record.State = recorddomain.StateActual
	}
	if !record.State.Valid() {
		return fmt.Errorf("unknown record state %q: %w", record.State, storeerr.ErrValidation)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.MatchedID == "" {
		// First version of a lineage anchors the lineage on itself.
		record.MatchedID = record.ID
	}
	return nil
}

func savePayloads(tx *gorm.DB, record *recorddomain.Record) error {
	if record.RawRecord != nil {
		row := recorddomain.RawRecordRow{RecordID: record.ID, Content: record.RawRecord.Content}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	if record.ParsedRecord != nil {
		row := recorddomain.ParsedRecordRow{
			RecordID: record.ID,
			Content:  datatypes.JSON(record.ParsedRecord.Content),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	if record.ErrorRecord != nil {
		row := recorddomain.ErrorRecordRow{
			RecordID:    record.ID,
			Content:     record.ErrorRecord.Content,
			Description: record.ErrorRecord.Description,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func deletePayloads(tx *gorm.DB, recordID string) error {
	if err := tx.Where("record_id = ?", recordID).Delete(&recorddomain.RawRecordRow{}).Error; err != nil {
		return err
	}
	if err := tx.Where("record_id = ?", recordID).Delete(&recorddomain.ParsedRecordRow{}).Error; err != nil {
		return err
	}
	return tx.Where("record_id = ?", recordID).Delete(&recorddomain.ErrorRecordRow{}).Error
}

func loadPayloads(db *gorm.DB, record *recorddomain.Record) error {
	var raw recorddomain.RawRecordRow
	err := db.Where("record_id = ?", record.ID).First(&raw).Error
	switch {
	case err == nil:
		record.RawRecord = &recorddomain.RawRecord{Content: raw.Content}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	var parsed recorddomain.ParsedRecordRow
	err = db.Where("record_id = ?", record.ID).First(&parsed).Error
	switch {
	case err == nil:
		record.ParsedRecord = &recorddomain.ParsedRecord{Content: []byte(parsed.Content)}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}

	var errRow recorddomain.ErrorRecordRow
	err = db.Where("record_id = ?", record.ID).First(&errRow).Error
	switch {
	case err == nil:
		record.ErrorRecord = &recorddomain.ErrorRecord{
			Content:     errRow.Content,
			Description: errRow.Description,
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}
	return nil
}

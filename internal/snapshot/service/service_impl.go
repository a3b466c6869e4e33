package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vijay-eis/mod-source-record-storage/internal/clock"
	recorddomain "github.com/vijay-eis/mod-source-record-storage/internal/record/domain"
	snapshotdomain "github.com/vijay-eis/mod-source-record-storage/internal/snapshot/domain"
	"github.com/vijay-eis/mod-source-record-storage/internal/storeerr"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Records recorddomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	records recorddomain.Service
}

func NewService(p ServiceParam) snapshotdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("snapshot.service"),
		clock:   p.Clock,
		records: p.Records,
	}
}

func (s *Service) Create(ctx context.Context, snapshot snapshotdomain.Snapshot) (*snapshotdomain.Snapshot, error) {
	if err := validate(&snapshot); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	snapshot.CreatedAt = now
	snapshot.UpdatedAt = now
	stampTransitions(&snapshot, nil, now)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&snapshotdomain.Snapshot{}).Where("id = ?", snapshot.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("snapshot %s already exists: %w", snapshot.ID, storeerr.ErrConflict)
		}
		return tx.Create(&snapshot).Error
	})
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Update is a full replace, except that ProcessingStartedDate is stamped once
// on the first active status and CommittedDate on the COMMITTED transition;
// both are then immutable. The COMMITTED stamp is what makes the snapshot's
// records eligible to anchor later generations, so it is written in the same
// transaction as the status.
func (s *Service) Update(ctx context.Context, snapshot snapshotdomain.Snapshot) (*snapshotdomain.Snapshot, error) {
	if err := validate(&snapshot); err != nil {
		return nil, err
	}

	var updated snapshotdomain.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing snapshotdomain.Snapshot
		if err := tx.Where("id = ?", snapshot.ID).First(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("snapshot %s: %w", snapshot.ID, storeerr.ErrNotFound)
			}
			return err
		}

		snapshot.CreatedAt = existing.CreatedAt
		snapshot.UpdatedAt = s.clock.Now()
		stampTransitions(&snapshot, &existing, snapshot.UpdatedAt)

		if err := tx.Save(&snapshot).Error; err != nil {
			return err
		}
		updated = snapshot
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated.Status == snapshotdomain.StatusCommitted {
		s.log.Info("snapshot committed", zap.String("snapshot_id", updated.ID))
	}
	return &updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (*snapshotdomain.Snapshot, error) {
	var snapshot snapshotdomain.Snapshot
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("snapshot %s: %w", id, storeerr.ErrNotFound)
		}
		return nil, err
	}
	return &snapshot, nil
}

func (s *Service) List(ctx context.Context, req snapshotdomain.ListRequest) (snapshotdomain.Page, error) {
	query := s.db.WithContext(ctx).Model(&snapshotdomain.Snapshot{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return snapshotdomain.Page{}, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	var snapshots []snapshotdomain.Snapshot
	err := query.Order("created_at ASC, id ASC").Limit(limit).Offset(req.Offset).Find(&snapshots).Error
	if err != nil {
		return snapshotdomain.Page{}, err
	}
	return snapshotdomain.Page{Snapshots: snapshots, TotalRecords: total}, nil
}

// Delete removes the snapshot and every record it owns, payloads included.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.records != nil {
		if err := s.records.DeleteBySnapshot(ctx, id); err != nil {
			return err
		}
	}
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&snapshotdomain.Snapshot{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("snapshot %s: %w", id, storeerr.ErrNotFound)
	}
	return nil
}

func validate(snapshot *snapshotdomain.Snapshot) error {
	snapshot.ID = strings.TrimSpace(snapshot.ID)
	if snapshot.ID == "" {
		return fmt.Errorf("missing snapshot id: %w", storeerr.ErrValidation)
	}
	if !snapshot.Status.Valid() {
		return fmt.Errorf("unknown snapshot status %q: %w", snapshot.Status, storeerr.ErrValidation)
	}
	return nil
}

// stampTransitions keeps the once-only timestamps. existing is nil on create.
func stampTransitions(snapshot, existing *snapshotdomain.Snapshot, now time.Time) {
	if existing != nil {
		if existing.ProcessingStartedDate != nil {
			snapshot.ProcessingStartedDate = existing.ProcessingStartedDate
		}
		if existing.CommittedDate != nil {
			snapshot.CommittedDate = existing.CommittedDate
		}
	}
	if snapshot.ProcessingStartedDate == nil && snapshot.Status.Active() {
		started := now
		snapshot.ProcessingStartedDate = &started
	}
	if snapshot.CommittedDate == nil && snapshot.Status == snapshotdomain.StatusCommitted {
		committed := now
		snapshot.CommittedDate = &committed
	}
}

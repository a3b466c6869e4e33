package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vijay-eis/mod-source-record-storage/internal/clock"
	recorddomain "github.com/vijay-eis/mod-source-record-storage/internal/record/domain"
	snapshotdomain "github.com/vijay-eis/mod-source-record-storage/internal/snapshot/domain"
	"github.com/vijay-eis/mod-source-record-storage/internal/storeerr"
)

func setupRecordTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&snapshotdomain.Snapshot{},
		&recorddomain.Record{},
		&recorddomain.RawRecordRow{},
		&recorddomain.ParsedRecordRow{},
		&recorddomain.ErrorRecordRow{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newRecordService(db *gorm.DB, clk clock.Clock) *Service {
	return &Service{db: db, log: zap.NewNop(), clock: clk}
}

func insertSnapshot(t *testing.T, db *gorm.DB, id string, status snapshotdomain.Status, started, committed *time.Time) {
	t.Helper()
	snapshot := snapshotdomain.Snapshot{
		ID:                    id,
		Status:                status,
		ProcessingStartedDate: started,
		CommittedDate:         committed,
		CreatedAt:             time.Now().UTC(),
		UpdatedAt:             time.Now().UTC(),
	}
	if err := db.Create(&snapshot).Error; err != nil {
		t.Fatalf("insert snapshot %s: %v", id, err)
	}
}

func commitSnapshot(t *testing.T, db *gorm.DB, id string, at time.Time) {
	t.Helper()
	err := db.Model(&snapshotdomain.Snapshot{}).Where("id = ?", id).
		Updates(map[string]any{"status": snapshotdomain.StatusCommitted, "committed_date": at}).Error
	if err != nil {
		t.Fatalf("commit snapshot %s: %v", id, err)
	}
}

func timePtr(v time.Time) *time.Time { return &v }

func TestCreateAssignsGenerationZero(t *testing.T) {
	db := setupRecordTestDB(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	insertSnapshot(t, db, "snap-1", snapshotdomain.StatusParsingInProgress, timePtr(base), nil)
	svc := newRecordService(db, &clock.Fixed{Instant: base.Add(time.Minute)})

	created, err := svc.Create(context.Background(), recorddomain.Record{
		SnapshotID: "snap-1",
		RecordType: recorddomain.TypeMarcBib,
		RawRecord:  &recorddomain.RawRecord{Content: "raw"},
		ParsedRecord: &recorddomain.ParsedRecord{
			Content: []byte(`{"leader":"00000nam","fields":[{"001":"in1"}]}`),
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Generation != 0 {
		t.Fatalf("expected generation 0, got %d", created.Generation)
	}
	if created.MatchedID != created.ID {
		t.Fatalf("expected matchedId to anchor on id, got %s vs %s", created.MatchedID, created.ID)
	}
	if created.State != recorddomain.StateActual {
		t.Fatalf("expected ACTUAL, got %s", created.State)
	}

	loaded, err := svc.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.RawRecord == nil || loaded.RawRecord.Content != "raw" {
		t.Fatalf("raw payload not persisted: %+v", loaded.RawRecord)
	}
	if loaded.ParsedRecord == nil {
		t.Fatal("parsed payload not persisted")
	}
}

func TestCreateRejectsMissingSnapshot(t *testing.T) {
	db := setupRecordTestDB(t)
	svc := newRecordService(db, &clock.Fixed{Instant: time.Now().UTC()})

	_, err := svc.Create(context.Background(), recorddomain.Record{
		SnapshotID: "nope",
		RecordType: recorddomain.TypeMarcBib,
		RawRecord:  &recorddomain.RawRecord{Content: "raw"},
	})
	if !errors.Is(err, storeerr.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCreateRejectsSnapshotNotStarted(t *testing.T) {
	db := setupRecordTestDB(t)
	insertSnapshot(t, db, "snap-new", snapshotdomain.StatusNew, nil, nil)
	svc := newRecordService(db, &clock.Fixed{Instant: time.Now().UTC()})

	_, err := svc.Create(context.Background(), recorddomain.Record{
		SnapshotID: "snap-new",
		RecordType: recorddomain.TypeMarcBib,
		RawRecord:  &recorddomain.RawRecord{Content: "raw"},
	})
	if !errors.Is(err, storeerr.ErrValidation) {
		t.Fatalf("expected Validation, got %v", err)
	}
}

// Four imports of the same entity, each snapshot committed before the next
// begins processing, must produce generations 0..3 and leave only the newest
// version ACTUAL.
func TestSequentialCommitsIncrementGeneration(t *testing.T) {
	db := setupRecordTestDB(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: base}
	svc := newRecordService(db, clk)

	const matchedID = "entity-1"
	var lastID string
	for i := 0; i < 4; i++ {
		snapshotID := fmt.Sprintf("snap-%d", i)
		insertSnapshot(t, db, snapshotID, snapshotdomain.StatusParsingInProgress, timePtr(clk.Now()), nil)
		clk.Advance(time.Minute)

		created, err := svc.Create(context.Background(), recorddomain.Record{
			SnapshotID: snapshotID,
			MatchedID:  matchedID,
			RecordType: recorddomain.TypeMarcBib,
			RawRecord:  &recorddomain.RawRecord{Content: fmt.Sprintf("raw-%d", i)},
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if created.Generation != i {
			t.Fatalf("run %d: expected generation %d, got %d", i, i, created.Generation)
		}
		lastID = created.ID

		commitSnapshot(t, db, snapshotID, clk.Now())
		clk.Advance(time.Minute)
	}

	var states []recorddomain.Record
	if err := db.Where("matched_id = ?", matchedID).Order("generation").Find(&states).Error; err != nil {
		t.Fatalf("load lineage: %v", err)
	}
	if len(states) != 4 {
		t.Fatalf("expected 4 versions, got %d", len(states))
	}
	for _, r := range states {
		if r.ID == lastID {
			if r.State != recorddomain.StateActual {
				t.Fatalf("newest generation must stay ACTUAL, got %s", r.State)
			}
			continue
		}
		if r.State != recorddomain.StateOld {
			t.Fatalf("generation %d must be OLD, got %s", r.Generation, r.State)
		}
	}
}

// Snapshots that never commit contribute nothing to the generation count.
func TestUncommittedSnapshotsYieldGenerationZero(t *testing.T) {
	db := setupRecordTestDB(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: base}
	svc := newRecordService(db, clk)

	for i := 0; i < 3; i++ {
		snapshotID := fmt.Sprintf("snap-%d", i)
		insertSnapshot(t, db, snapshotID, snapshotdomain.StatusParsingInProgress, timePtr(clk.Now()), nil)
		clk.Advance(time.Minute)

		created, err := svc.Create(context.Background(), recorddomain.Record{
			SnapshotID: snapshotID,
			MatchedID:  "entity-1",
			RecordType: recorddomain.TypeMarcBib,
			RawRecord:  &recorddomain.RawRecord{Content: "raw"},
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if created.Generation != 0 {
			t.Fatalf("run %d: expected generation 0, got %d", i, created.Generation)
		}
	}
}

// A predecessor that commits only after the current snapshot began processing
// must not count; generations already assigned are final.
func TestCommitAfterProcessingStartDoesNotCount(t *testing.T) {
	db := setupRecordTestDB(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: base}
	svc := newRecordService(db, clk)

	insertSnapshot(t, db, "snap-1", snapshotdomain.StatusParsingInProgress, timePtr(base), nil)
	insertSnapshot(t, db, "snap-2", snapshotdomain.StatusParsingInProgress, timePtr(base.Add(time.Minute)), nil)

	clk.Advance(time.Minute)
	first, err := svc.Create(context.Background(), recorddomain.Record{
		SnapshotID: "snap-1",
		MatchedID:  "entity-1",
		RecordType: recorddomain.TypeMarcBib,
		RawRecord:  &recorddomain.RawRecord{Content: "raw-1"},
	})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if first.Generation != 0 {
		t.Fatalf("expected generation 0, got %d", first.Generation)
	}

	// snap-1 commits after snap-2 already started processing.
	commitSnapshot(t, db, "snap-1", base.Add(2*time.Minute))

	clk.Advance(2 * time.Minute)
	second, err := svc.Create(context.Background(), recorddomain.Record{
		SnapshotID: "snap-2",
		MatchedID:  "entity-1",
		RecordType: recorddomain.TypeMarcBib,
		RawRecord:  &recorddomain.RawRecord{Content: "raw-2"},
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.Generation != 0 {
		t.Fatalf("expected generation 0 for out-of-order commit, got %d", second.Generation)
	}
}

func TestUpdatePreservesGenerationAndMatchedID(t *testing.T) {
	db := setupRecordTestDB(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	insertSnapshot(t, db, "snap-1", snapshotdomain.StatusParsingInProgress, timePtr(base), nil)
	svc := newRecordService(db, &clock.Fixed{Instant: base.Add(time.Minute)})

	created, err := svc.Create(context.Background(), recorddomain.Record{
		SnapshotID: "snap-1",
		RecordType: recorddomain.TypeMarcBib,
		RawRecord:  &recorddomain.RawRecord{Content: "raw"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	created.Generation = 99
	created.MatchedID = "hijacked"
	created.State = recorddomain.StateDeleted
	updated, err := svc.Update(context.Background(), *created)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Generation != 0 {
		t.Fatalf("generation must be immutable, got %d", updated.Generation)
	}
	if updated.MatchedID != created.ID {
		t.Fatalf("matchedId must be immutable, got %s", updated.MatchedID)
	}
	if updated.State != recorddomain.StateDeleted {
		t.Fatalf("state change lost, got %s", updated.State)
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	db := setupRecordTestDB(t)
	svc := newRecordService(db, &clock.Fixed{Instant: time.Now().UTC()})

	_, err := svc.Update(context.Background(), recorddomain.Record{ID: "absent"})
	if !errors.Is(err, storeerr.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDeleteBySnapshotRemovesPayloads(t *testing.T) {
	db := setupRecordTestDB(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	insertSnapshot(t, db, "snap-1", snapshotdomain.StatusParsingInProgress, timePtr(base), nil)
	svc := newRecordService(db, &clock.Fixed{Instant: base.Add(time.Minute)})

	for i := 0; i < 2; i++ {
		_, err := svc.Create(context.Background(), recorddomain.Record{
			SnapshotID:   "snap-1",
			RecordType:   recorddomain.TypeMarcBib,
			RawRecord:    &recorddomain.RawRecord{Content: "raw"},
			ParsedRecord: &recorddomain.ParsedRecord{Content: []byte(`{"leader":"","fields":[]}`)},
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	if err := svc.DeleteBySnapshot(context.Background(), "snap-1"); err != nil {
		t.Fatalf("delete by snapshot: %v", err)
	}

	var headers, raws, parsed int64
	db.Model(&recorddomain.Record{}).Count(&headers)
	db.Model(&recorddomain.RawRecordRow{}).Count(&raws)
	db.Model(&recorddomain.ParsedRecordRow{}).Count(&parsed)
	if headers != 0 || raws != 0 || parsed != 0 {
		t.Fatalf("expected empty tables, got headers=%d raws=%d parsed=%d", headers, raws, parsed)
	}
}

func TestListQueryPredicateOverLineage(t *testing.T) {
	db := setupRecordTestDB(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: base.Add(time.Minute)}
	svc := newRecordService(db, clk)

	insertSnapshot(t, db, "snap-1", snapshotdomain.StatusParsingInProgress, timePtr(base), nil)
	first, err := svc.Create(context.Background(), recorddomain.Record{
		SnapshotID: "snap-1",
		RecordType: recorddomain.TypeMarcBib,
		RawRecord:  &recorddomain.RawRecord{Content: "raw"},
	})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	commitSnapshot(t, db, "snap-1", base.Add(2*time.Minute))

	clk.Advance(5 * time.Minute)
	insertSnapshot(t, db, "snap-2", snapshotdomain.StatusParsingInProgress, timePtr(base.Add(5*time.Minute)), nil)
	second, err := svc.Create(context.Background(), recorddomain.Record{
		SnapshotID: "snap-2",
		RecordType: recorddomain.TypeMarcBib,
		MatchedID:  first.MatchedID,
		RawRecord:  &recorddomain.RawRecord{Content: "raw"},
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.Generation != 1 {
		t.Fatalf("second generation: %d", second.Generation)
	}

	page, err := svc.List(context.Background(), recorddomain.ListRequest{
		MatchedID: first.MatchedID,
	})
	if err != nil {
		t.Fatalf("list by lineage: %v", err)
	}
	if page.TotalRecords != 2 {
		t.Fatalf("expected full lineage, got %d", page.TotalRecords)
	}

	generation := 1
	page, err = svc.List(context.Background(), recorddomain.ListRequest{
		MatchedID:  first.MatchedID,
		Generation: &generation,
	})
	if err != nil {
		t.Fatalf("list by generation: %v", err)
	}
	if page.TotalRecords != 1 || page.Records[0].ID != second.ID {
		t.Fatalf("expected generation 1 only: total=%d", page.TotalRecords)
	}

	cutoff := base.Add(3 * time.Minute)
	page, err = svc.List(context.Background(), recorddomain.ListRequest{
		MatchedID:    first.MatchedID,
		CreatedAfter: &cutoff,
	})
	if err != nil {
		t.Fatalf("list by creation bound: %v", err)
	}
	if page.TotalRecords != 1 || page.Records[0].ID != second.ID {
		t.Fatalf("expected records created after cutoff: total=%d", page.TotalRecords)
	}
}

func TestListFiltersByStateAndType(t *testing.T) {
	db := setupRecordTestDB(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clk := &clock.Fixed{Instant: base.Add(time.Minute)}
	insertSnapshot(t, db, "snap-1", snapshotdomain.StatusParsingInProgress, timePtr(base), nil)
	svc := newRecordService(db, clk)

	for _, recordType := range []recorddomain.RecordType{recorddomain.TypeMarcBib, recorddomain.TypeMarcAuthority} {
		_, err := svc.Create(context.Background(), recorddomain.Record{
			SnapshotID: "snap-1",
			RecordType: recordType,
			RawRecord:  &recorddomain.RawRecord{Content: "raw"},
		})
		if err != nil {
			t.Fatalf("create %s: %v", recordType, err)
		}
		clk.Advance(time.Second)
	}

	page, err := svc.List(context.Background(), recorddomain.ListRequest{
		RecordType: recorddomain.TypeMarcBib,
		State:      recorddomain.StateActual,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalRecords != 1 || len(page.Records) != 1 {
		t.Fatalf("expected 1 bib record, got total=%d len=%d", page.TotalRecords, len(page.Records))
	}
	if page.Records[0].RecordType != recorddomain.TypeMarcBib {
		t.Fatalf("wrong type: %s", page.Records[0].RecordType)
	}
}

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/evnsoft/clubshift_backend/config"
	"github.com/evnsoft/clubshift_backend/models"
	"gorm.io/gorm"
)

func TestNextBackoff(t *testing.T) {
	initial := 5 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{8, 10 * time.Minute},
		{100, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := NextBackoff(initial, tc.attempt); got != tc.want {
			t.Fatalf("NextBackoff(attempt=%d): want %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

// stubPublisher records publishes and answers with a canned id or error.
type stubPublisher struct {
	published []config.ShiftSyncMessage
	err       error
}

func (s *stubPublisher) publish(_ context.Context, msg config.ShiftSyncMessage) (string, error) {
	s.published = append(s.published, msg)
	if s.err != nil {
		return "", s.err
	}
	return "msg-1", nil
}

func newDispatcherTest(t *testing.T) (*gorm.DB, *SyncDispatcher, *stubPublisher) {
	t.Helper()
	db := config.ConnectTestDatabase()
	models.MigrateTable()

	stub := &stubPublisher{}
	d := NewSyncDispatcher(db, config.GetLogger())
	d.Publish = stub.publish
	return db, d, stub
}

func seedSyncRecord(t *testing.T, db *gorm.DB, venueId int, mutate func(*models.SyncRecord)) *models.SyncRecord {
	t.Helper()
	payload, err := json.Marshal(config.ShiftSyncMessage{
		ShiftId:   venueId,
		ShiftDate: "2026-03-02",
		ShiftType: "morning",
		VenueId:   venueId,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	record := models.SyncRecord{
		ShiftDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		ShiftType: models.ShiftTypeMorning,
		VenueId:   venueId,
		ShiftId:   venueId,
		Status:    models.SyncStatusPending,
		Payload:   payload,
	}
	if mutate != nil {
		mutate(&record)
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed sync record: %v", err)
	}
	return &record
}

func reloadRecord(t *testing.T, db *gorm.DB, id int) *models.SyncRecord {
	t.Helper()
	var record models.SyncRecord
	if err := db.First(&record, id).Error; err != nil {
		t.Fatalf("reload sync record %d: %v", id, err)
	}
	return &record
}

func TestDispatchOnce_PublishesPendingRecord(t *testing.T) {
	db, d, stub := newDispatcherTest(t)
	seeded := seedSyncRecord(t, db, 1, nil)

	d.dispatchOnce(context.Background())

	if len(stub.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(stub.published))
	}
	if stub.published[0].SyncRecordId != seeded.ID {
		t.Fatalf("published record id: want %d, got %d", seeded.ID, stub.published[0].SyncRecordId)
	}

	record := reloadRecord(t, db, seeded.ID)
	if record.Status != models.SyncStatusSuccess {
		t.Fatalf("expected success, got %s", record.Status)
	}
	if record.Attempts != 1 {
		t.Fatalf("expected one attempt, got %d", record.Attempts)
	}
	if !strings.Contains(string(record.Response), "msg-1") {
		t.Fatalf("response must carry the broker message id, got %s", record.Response)
	}
	if record.DispatchedAt == nil {
		t.Fatal("dispatched_at must be set on success")
	}
	if record.LockedAt != nil || record.LockedBy != nil {
		t.Fatalf("success must release the dispatch lock: %+v", record)
	}
}

func TestDispatchOnce_SkipsFutureNextAttempt(t *testing.T) {
	db, d, stub := newDispatcherTest(t)
	future := time.Now().UTC().Add(time.Hour)
	seeded := seedSyncRecord(t, db, 1, func(r *models.SyncRecord) {
		r.Status = models.SyncStatusFailed
		r.NextAttemptAt = &future
	})

	d.dispatchOnce(context.Background())

	if len(stub.published) != 0 {
		t.Fatalf("record with a future next_attempt_at must not be claimed, published %d", len(stub.published))
	}
	record := reloadRecord(t, db, seeded.ID)
	if record.Status != models.SyncStatusFailed || record.Attempts != 0 {
		t.Fatalf("record must be untouched, got %+v", record)
	}
}

func TestDispatchOnce_FailureSchedulesBackoff(t *testing.T) {
	db, d, stub := newDispatcherTest(t)
	stub.err = errors.New("pubsub unavailable")
	seeded := seedSyncRecord(t, db, 1, nil)

	before := time.Now().UTC()
	d.dispatchOnce(context.Background())

	record := reloadRecord(t, db, seeded.ID)
	if record.Status != models.SyncStatusFailed {
		t.Fatalf("expected failed, got %s", record.Status)
	}
	if record.Error == nil || !strings.Contains(*record.Error, "pubsub unavailable") {
		t.Fatalf("publish error must be recorded, got %v", record.Error)
	}
	if record.NextAttemptAt == nil {
		t.Fatal("failure must schedule a next attempt")
	}
	wantAt := before.Add(NextBackoff(d.InitialBackoff, record.Attempts))
	if record.NextAttemptAt.Before(wantAt.Add(-time.Second)) || record.NextAttemptAt.After(wantAt.Add(5*time.Second)) {
		t.Fatalf("next attempt around %s expected, got %s", wantAt, record.NextAttemptAt)
	}
	if record.LockedAt != nil || record.LockedBy != nil {
		t.Fatalf("failure must release the dispatch lock: %+v", record)
	}

	// Scheduled in the future, so an immediate second pass leaves it alone.
	d.dispatchOnce(context.Background())
	if len(stub.published) != 1 {
		t.Fatalf("backed-off record must not be retried immediately, published %d", len(stub.published))
	}
}

func TestDispatchOnce_ParksUnreadablePayload(t *testing.T) {
	db, d, stub := newDispatcherTest(t)
	seeded := seedSyncRecord(t, db, 1, func(r *models.SyncRecord) {
		r.Payload = []byte("not json")
	})

	d.dispatchOnce(context.Background())

	if len(stub.published) != 0 {
		t.Fatalf("unreadable payload must never reach the publisher, published %d", len(stub.published))
	}
	record := reloadRecord(t, db, seeded.ID)
	if record.Status != models.SyncStatusFailed {
		t.Fatalf("expected parked failed record, got %s", record.Status)
	}
	if record.NextAttemptAt != nil {
		t.Fatalf("parked record must not be retried automatically, next attempt %s", record.NextAttemptAt)
	}

	// Stays parked on subsequent passes until an operator re-registers it.
	d.dispatchOnce(context.Background())
	if len(stub.published) != 0 {
		t.Fatalf("parked record must stay parked, published %d", len(stub.published))
	}
}

func TestDispatchOnce_ReclaimsStaleLock(t *testing.T) {
	db, d, stub := newDispatcherTest(t)
	stale := time.Now().UTC().Add(-2 * d.LockTimeout)
	other := "dead-dispatcher"
	seeded := seedSyncRecord(t, db, 1, func(r *models.SyncRecord) {
		r.LockedAt = &stale
		r.LockedBy = &other
		r.Attempts = 1
	})

	d.dispatchOnce(context.Background())

	if len(stub.published) != 1 {
		t.Fatalf("stale-locked record must be reclaimed, published %d", len(stub.published))
	}
	record := reloadRecord(t, db, seeded.ID)
	if record.Status != models.SyncStatusSuccess {
		t.Fatalf("expected success after reclaim, got %s", record.Status)
	}
	if record.Attempts != 2 {
		t.Fatalf("reclaim must count as a new attempt, got %d", record.Attempts)
	}
}

func TestDispatchOnce_SkipsFreshForeignLock(t *testing.T) {
	db, d, stub := newDispatcherTest(t)
	now := time.Now().UTC()
	other := "live-dispatcher"
	seedSyncRecord(t, db, 1, func(r *models.SyncRecord) {
		r.LockedAt = &now
		r.LockedBy = &other
	})

	d.dispatchOnce(context.Background())

	if len(stub.published) != 0 {
		t.Fatalf("freshly locked record belongs to its holder, published %d", len(stub.published))
	}
}

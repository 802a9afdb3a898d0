package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bsm/redislock"
	"github.com/evnsoft/clubshift_backend/config"
	"github.com/evnsoft/clubshift_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncDispatcher pushes registered shift exports to the accounting topic.
// Exactly-once intent lives in the SyncRecord uniqueness constraint; the
// dispatcher itself only needs at-least-once delivery with backoff.
type SyncDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string

	// Publish delivers one message to the accounting topic and returns the
	// broker-assigned message id. Defaults to the pub/sub publisher.
	Publish func(ctx context.Context, msg config.ShiftSyncMessage) (string, error)

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	InitialBackoff time.Duration
}

func NewSyncDispatcher(db *gorm.DB, logger *logrus.Logger) *SyncDispatcher {
	return &SyncDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		Publish:        config.PublishShiftSyncWithResult,
		BatchSize:      50,
		PollInterval:   time.Second,
		LockTimeout:    30 * time.Second,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *SyncDispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *SyncDispatcher) dispatchOnce(ctx context.Context) {
	db := d.DB
	if db == nil {
		return
	}

	// Redis lock is a best-effort optimization to keep parallel dispatcher
	// replicas from claiming the same batch; reliability does not depend on
	// it, SKIP LOCKED in the claim transaction already prevents double work.
	var redisGuard *redislock.Lock
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "shift-sync-dispatch", d.LockTimeout, nil)
		if err == nil {
			redisGuard = lock
			defer func() { _ = redisGuard.Release(ctx) }()
		} else if err != redislock.ErrNotObtained {
			config.LogError(d.Logger, "workflow", "dispatchOnce", "redislock.Obtain", nil, err)
		}
	}

	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)

	var claimed []models.SyncRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - pending rows (fresh or re-registered)
		// - failed rows whose scheduled next_attempt_at has passed; a failed
		//   row with no next attempt is parked until re-registered
		// - rows whose dispatch lock went stale (dispatcher crashed mid-batch)
		q := tx.
			Where(`
				(
					status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?) AND locked_at IS NULL
				)
				OR
				(
					status = ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ? AND locked_at IS NULL
				)
				OR
				(
					status IN ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, models.SyncStatusPending, now,
				models.SyncStatusFailed, now,
				[]models.SyncStatus{models.SyncStatusPending, models.SyncStatusFailed}, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize)
		if tx.Dialector.Name() == "mysql" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			claimed[i].Attempts = claimed[i].Attempts + 1
			if err := tx.Model(&models.SyncRecord{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"LockedAt": claimed[i].LockedAt,
				"LockedBy": claimed[i].LockedBy,
				"Attempts": gorm.Expr("attempts + 1"),
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(d.Logger, "workflow", "dispatchOnce", "claim batch", nil, err)
		return
	}
	if len(claimed) == 0 {
		return
	}

	for _, rec := range claimed {
		var msg config.ShiftSyncMessage
		if err := json.Unmarshal(rec.Payload, &msg); err != nil {
			// Unreadable payload is not retryable; park the row as failed
			// with no next attempt so an operator can re-register it.
			_ = models.MarkSyncFailed(ctx, db, rec.ID, err, nil)
			config.LogError(d.Logger, "workflow", "dispatchOnce", "unmarshal payload", rec.ID, err)
			continue
		}
		msg.SyncRecordId = rec.ID

		publish := d.Publish
		if publish == nil {
			publish = config.PublishShiftSyncWithResult
		}
		pubID, pubErr := publish(ctx, msg)
		if pubErr != nil {
			next := now.Add(NextBackoff(d.InitialBackoff, rec.Attempts))
			_ = models.MarkSyncFailed(ctx, db, rec.ID, pubErr, &next)
			if d.Logger != nil {
				d.Logger.WithFields(logrus.Fields{
					"field":           "SyncDispatcher",
					"record_id":       rec.ID,
					"attempt":         rec.Attempts,
					"next_attempt_at": next.Format(time.RFC3339Nano),
				}).Error("shift sync publish failed: " + pubErr.Error())
			}
			continue
		}

		response, _ := json.Marshal(map[string]string{"pubsub_message_id": pubID})
		if err := models.MarkSyncSuccess(ctx, db, rec.ID, response); err != nil {
			config.LogError(d.Logger, "workflow", "dispatchOnce", "mark success", rec.ID, err)
		}
	}
}

// NextBackoff doubles from initial per attempt, capped at ten minutes.
func NextBackoff(initial time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > time.Minute*10 {
			return time.Minute * 10
		}
	}
	return backoff
}

// Package alarmstore persists alarm transitions to a SQLite-backed
// audit log via GORM. It is a write-behind observer of
// internal/fms/alarm.Engine, not the authoritative alarm state — the
// engine's in-memory active/historic sets remain the source of truth
// per spec §4.3; this store only records history for operators.
package alarmstore

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Nevermore-FMS/nevermore-fms-sub000/internal/fms/alarm"
)

// AuditRow is one alarm transition recorded to the database.
type AuditRow struct {
	ID          string    `gorm:"primaryKey;column:id"`
	Code        string    `gorm:"column:code;index:idx_audit_code"`
	Kind        int       `gorm:"column:kind"`
	Description string    `gorm:"column:description"`
	SourceID    string    `gorm:"column:source_id"`
	TargetScope string    `gorm:"column:target_scope"`
	Transition  string    `gorm:"column:transition"` // thrown | released | cleared
	Released    bool      `gorm:"column:released"`
	AutoClear   bool      `gorm:"column:auto_clear"`
	OccurredAt  time.Time `gorm:"column:occurred_at;index:idx_audit_occurred_at"`
	RecordedAt  time.Time `gorm:"column:recorded_at;autoCreateTime"`
}

func (AuditRow) TableName() string { return "alarm_audit_log" }

// Store implements alarm.Observer on top of a *gorm.DB.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New wraps db as an alarm.Observer. Migrate must be called once before
// use.
func New(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Migrate creates the audit table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&AuditRow{})
}

func (s *Store) insert(a alarm.Alarm, transition string) {
	row := AuditRow{
		ID:          a.ID + ":" + transition,
		Code:        a.Code,
		Kind:        int(a.Kind),
		Description: a.Description,
		SourceID:    a.SourceID,
		TargetScope: a.TargetScope,
		Transition:  transition,
		Released:    a.Released,
		AutoClear:   a.AutoClear,
		OccurredAt:  a.Timestamp,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		s.logger.Warn("alarm audit write failed",
			zap.String("code", a.Code), zap.String("transition", transition), zap.Error(err))
	}
}

func (s *Store) OnThrown(a alarm.Alarm)   { s.insert(a, "thrown") }
func (s *Store) OnReleased(a alarm.Alarm) { s.insert(a, "released") }
func (s *Store) OnCleared(a alarm.Alarm)  { s.insert(a, "cleared") }

// RecentHistoric returns the most recent "cleared" audit rows, newest
// first, for operator-facing history views.
func (s *Store) RecentHistoric(ctx context.Context, limit int) ([]AuditRow, error) {
	var rows []AuditRow
	err := s.db.WithContext(ctx).
		Where("transition = ?", "cleared").
		Order("occurred_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

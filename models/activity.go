package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// An Activity is one row of the activity ledger, the record of every
// activity the server has received or produced. The ledger is append only
// and keyed by (activity_id, direction), which makes every Record call
// idempotent.
type Activity struct {
	ID         uint32 `gorm:"primarykey"`
	CreatedAt  time.Time
	ActivityID string            `gorm:"size:512;uniqueIndex:idx_activities_id_direction;not null"`
	Direction  ActivityDirection `gorm:"uniqueIndex:idx_activities_id_direction;not null"`
	Type       string            `gorm:"size:32;not null"`
	ActorURI   string            `gorm:"size:255"`
	ObjectURI  string            `gorm:"size:512"`
	Payload    map[string]any    `gorm:"serializer:json"`
}

type ActivityDirection string

const (
	DirectionInbox  ActivityDirection = "inbox"
	DirectionOutbox ActivityDirection = "outbox"
)

func (ActivityDirection) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "postgres":
		return "enum('inbox', 'outbox')"
	case "sqlite":
		return "TEXT"
	default:
		return ""
	}
}

// Outcome reports what Record did with an activity.
type Outcome int

const (
	// Inserted means the activity was new and has been recorded.
	Inserted Outcome = iota
	// Duplicate means the activity was already in the ledger.
	Duplicate
	// Reconciled means a row recorded under a superseded identifier was
	// updated in place to the canonical identifier.
	Reconciled
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	case Reconciled:
		return "reconciled"
	default:
		return "unknown"
	}
}

type Activities struct {
	db *gorm.DB
}

func NewActivities(db *gorm.DB) *Activities {
	return &Activities{db: db}
}

// Record appends an activity to the ledger. If a row with the same
// activity id and direction already exists the ledger is left untouched
// and Duplicate is returned.
func (a *Activities) Record(activity *Activity) (Outcome, error) {
	return a.record(activity, true)
}

func (a *Activities) record(activity *Activity, retry bool) (Outcome, error) {
	tx := a.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "activity_id"}, {Name: "direction"}},
		DoNothing: true,
	}).Create(activity)
	if err := tx.Error; err != nil {
		if retry && schemaError(err) {
			if err := a.db.AutoMigrate(AllTables()...); err != nil {
				return Duplicate, err
			}
			return a.record(activity, false)
		}
		return Duplicate, err
	}
	if tx.RowsAffected == 0 {
		return Duplicate, nil
	}
	return Inserted, nil
}

// RecordReconciling appends an activity to the ledger, first checking
// whether it was previously recorded under one of the given superseded
// identifiers. A matching legacy row is rewritten in place to the
// canonical id rather than inserted again.
func (a *Activities) RecordReconciling(activity *Activity, legacyIDs []string) (Outcome, error) {
	if dup, err := a.Has(activity.ActivityID, activity.Direction); err != nil {
		return Duplicate, err
	} else if dup {
		return Duplicate, nil
	}
	for _, legacy := range legacyIDs {
		tx := a.db.Model(&Activity{}).
			Where("activity_id = ? AND direction = ?", legacy, activity.Direction).
			Update("activity_id", activity.ActivityID)
		if err := tx.Error; err != nil {
			return Duplicate, err
		}
		if tx.RowsAffected > 0 {
			return Reconciled, nil
		}
	}
	return a.Record(activity)
}

// Has reports whether an activity id has been recorded in the given
// direction.
func (a *Activities) Has(activityID string, direction ActivityDirection) (bool, error) {
	var count int64
	err := a.db.Model(&Activity{}).
		Where("activity_id = ? AND direction = ?", activityID, direction).
		Count(&count).Error
	if err != nil && schemaError(err) {
		if err := a.db.AutoMigrate(AllTables()...); err != nil {
			return false, err
		}
		err = a.db.Model(&Activity{}).
			Where("activity_id = ? AND direction = ?", activityID, direction).
			Count(&count).Error
	}
	return count > 0, err
}

// Inbox returns recorded inbox activities, newest first, excluding the
// given types.
func (a *Activities) Inbox(excludeTypes ...string) ([]Activity, error) {
	var activities []Activity
	tx := a.db.Where("direction = ?", DirectionInbox)
	if len(excludeTypes) > 0 {
		tx = tx.Where("type NOT IN ?", excludeTypes)
	}
	return activities, tx.Order("created_at DESC, id DESC").Find(&activities).Error
}

// schemaError reports whether err looks like the backing table or a
// column is missing, which happens when the ledger is opened against a
// database created by an older release.
func schemaError(err error) bool {
	msg := err.Error()
	for _, sig := range []string{
		"no such table",
		"no such column",
		"no column named",
		"doesn't exist",
	} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A DeliveryCursor is the per-collection watermark of the broadcast
// queue: entries created before the watermark have already been offered
// to followers, as have entries created at the watermark whose path does
// not sort after LastPath. The ledger still deduplicates anything the
// cursor lets through twice.
type DeliveryCursor struct {
	Collection string `gorm:"primarykey;size:64"`
	Watermark  time.Time
	// LastPath is the path of the last entry offered at the watermark
	// time, disambiguating entries that share a createdAt.
	LastPath  string `gorm:"size:512"`
	UpdatedAt time.Time
}

type Cursors struct {
	db *gorm.DB
}

func NewCursors(db *gorm.DB) *Cursors {
	return &Cursors{db: db}
}

// Get returns the cursor for a collection. A collection that has never
// been drained gets a zero cursor.
func (c *Cursors) Get(collection string) (DeliveryCursor, error) {
	var cursor DeliveryCursor
	err := c.db.Take(&cursor, "collection = ?", collection).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DeliveryCursor{Collection: collection}, nil
	}
	return cursor, err
}

// Put advances the cursor for a collection.
func (c *Cursors) Put(collection string, watermark time.Time, lastPath string) error {
	return c.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"watermark", "last_path", "updated_at",
		}),
	}).Create(&DeliveryCursor{
		Collection: collection,
		Watermark:  watermark,
		LastPath:   lastPath,
	}).Error
}

package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// FollowStatus is the lifecycle state of a follow relation.
type FollowStatus string

const (
	FollowRequested FollowStatus = "requested"
	FollowAccepted  FollowStatus = "accepted"
	FollowRemoved   FollowStatus = "removed"
)

func (FollowStatus) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "postgres":
		return "enum('requested', 'accepted', 'removed')"
	case "sqlite":
		return "TEXT"
	default:
		return ""
	}
}

// A Follower is a remote actor following the local actor. The followers
// table is the canonical record of who follows us; the activity ledger is
// history, not state.
type Follower struct {
	ActorURI    string `gorm:"primarykey;size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Inbox       string       `gorm:"size:255"`
	SharedInbox string       `gorm:"size:255"`
	Status      FollowStatus `gorm:"not null;default:'requested'"`
	// FollowID is the id of the Follow activity that established the
	// relation, echoed back as the object of our Accept.
	FollowID string `gorm:"size:512"`
}

// DeliveryInbox returns the inbox to deliver to, preferring the shared
// inbox when the follower advertises one.
func (f *Follower) DeliveryInbox() string {
	if f.SharedInbox != "" {
		return f.SharedInbox
	}
	return f.Inbox
}

type Followers struct {
	db *gorm.DB
}

func NewFollowers(db *gorm.DB) *Followers {
	return &Followers{db: db}
}

// Accept records actor as an accepted follower. It reports whether this
// is the first time the actor reached the accepted state, which is the
// moment the backlog is replayed to them.
func (f *Followers) Accept(actor *Actor, followID string) (first bool, err error) {
	var existing Follower
	err = f.db.Take(&existing, "actor_uri = ?", actor.URI).Error
	switch {
	case err == nil:
		first = existing.Status != FollowAccepted
	case err == gorm.ErrRecordNotFound:
		first = true
	default:
		return false, err
	}
	follower := &Follower{
		ActorURI:    actor.URI,
		Inbox:       actor.Inbox,
		SharedInbox: actor.SharedInbox,
		Status:      FollowAccepted,
		FollowID:    followID,
	}
	err = f.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "actor_uri"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"updated_at", "inbox", "shared_inbox", "status", "follow_id",
		}),
	}).Create(follower).Error
	return first, err
}

// FindByFollowID returns the follower whose relation was established by
// the Follow activity with the given id.
func (f *Followers) FindByFollowID(followID string) (*Follower, error) {
	if followID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var follower Follower
	if err := f.db.Take(&follower, "follow_id = ?", followID).Error; err != nil {
		return nil, err
	}
	return &follower, nil
}

// Remove marks the relation removed. Removing an unknown follower is not
// an error.
func (f *Followers) Remove(actorURI string) error {
	return f.db.Model(&Follower{}).
		Where("actor_uri = ?", actorURI).
		Update("status", FollowRemoved).Error
}

// Accepted returns all followers currently in the accepted state.
func (f *Followers) Accepted() ([]Follower, error) {
	var followers []Follower
	return followers, f.db.Where("status = ?", FollowAccepted).Order("created_at").Find(&followers).Error
}

// Count returns the number of accepted followers.
func (f *Followers) Count() (int64, error) {
	var count int64
	return count, f.db.Model(&Follower{}).Where("status = ?", FollowAccepted).Count(&count).Error
}

// A Following is a remote actor the local actor follows. Rows move from
// requested to accepted when the remote side sends an Accept receipt.
type Following struct {
	ActorURI  string `gorm:"primarykey;size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
	// FollowID is the id of our outbound Follow activity, matched against
	// the object of Accept and Reject receipts.
	FollowID string       `gorm:"size:512"`
	Status   FollowStatus `gorm:"not null;default:'requested'"`
}

type Followings struct {
	db *gorm.DB
}

func NewFollowings(db *gorm.DB) *Followings {
	return &Followings{db: db}
}

// Request records an outbound follow request, resetting any previous
// relation with the same actor.
func (f *Followings) Request(actorURI, followID string) error {
	return f.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "actor_uri"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"updated_at", "follow_id", "status",
		}),
	}).Create(&Following{
		ActorURI: actorURI,
		FollowID: followID,
		Status:   FollowRequested,
	}).Error
}

// Find returns the relation with the given actor, if any.
func (f *Followings) Find(actorURI string) (*Following, error) {
	var following Following
	if err := f.db.Take(&following, "actor_uri = ?", actorURI).Error; err != nil {
		return nil, err
	}
	return &following, nil
}

// MarkAccepted records that the remote actor accepted our follow.
func (f *Followings) MarkAccepted(actorURI string) error {
	return f.db.Model(&Following{}).
		Where("actor_uri = ?", actorURI).
		Update("status", FollowAccepted).Error
}

// Remove marks the relation removed.
func (f *Followings) Remove(actorURI string) error {
	return f.db.Model(&Following{}).
		Where("actor_uri = ?", actorURI).
		Update("status", FollowRemoved).Error
}

// Accepted returns all actors we follow whose requests were accepted.
func (f *Followings) Accepted() ([]Following, error) {
	var following []Following
	return following, f.db.Where("status = ?", FollowAccepted).Order("created_at").Find(&following).Error
}

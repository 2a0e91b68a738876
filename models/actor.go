package models

import (
	"fmt"
	"time"

	"github.com/sitepub/sitepub/internal/crypto"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// An Actor is a federated identity, either the single local actor this
// server publishes as, or a remote actor cached after resolution. Actors
// are keyed by their IRI.
type Actor struct {
	URI         string    `gorm:"primarykey;size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Name        string    `gorm:"size:64;uniqueIndex:idx_actors_name_domain;not null"`
	Domain      string    `gorm:"size:64;uniqueIndex:idx_actors_name_domain;not null"`
	DisplayName string    `gorm:"size:128"`
	Summary     string    `gorm:"type:text"`
	Inbox       string    `gorm:"size:255"`
	SharedInbox string    `gorm:"size:255"`
	Outbox      string    `gorm:"size:255"`
	Local       bool      `gorm:"not null;default:false"`
	// PublicKey is the actor's public key in PEM form.
	PublicKey []byte `gorm:"type:text"`
	// PrivateKey is the actor's private key in PEM form. Only set for the
	// local actor.
	PrivateKey []byte `gorm:"type:text"`
}

// PublicKeyID returns the IRI of the actor's public key, the keyId used
// when signing and verifying requests.
func (a *Actor) PublicKeyID() string {
	return fmt.Sprintf("%s#main-key", a.URI)
}

// DeliveryInbox returns the inbox activities should be delivered to,
// preferring the shared inbox when the actor advertises one.
func (a *Actor) DeliveryInbox() string {
	if a.SharedInbox != "" {
		return a.SharedInbox
	}
	return a.Inbox
}

func (a *Actor) Acct() string {
	return fmt.Sprintf("%s@%s", a.Name, a.Domain)
}

type Actors struct {
	db *gorm.DB
}

func NewActors(db *gorm.DB) *Actors {
	return &Actors{db: db}
}

// FindByURI returns the actor with the given IRI if it is known locally.
func (a *Actors) FindByURI(uri string) (*Actor, error) {
	var actor Actor
	return &actor, a.db.Take(&actor, "uri = ?", uri).Error
}

// Local returns the local actor.
func (a *Actors) Local() (*Actor, error) {
	var actor Actor
	return &actor, a.db.Take(&actor, "local = ?", true).Error
}

// CreateLocal creates the local actor with a fresh RSA keypair. It is an
// error to create a second local actor.
func (a *Actors) CreateLocal(uri, name, domain, displayName, summary string) (*Actor, error) {
	var count int64
	if err := a.db.Model(&Actor{}).Where("local = ?", true).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("local actor already exists")
	}
	kp, err := crypto.GenerateRSAKeypair()
	if err != nil {
		return nil, err
	}
	actor := &Actor{
		URI:         uri,
		Name:        name,
		Domain:      domain,
		DisplayName: displayName,
		Summary:     summary,
		Inbox:       uri + "/inbox",
		Outbox:      uri + "/outbox",
		Local:       true,
		PublicKey:   kp.PublicKey,
		PrivateKey:  kp.PrivateKey,
	}
	return actor, a.db.Create(actor).Error
}

// Upsert caches a resolved remote actor, replacing any previous copy.
func (a *Actors) Upsert(actor *Actor) error {
	return a.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "uri"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"updated_at", "display_name", "summary", "inbox", "shared_inbox", "outbox", "public_key",
		}),
	}).Create(actor).Error
}

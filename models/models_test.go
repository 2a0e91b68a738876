package models

import (
	"fmt"
	"testing"

	"github.com/sitepub/sitepub/internal/crypto"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MockActor creates a remote actor in the database.
func MockActor(t *testing.T, tx *gorm.DB, name, domain string, opts ...func(*Actor)) *Actor {
	t.Helper()
	require := require.New(t)

	kp, err := crypto.GenerateRSAKeypair()
	require.NoError(err)

	uri := fmt.Sprintf("https://%s/users/%s", domain, name)
	actor := &Actor{
		URI:         uri,
		Name:        name,
		Domain:      domain,
		DisplayName: name,
		Inbox:       uri + "/inbox",
		Outbox:      uri + "/outbox",
		PublicKey:   kp.PublicKey,
	}
	for _, opt := range opts {
		opt(actor)
	}
	require.NoError(tx.Create(actor).Error)
	return actor
}

// MockActivity records an inbox activity in the ledger.
func MockActivity(t *testing.T, tx *gorm.DB, id, typ, actorURI string) *Activity {
	t.Helper()
	require := require.New(t)

	activity := &Activity{
		ActivityID: id,
		Direction:  DirectionInbox,
		Type:       typ,
		ActorURI:   actorURI,
		Payload: map[string]any{
			"id":    id,
			"type":  typ,
			"actor": actorURI,
		},
	}
	outcome, err := NewActivities(tx).Record(activity)
	require.NoError(err)
	require.Equal(Inserted, outcome)
	return activity
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	require := require.New(t)
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger: logger.Default.LogMode(func() logger.LogLevel {
			return logger.Warn
		}()),
	})
	require.NoError(err)

	err = db.AutoMigrate(AllTables()...)
	require.NoError(err)

	return db
}

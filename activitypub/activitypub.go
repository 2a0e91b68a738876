// Package activitypub implements the federation side of the server: the
// actor document, inbox, outbox and delivery of activities to followers.
package activitypub

import (
	"crypto"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sitepub/sitepub/content"
	"github.com/sitepub/sitepub/internal/config"
	sitecrypto "github.com/sitepub/sitepub/internal/crypto"
)

const (
	// Context is the JSON-LD context of every activity we produce.
	Context = "https://www.w3.org/ns/activitystreams"
	// SecurityContext carries the publicKey vocabulary on actor documents.
	SecurityContext = "https://w3id.org/security/v1"
	// PublicAudience addresses an activity to the world.
	PublicAudience = "https://www.w3.org/ns/activitystreams#Public"
)

type Env struct {
	// DB is the database connection.
	DB         *gorm.DB
	Site       *config.Site
	Content    content.Store
	Dispatcher *Dispatcher
}

// GetKey resolves the actor that owns keyID and returns their public key.
func (e *Env) GetKey(keyID string) (crypto.PublicKey, error) {
	actor, err := NewResolver(e.DB).Resolve(trimKeyID(keyID))
	if err != nil {
		return nil, err
	}
	key, err := sitecrypto.ParseRSAPublicKey(actor.PublicKey)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// trimKeyID removes the #main-key suffix from the key id.
func trimKeyID(id string) string {
	if i := strings.Index(id, "#"); i != -1 {
		return id[:i]
	}
	return id
}

// resolveID returns the IRI of a reference, which may be a bare string,
// an embedded object with an id property, or an array of either.
func resolveID(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case map[string]any:
		return stringFromAny(v["id"])
	case []any:
		for _, entry := range v {
			if id := resolveID(entry); id != "" {
				return id
			}
		}
	}
	return ""
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

func mapFromAny(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func timeFromAnyOrZero(v any) time.Time {
	switch v := v.(type) {
	case string:
		t, _ := time.Parse(time.RFC3339, v)
		return t
	case time.Time:
		return v
	default:
		return time.Time{}
	}
}

package activitypub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/carlmjohnson/requests"
	"gorm.io/gorm"

	"github.com/sitepub/sitepub/models"
)

// ErrActorNotFound is returned when a remote actor cannot be resolved,
// whatever the underlying cause. Callers treat an unresolvable actor the
// same as one that does not exist.
var ErrActorNotFound = errors.New("activitypub: actor not found")

// A Resolver turns actor IRIs into Actor rows, fetching and caching
// remote actor documents as needed.
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve returns the actor with the given IRI, fetching their document
// from the remote server on a cache miss.
func (r *Resolver) Resolve(uri string) (*models.Actor, error) {
	actor, err := models.NewActors(r.db).FindByURI(uri)
	if err == nil {
		return actor, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return r.Refresh(uri)
}

// Refresh fetches the actor document at uri and caches it, replacing any
// previous copy.
func (r *Resolver) Refresh(uri string) (*models.Actor, error) {
	var doc map[string]any
	err := requests.URL(uri).
		Accept(`application/ld+json; profile="https://www.w3.org/ns/activitystreams"`).
		CheckContentType("application/ld+json", "application/activity+json", "application/json").
		CheckStatus(http.StatusOK).
		ToJSON(&doc).
		Fetch(context.Background())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrActorNotFound, uri, err)
	}
	actor, err := actorFromDocument(uri, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrActorNotFound, uri, err)
	}
	if err := models.NewActors(r.db).Upsert(actor); err != nil {
		return nil, err
	}
	return actor, nil
}

func actorFromDocument(uri string, doc map[string]any) (*models.Actor, error) {
	id := stringFromAny(doc["id"])
	if id == "" {
		id = uri
	}
	u, err := url.Parse(id)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid actor id %q", id)
	}
	name := stringFromAny(doc["preferredUsername"])
	if name == "" {
		name = u.Path
	}
	actor := &models.Actor{
		URI:         id,
		Name:        name,
		Domain:      u.Host,
		DisplayName: stringFromAny(doc["name"]),
		Summary:     stringFromAny(doc["summary"]),
		Inbox:       stringFromAny(doc["inbox"]),
		SharedInbox: stringFromAny(mapFromAny(doc["endpoints"])["sharedInbox"]),
		Outbox:      stringFromAny(doc["outbox"]),
		PublicKey:   []byte(stringFromAny(mapFromAny(doc["publicKey"])["publicKeyPem"])),
	}
	if actor.Inbox == "" {
		return nil, fmt.Errorf("actor %q has no inbox", id)
	}
	return actor, nil
}

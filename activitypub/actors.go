package activitypub

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sitepub/sitepub/internal/config"
	"github.com/sitepub/sitepub/internal/httpx"
	"github.com/sitepub/sitepub/internal/to"
	"github.com/sitepub/sitepub/models"
)

// requireLocalUser rejects requests routed under /@{username} for any
// username other than the local actor's.
func requireLocalUser(env *Env, r *http.Request) error {
	username := chi.URLParam(r, "username")
	if username != "" && username != env.Site.Username {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("no such user: %q", username))
	}
	return nil
}

// ActorShow serves the local actor document, or redirects browsers to
// the HTML profile.
func ActorShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	if err := requireLocalUser(env, r); err != nil {
		return err
	}
	if !acceptsActivityPub(r.Header.Get("Accept")) {
		return httpx.Redirect(w, env.Site.Profile())
	}
	local, err := models.NewActors(env.DB).Local()
	if err != nil {
		return err
	}
	return to.ActivityJSON(w, actorDocument(env.Site, local))
}

func actorDocument(site *config.Site, actor *models.Actor) map[string]any {
	return map[string]any{
		"@context": []string{
			Context,
			SecurityContext,
		},
		"id":                actor.URI,
		"type":              "Person",
		"preferredUsername": actor.Name,
		"name":              actor.DisplayName,
		"summary":           actor.Summary,
		"url":               site.Profile(),
		"inbox":             site.InboxURI(),
		"outbox":            site.OutboxURI(),
		"followers":         site.FollowersURI(),
		"following":         site.FollowingURI(),
		"publicKey": map[string]any{
			"id":           actor.PublicKeyID(),
			"owner":        actor.URI,
			"publicKeyPem": string(actor.PublicKey),
		},
	}
}

// acceptsActivityPub reports whether an Accept header asks for an
// ActivityPub representation.
func acceptsActivityPub(accept string) bool {
	accept = strings.ToLower(accept)
	switch {
	case strings.Contains(accept, "activity+json"):
		return true
	case strings.Contains(accept, "ld+json") && strings.Contains(accept, "activitystreams"):
		return true
	case strings.Contains(accept, "json") && strings.Contains(accept, "profile=") && strings.Contains(accept, "activitystreams"):
		return true
	}
	return false
}

// ArticleShow negotiates an article path: ActivityPub requests get the
// Article object, a trailing /activity gets the Create activity, and
// everything else is not ours to serve.
func ArticleShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	if !acceptsActivityPub(r.Header.Get("Accept")) {
		return httpx.Error(http.StatusNotAcceptable, errNotActivityPub)
	}

	path := strings.TrimRight(r.URL.Path, "/")
	if path == "" {
		path = "/"
	}
	wantsActivity := false
	if strings.HasSuffix(path, activitySuffix) {
		wantsActivity = true
		path = strings.TrimSuffix(path, activitySuffix)
	}

	// requests arriving on a collection's alternate host carry paths
	// without the collection prefix
	if col, ok := collectionForHost(env.Site, r.Host); ok {
		if path == "/" {
			return httpx.Error(http.StatusNotFound, errNoSuchArticle)
		}
		if path != col.Prefix && !strings.HasPrefix(path, col.Prefix+"/") {
			path = col.Prefix + path
		}
	}

	entry, err := env.Content.ByPath(path)
	if err != nil {
		return httpx.Error(http.StatusNotFound, errNoSuchArticle)
	}

	m := NewMaterializer(env.Site, env.Content)
	if wantsActivity {
		return to.ActivityJSON(w, m.Create(*entry))
	}
	article := m.Article(*entry)
	article["@context"] = Context
	return to.ActivityJSON(w, article)
}

const activitySuffix = "/activity"

var (
	errNotActivityPub = errors.New("not an activitypub request")
	errNoSuchArticle  = errors.New("no article at this path")
)

func collectionForHost(site *config.Site, host string) (config.Collection, bool) {
	host = strings.ToLower(host)
	for _, col := range site.Collections {
		if col.Host != "" && strings.ToLower(col.Host) == host {
			return col, true
		}
	}
	return config.Collection{}, false
}

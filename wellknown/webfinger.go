// Package wellknown serves the discovery endpoints under /.well-known
// that let other servers find the local actor.
package wellknown

import (
	"errors"
	"net/http"

	"github.com/sitepub/sitepub/activitypub"
	"github.com/sitepub/sitepub/internal/httpx"
	"github.com/sitepub/sitepub/internal/to"
	"github.com/sitepub/sitepub/internal/webfinger"
)

// WebfingerShow resolves an acct: resource to the local actor.
func WebfingerShow(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	var params struct {
		Resource string `schema:"resource"`
	}
	if err := httpx.Params(r, &params); err != nil {
		return err
	}
	if params.Resource == "" {
		return httpx.Error(http.StatusBadRequest, errors.New("resource parameter is required"))
	}
	acct, err := webfinger.Parse(params.Resource)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	if acct.User != env.Site.Username || (acct.Host != "" && acct.Host != env.Site.Domain) {
		return httpx.Error(http.StatusNotFound, errors.New("unknown resource: "+params.Resource))
	}

	self := env.Site.ActorURI()
	return to.JRD(w, map[string]any{
		"subject": env.Site.Acct(),
		"aliases": []string{
			self,
			env.Site.Profile(),
		},
		"links": []map[string]any{
			{
				"rel":  "http://webfinger.net/rel/profile-page",
				"type": "text/html",
				"href": env.Site.Profile(),
			},
			{
				"rel":  "self",
				"type": "application/activity+json",
				"href": self,
			},
		},
	})
}

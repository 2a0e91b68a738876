package activitypub

import (
	"net/http"

	"github.com/sitepub/sitepub/internal/httpx"
	"github.com/sitepub/sitepub/internal/to"
)

// Outbox serves the local actor's outbox, the Create activities of every
// published entry, newest first.
func Outbox(env *Env, w http.ResponseWriter, r *http.Request) error {
	if err := requireLocalUser(env, r); err != nil {
		return err
	}
	var params struct {
		Limit  int `schema:"limit"`
		Offset int `schema:"offset"`
	}
	params.Limit = OutboxPageSize
	if err := httpx.Params(r, &params); err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	if params.Limit <= 0 || params.Limit > OutboxPageSize {
		params.Limit = OutboxPageSize
	}

	total, items, err := NewMaterializer(env.Site, env.Content).Collect(params.Limit, params.Offset)
	if err != nil {
		return err
	}
	return to.ActivityJSON(w, map[string]any{
		"@context":     Context,
		"id":           env.Site.OutboxURI(),
		"type":         "OrderedCollection",
		"totalItems":   total,
		"orderedItems": items,
	})
}

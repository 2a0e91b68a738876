package wellknown

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sitepub/sitepub/activitypub"
	"github.com/sitepub/sitepub/internal/httpx"
	"github.com/sitepub/sitepub/internal/to"
)

func NodeInfoIndex(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("cache-control", "max-age=259200, public")
	return to.JSON(w, map[string]any{
		"links": []any{
			map[string]any{
				"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				"href": fmt.Sprintf("https://%s/nodeinfo/2.0", env.Site.Domain),
			},
			map[string]any{
				"rel":  "http://nodeinfo.diaspora.software/ns/schema/2.1",
				"href": fmt.Sprintf("https://%s/nodeinfo/2.1", env.Site.Domain),
			},
		},
	})
}

func NodeInfoShow(env *activitypub.Env, w http.ResponseWriter, r *http.Request) error {
	switch chi.URLParam(r, "version") {
	case "2.0":
		// https://github.com/jhass/nodeinfo/blob/main/schemas/2.0/schema.json
		w.Header().Set("cache-control", "max-age=259200, public")
		return to.JSON(w, map[string]any{
			"version": "2.0",
			"software": map[string]any{
				"name":    "sitepub",
				"version": "0.0.0-devel",
			},
			"protocols":         protocols(),
			"services":          services(),
			"usage":             usage(env),
			"openRegistrations": false,
			"metadata":          metadata(),
		})
	case "2.1":
		w.Header().Set("cache-control", "max-age=259200, public")
		return to.JSON(w, map[string]any{
			"version": "2.1",
			"software": map[string]any{
				"name":       "sitepub",
				"version":    "0.0.0-devel",
				"repository": "https://github.com/sitepub/sitepub",
			},
			"protocols":         protocols(),
			"services":          services(),
			"usage":             usage(env),
			"openRegistrations": false,
			"metadata":          metadata(),
		})
	default:
		return httpx.Error(http.StatusNotFound, errors.New("unsupported version: "+chi.URLParam(r, "version")))
	}
}

func metadata() map[string]any {
	return map[string]any{}
}

func protocols() []any {
	return []any{
		"activitypub",
	}
}

func services() map[string]any {
	return map[string]any{
		"inbound":  []any{},
		"outbound": []any{},
	}
}

func usage(env *activitypub.Env) map[string]any {
	posts, _, _ := activitypub.NewMaterializer(env.Site, env.Content).Collect(-1, 0)
	return map[string]any{
		"users": map[string]any{
			"total": 1,
		},
		"localPosts": posts,
	}
}

package activitypub

import (
	"net/http"

	"github.com/sitepub/sitepub/internal/algorithms"
	"github.com/sitepub/sitepub/internal/to"
	"github.com/sitepub/sitepub/models"
)

// FollowersIndex serves the actors following the local actor. Only
// accepted relations are visible; the requested and removed states are
// bookkeeping.
func FollowersIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	if err := requireLocalUser(env, r); err != nil {
		return err
	}
	followers, err := models.NewFollowers(env.DB).Accepted()
	if err != nil {
		return err
	}
	return to.ActivityJSON(w, map[string]any{
		"@context":   Context,
		"id":         env.Site.FollowersURI(),
		"type":       "OrderedCollection",
		"totalItems": len(followers),
		"orderedItems": algorithms.Map(followers, func(f models.Follower) string {
			return f.ActorURI
		}),
	})
}

// FollowingIndex serves the actors the local actor follows.
func FollowingIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	if err := requireLocalUser(env, r); err != nil {
		return err
	}
	following, err := models.NewFollowings(env.DB).Accepted()
	if err != nil {
		return err
	}
	return to.ActivityJSON(w, map[string]any{
		"@context":   Context,
		"id":         env.Site.FollowingURI(),
		"type":       "OrderedCollection",
		"totalItems": len(following),
		"orderedItems": algorithms.Map(following, func(f models.Following) string {
			return f.ActorURI
		}),
	})
}

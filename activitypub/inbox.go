package activitypub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sitepub/sitepub/internal/algorithms"
	"github.com/sitepub/sitepub/internal/httpsig"
	"github.com/sitepub/sitepub/internal/httpx"
	"github.com/sitepub/sitepub/internal/to"
	"github.com/sitepub/sitepub/models"
)

// InboxCreate handles activities POSTed to the local actor's inbox.
// Whatever happens to the activity, it ends up in the ledger; the
// interesting types also move the follow state machine.
func InboxCreate(env *Env, w http.ResponseWriter, r *http.Request) error {
	if err := requireLocalUser(env, r); err != nil {
		return err
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("reading activity: %w", err))
	}
	// signature verification re-reads the body to check the digest
	r.Body = io.NopCloser(bytes.NewReader(raw))
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return httpx.Error(http.StatusBadRequest, fmt.Errorf("invalid activity: %w", err))
	}
	switch stringFromAny(body["type"]) {
	case "Follow":
		return inboxFollow(env, w, r, body)
	case "Undo":
		return inboxUndo(env, w, r, body)
	case "Accept":
		return inboxReceipt(env, w, r, body, models.FollowAccepted)
	case "Reject":
		return inboxReceipt(env, w, r, body, models.FollowRemoved)
	default:
		return inboxDefault(env, w, body)
	}
}

func inboxFollow(env *Env, w http.ResponseWriter, r *http.Request, body map[string]any) error {
	actorURI := resolveID(body["actor"])
	if actorURI == "" {
		return httpx.Error(http.StatusBadRequest, errors.New("follow has no actor"))
	}
	if err := verifySignature(env, r, actorURI); err != nil {
		return httpx.Error(http.StatusUnauthorized, err)
	}

	// only the local actor or their followers collection can be followed
	object := resolveID(body["object"])
	if object != env.Site.ActorURI() && object != env.Site.FollowersURI() {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("no such actor: %q", object))
	}

	actor, err := NewResolver(env.DB).Resolve(actorURI)
	if err != nil {
		if errors.Is(err, ErrActorNotFound) {
			return httpx.Error(http.StatusNotFound, err)
		}
		return err
	}

	followID := stringFromAny(body["id"])
	if followID == "" {
		followID = "urn:uuid:" + uuid.New().String()
	}
	if _, err := models.NewActivities(env.DB).Record(&models.Activity{
		ActivityID: followID,
		Direction:  models.DirectionInbox,
		Type:       "Follow",
		ActorURI:   actorURI,
		ObjectURI:  object,
		Payload:    body,
	}); err != nil {
		return err
	}

	first, err := models.NewFollowers(env.DB).Accept(actor, followID)
	if err != nil {
		return err
	}

	accept := map[string]any{
		"@context": Context,
		"id":       fmt.Sprintf("%s#accepts/%s", env.Site.ActorURI(), uuid.New().String()),
		"type":     "Accept",
		"actor":    env.Site.ActorURI(),
		"object":   followID,
		"to":       []string{actorURI},
	}
	follower := models.Follower{
		ActorURI:    actor.URI,
		Inbox:       actor.Inbox,
		SharedInbox: actor.SharedInbox,
	}
	go func() {
		if err := env.Dispatcher.Send(context.Background(), accept, actor.Inbox); err != nil {
			log.Printf("inbox: sending accept to %s: %v", actor.Inbox, err)
			return
		}
		if first {
			env.Dispatcher.ReplayBacklog(follower)
			if err := env.Dispatcher.BroadcastActorUpdate(context.Background()); err != nil {
				log.Printf("inbox: broadcasting actor update: %v", err)
			}
		}
	}()

	return activityJSONStatus(w, http.StatusAccepted, accept)
}

func inboxUndo(env *Env, w http.ResponseWriter, r *http.Request, body map[string]any) error {
	actorURI := resolveID(body["actor"])
	if actorURI == "" {
		return httpx.Error(http.StatusBadRequest, errors.New("undo has no actor"))
	}

	inner := mapFromAny(body["object"])
	if inner == nil {
		// some servers undo a follow by its bare id rather than
		// embedding the Follow
		follower, err := models.NewFollowers(env.DB).FindByFollowID(stringFromAny(body["object"]))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return inboxDefault(env, w, body)
		}
		if err != nil {
			return err
		}
		if err := verifySignature(env, r, actorURI); err != nil {
			return httpx.Error(http.StatusUnauthorized, err)
		}
		if follower.ActorURI != actorURI {
			return httpx.Error(http.StatusForbidden, errors.New("undo actor does not match followed actor"))
		}
		return removeFollower(env, w, body, follower.ActorURI)
	}

	if stringFromAny(inner["type"]) != "Follow" {
		return inboxDefault(env, w, body)
	}
	if err := verifySignature(env, r, actorURI); err != nil {
		return httpx.Error(http.StatusUnauthorized, err)
	}
	if actorURI != resolveID(inner["actor"]) {
		return httpx.Error(http.StatusForbidden, errors.New("undo actor does not match followed actor"))
	}
	// the undone Follow must have been aimed at the local actor
	object := resolveID(inner["object"])
	if object != env.Site.ActorURI() && object != env.Site.FollowersURI() {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("no such actor: %q", object))
	}
	return removeFollower(env, w, body, actorURI)
}

func removeFollower(env *Env, w http.ResponseWriter, body map[string]any, actorURI string) error {
	if err := recordInbox(env, body, "Undo"); err != nil {
		return err
	}
	if err := models.NewFollowers(env.DB).Remove(actorURI); err != nil {
		return err
	}
	return accepted(w)
}

// inboxReceipt handles Accept and Reject receipts for our own outbound
// follow requests. The receipt must be signed by the actor we asked to
// follow and must name the Follow we sent; anything else is recorded
// without moving the relation.
func inboxReceipt(env *Env, w http.ResponseWriter, r *http.Request, body map[string]any, status models.FollowStatus) error {
	actorURI := resolveID(body["actor"])
	if actorURI == "" {
		return httpx.Error(http.StatusBadRequest, errors.New("receipt has no actor"))
	}
	if err := verifySignature(env, r, actorURI); err != nil {
		return httpx.Error(http.StatusUnauthorized, err)
	}
	if err := recordInbox(env, body, stringFromAny(body["type"])); err != nil {
		return err
	}
	following, err := models.NewFollowings(env.DB).Find(actorURI)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return accepted(w)
	}
	if err != nil {
		return err
	}
	if !receiptMatchesFollow(env, body["object"], following) {
		return accepted(w)
	}
	followings := models.NewFollowings(env.DB)
	if status == models.FollowAccepted {
		err = followings.MarkAccepted(actorURI)
	} else {
		err = followings.Remove(actorURI)
	}
	if err != nil {
		return err
	}
	return accepted(w)
}

// receiptMatchesFollow reports whether a receipt's object names the Follow
// we sent the actor, either by its id or as an echoed copy of the Follow.
func receiptMatchesFollow(env *Env, object any, following *models.Following) bool {
	if resolveID(object) == following.FollowID {
		return true
	}
	inner := mapFromAny(object)
	return inner != nil &&
		stringFromAny(inner["type"]) == "Follow" &&
		resolveID(inner["actor"]) == env.Site.ActorURI() &&
		resolveID(inner["object"]) == following.ActorURI
}

func inboxDefault(env *Env, w http.ResponseWriter, body map[string]any) error {
	if err := recordInbox(env, body, stringFromAny(body["type"])); err != nil {
		return err
	}
	return accepted(w)
}

func recordInbox(env *Env, body map[string]any, typ string) error {
	id := stringFromAny(body["id"])
	if id == "" {
		id = "urn:uuid:" + uuid.New().String()
	}
	if typ == "" {
		typ = "Activity"
	}
	_, err := models.NewActivities(env.DB).Record(&models.Activity{
		ActivityID: id,
		Direction:  models.DirectionInbox,
		Type:       typ,
		ActorURI:   resolveID(body["actor"]),
		ObjectURI:  resolveID(body["object"]),
		Payload:    body,
	})
	return err
}

// verifySignature checks the request's HTTP signature and that the key
// which produced it belongs to the actor the activity claims to come
// from. A valid signature under somebody else's key proves nothing.
func verifySignature(env *Env, r *http.Request, claimedActor string) error {
	sig, err := httpsig.ParseSignature(r)
	if err != nil {
		return err
	}
	if trimKeyID(sig.KeyID) != claimedActor {
		return fmt.Errorf("key %q does not belong to actor %q", sig.KeyID, claimedActor)
	}
	return httpsig.Verify(r, env.GetKey)
}

func accepted(w http.ResponseWriter) error {
	return activityJSONStatus(w, http.StatusAccepted, map[string]any{
		"status": "Accepted",
	})
}

func activityJSONStatus(w http.ResponseWriter, status int, obj any) error {
	w.Header().Set("Content-Type", `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`)
	w.WriteHeader(status)
	return json.MarshalOptions{}.MarshalFull(json.EncodeOptions{Indent: "  "}, w, obj)
}

// InboxIndex lists the recorded inbox activities that concern the local
// actor, newest first. Create activities are history the outbox already
// tells better, so they are excluded.
func InboxIndex(env *Env, w http.ResponseWriter, r *http.Request) error {
	if err := requireLocalUser(env, r); err != nil {
		return err
	}
	recorded, err := models.NewActivities(env.DB).Inbox("Create")
	if err != nil {
		return err
	}
	relevant := algorithms.Filter(recorded, func(activity models.Activity) bool {
		return concernsLocalActor(env, &activity)
	})
	orderedItems := algorithms.Map(relevant, func(activity models.Activity) map[string]any {
		if activity.Payload != nil {
			return activity.Payload
		}
		return map[string]any{
			"@context": Context,
			"id":       activity.ActivityID,
			"type":     activity.Type,
			"actor":    activity.ActorURI,
			"object":   activity.ObjectURI,
		}
	})
	return to.ActivityJSON(w, map[string]any{
		"@context":     Context,
		"id":           env.Site.InboxURI(),
		"type":         "OrderedCollection",
		"totalItems":   len(orderedItems),
		"orderedItems": orderedItems,
	})
}

func concernsLocalActor(env *Env, activity *models.Activity) bool {
	origin := env.Site.Origin()
	if activity.ObjectURI == env.Site.ActorURI() || strings.HasPrefix(activity.ObjectURI, origin+"/") {
		return true
	}
	if targetsLocalObject(env, activity.Payload["object"]) {
		return true
	}
	for _, field := range []string{"to", "cc", "bto", "bcc", "audience"} {
		for _, recipient := range recipients(activity.Payload[field]) {
			if recipient == env.Site.ActorURI() || recipient == env.Site.FollowersURI() {
				return true
			}
		}
	}
	return false
}

func targetsLocalObject(env *Env, v any) bool {
	origin := env.Site.Origin()
	switch v := v.(type) {
	case string:
		return v == env.Site.ActorURI() || strings.HasPrefix(v, origin+"/")
	case []any:
		for _, entry := range v {
			if targetsLocalObject(env, entry) {
				return true
			}
		}
	case map[string]any:
		if id := stringFromAny(v["id"]); id == env.Site.ActorURI() || strings.HasPrefix(id, origin+"/") {
			return true
		}
		if inReplyTo := stringFromAny(v["inReplyTo"]); strings.HasPrefix(inReplyTo, origin+"/") {
			return true
		}
		if v["object"] != nil {
			return targetsLocalObject(env, v["object"])
		}
	}
	return false
}

func recipients(v any) []string {
	switch v := v.(type) {
	case string:
		return []string{v}
	case map[string]any:
		if id := stringFromAny(v["id"]); id != "" {
			return []string{id}
		}
	case []any:
		var all []string
		for _, entry := range v {
			all = append(all, recipients(entry)...)
		}
		return all
	}
	return nil
}

package activitypub

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sitepub/sitepub/internal/config"
	"github.com/sitepub/sitepub/models"
)

// SendFollow sends a Follow request from the local actor to the target.
// The relation stays in the requested state until the remote side posts
// an Accept receipt to our inbox.
func SendFollow(ctx context.Context, db *gorm.DB, site *config.Site, targetURI string) error {
	local, err := models.NewActors(db).Local()
	if err != nil {
		return err
	}
	target, err := NewResolver(db).Resolve(targetURI)
	if err != nil {
		return err
	}
	client, err := NewClient(local)
	if err != nil {
		return err
	}

	followID := fmt.Sprintf("%s#follows/%s", site.ActorURI(), uuid.New().String())
	activity := map[string]any{
		"@context": Context,
		"id":       followID,
		"type":     "Follow",
		"actor":    site.ActorURI(),
		"object":   target.URI,
	}

	if err := models.NewFollowings(db).Request(target.URI, followID); err != nil {
		return err
	}
	if _, err := models.NewActivities(db).Record(&models.Activity{
		ActivityID: followID,
		Direction:  models.DirectionOutbox,
		Type:       "Follow",
		ActorURI:   site.ActorURI(),
		ObjectURI:  target.URI,
		Payload:    activity,
	}); err != nil {
		return err
	}
	return client.Post(ctx, target.Inbox, activity)
}

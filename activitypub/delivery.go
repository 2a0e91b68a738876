package activitypub

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/sitepub/sitepub/content"
	"github.com/sitepub/sitepub/internal/config"
	"github.com/sitepub/sitepub/models"
)

// A Dispatcher delivers activities to followers. It owns the broadcast
// queue, a pending set of collection names drained by a single worker,
// and the backlog replay that welcomes a new follower.
type Dispatcher struct {
	db           *gorm.DB
	site         *config.Site
	client       *Client
	materializer *Materializer

	// MaxInflight bounds concurrent deliveries during a broadcast.
	MaxInflight int
	// BacklogInitialDelay is how long a backlog replay waits before the
	// first delivery, giving the remote server time to finish processing
	// our Accept.
	BacklogInitialDelay time.Duration
	// RetryDelay is the pause between attempts at the same item.
	RetryDelay time.Duration
	// BetweenItems is the pause between consecutive backlog items.
	BetweenItems time.Duration
	// MaxRetries is the number of attempts per backlog item.
	MaxRetries int

	mu       sync.Mutex
	pending  map[string]bool
	draining bool
}

func NewDispatcher(db *gorm.DB, site *config.Site, store content.Store, client *Client) *Dispatcher {
	return &Dispatcher{
		db:           db,
		site:         site,
		client:       client,
		materializer: NewMaterializer(site, store),

		MaxInflight:         4,
		BacklogInitialDelay: 1500 * time.Millisecond,
		RetryDelay:          3000 * time.Millisecond,
		BetweenItems:        800 * time.Millisecond,
		MaxRetries:          3,

		pending: make(map[string]bool),
	}
}

// A DeliveryFailure records one recipient or item that could not be
// delivered to.
type DeliveryFailure struct {
	Inbox      string
	ActivityID string
	Attempts   int
	Err        error
}

// A DeliveryResult summarises a fan-out or replay.
type DeliveryResult struct {
	Delivered int
	Failed    []DeliveryFailure
}

// Send posts a single activity to an inbox.
func (d *Dispatcher) Send(ctx context.Context, activity map[string]any, inbox string) error {
	return d.client.Post(ctx, inbox, activity)
}

// Deliver fans an activity out to the given followers. A failing
// recipient never blocks the others.
func (d *Dispatcher) Deliver(ctx context.Context, activity map[string]any, recipients []models.Follower) DeliveryResult {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		result  DeliveryResult
		permits = make(chan struct{}, d.MaxInflight)
	)
	activityID := stringFromAny(activity["id"])
	for _, recipient := range recipients {
		inbox := recipient.DeliveryInbox()
		if inbox == "" {
			continue
		}
		wg.Add(1)
		permits <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-permits }()
			err := d.Send(ctx, activity, inbox)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, DeliveryFailure{
					Inbox:      inbox,
					ActivityID: activityID,
					Attempts:   1,
					Err:        err,
				})
				return
			}
			result.Delivered++
		}()
	}
	wg.Wait()
	return result
}

// ReplayBacklog starts delivering the full outbox backlog to a follower
// in the background.
func (d *Dispatcher) ReplayBacklog(follower models.Follower) {
	go func() {
		result := d.replayBacklog(context.Background(), follower)
		if len(result.Failed) > 0 {
			log.Printf("delivery: backlog replay to %s: %d delivered, %d failed", follower.ActorURI, result.Delivered, len(result.Failed))
		}
	}()
}

func (d *Dispatcher) replayBacklog(ctx context.Context, follower models.Follower) DeliveryResult {
	var result DeliveryResult
	inbox := follower.DeliveryInbox()
	if inbox == "" {
		return result
	}
	_, backlog, err := d.materializer.Collect(-1, 0)
	if err != nil {
		log.Printf("delivery: collecting backlog: %v", err)
		return result
	}
	if len(backlog) == 0 {
		return result
	}
	d.sleep(ctx, d.BacklogInitialDelay)

	for i, activity := range backlog {
		var lastErr error
		delivered := false
		attempts := 0
		for attempts < d.MaxRetries && !delivered {
			attempts++
			if lastErr = d.Send(ctx, activity, inbox); lastErr == nil {
				delivered = true
				result.Delivered++
				break
			}
			if attempts < d.MaxRetries {
				d.sleep(ctx, d.RetryDelay)
			}
		}
		if !delivered {
			result.Failed = append(result.Failed, DeliveryFailure{
				Inbox:      inbox,
				ActivityID: stringFromAny(activity["id"]),
				Attempts:   attempts,
				Err:        lastErr,
			})
		}
		if i < len(backlog)-1 {
			d.sleep(ctx, d.BetweenItems)
		}
	}
	return result
}

func (d *Dispatcher) sleep(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// Enqueue marks a collection as having fresh content. The drain worker
// is started if one is not already running; a collection enqueued twice
// before it is drained is processed once.
func (d *Dispatcher) Enqueue(collection string) {
	d.mu.Lock()
	d.pending[collection] = true
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true
	d.mu.Unlock()
	go d.drain()
}

func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		var collection string
		found := false
		for c := range d.pending {
			collection, found = c, true
			break
		}
		if !found {
			d.draining = false
			d.mu.Unlock()
			return
		}
		delete(d.pending, collection)
		d.mu.Unlock()

		if err := d.ProcessCollection(context.Background(), collection); err != nil {
			log.Printf("delivery: processing collection %s: %v", collection, err)
		}
	}
}

// ProcessCollection broadcasts every entry of a collection created after
// the collection's watermark. The ledger keeps replays idempotent: an
// entry whose Create is already recorded advances the watermark without
// being delivered again.
func (d *Dispatcher) ProcessCollection(ctx context.Context, collection string) error {
	cursors := models.NewCursors(d.db)
	cursor, err := cursors.Get(collection)
	if err != nil {
		return err
	}
	entries, err := d.materializer.EntriesSince(collection, cursor.Watermark, cursor.LastPath)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	followers, err := models.NewFollowers(d.db).Accepted()
	if err != nil {
		return err
	}
	activities := models.NewActivities(d.db)
	for _, entry := range entries {
		activity := d.materializer.Create(entry)
		outcome, err := activities.RecordReconciling(&models.Activity{
			ActivityID: stringFromAny(activity["id"]),
			Direction:  models.DirectionOutbox,
			Type:       "Create",
			ActorURI:   d.site.ActorURI(),
			ObjectURI:  d.materializer.ArticleURL(entry),
			Payload:    activity,
		}, d.materializer.LegacyActivityIDs(entry))
		if err != nil {
			return err
		}
		if outcome == models.Inserted {
			result := d.Deliver(ctx, activity, followers)
			for _, failure := range result.Failed {
				log.Printf("delivery: %s to %s: %v", failure.ActivityID, failure.Inbox, failure.Err)
			}
		}
		if err := cursors.Put(collection, entry.CreatedAt, entry.Path); err != nil {
			return err
		}
	}
	return nil
}

// BroadcastActorUpdate sends an Update of the actor document to every
// accepted follower.
func (d *Dispatcher) BroadcastActorUpdate(ctx context.Context) error {
	local, err := models.NewActors(d.db).Local()
	if err != nil {
		return err
	}
	followers, err := models.NewFollowers(d.db).Accepted()
	if err != nil {
		return err
	}
	if len(followers) == 0 {
		return nil
	}
	update := map[string]any{
		"@context":  Context,
		"id":        d.site.ActorURI() + "#updates/" + time.Now().UTC().Format("20060102150405"),
		"type":      "Update",
		"actor":     d.site.ActorURI(),
		"object":    actorDocument(d.site, local),
		"to":        []string{PublicAudience},
		"published": time.Now().UTC().Format(time.RFC3339),
	}
	result := d.Deliver(ctx, update, followers)
	for _, failure := range result.Failed {
		log.Printf("delivery: actor update to %s: %v", failure.Inbox, failure.Err)
	}
	return nil
}

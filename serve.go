package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/group"
	"gorm.io/gorm"

	"github.com/sitepub/sitepub/activitypub"
	"github.com/sitepub/sitepub/content"
	"github.com/sitepub/sitepub/internal/config"
	"github.com/sitepub/sitepub/internal/httpx"
	"github.com/sitepub/sitepub/models"
	"github.com/sitepub/sitepub/wellknown"
)

type ServeCmd struct {
	Addr         string        `help:"address to listen" default:"127.0.0.1:8080"`
	Config       string        `required:"" help:"path to the site configuration file"`
	DSN          string        `required:"" help:"data source name"`
	PollInterval time.Duration `help:"how often to scan the content directory for changes" default:"30s"`
}

func (s *ServeCmd) Run(ctx *Context) error {
	site, err := config.Load(s.Config)
	if err != nil {
		return err
	}

	db, err := gorm.Open(newDialector(s.DSN), &ctx.Config)
	if err != nil {
		return err
	}
	if err := configureDB(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(models.AllTables()...); err != nil {
		return err
	}

	local, err := models.NewActors(db).Local()
	if err != nil {
		return fmt.Errorf("no local actor, run init first: %w", err)
	}

	client, err := activitypub.NewClient(local)
	if err != nil {
		return err
	}

	store := content.NewDirStore(site.ContentDir, site.Collections)
	dispatcher := activitypub.NewDispatcher(db, site, store, client)
	env := &activitypub.Env{
		DB:         db,
		Site:       site,
		Content:    store,
		Dispatcher: dispatcher,
	}
	envFn := func(r *http.Request) *activitypub.Env { return env }

	c := chi.NewRouter()
	c.Use(middleware.RequestID)
	c.Use(middleware.RealIP)
	c.Use(middleware.Logger)
	c.Use(middleware.Recoverer)

	c.Route("/", func(r chi.Router) {

		r.Route("/.well-known", func(r chi.Router) {
			r.Get("/webfinger", httpx.HandlerFunc(envFn, wellknown.WebfingerShow))
			r.Get("/host-meta", httpx.HandlerFunc(envFn, wellknown.HostMeta))
			r.Get("/nodeinfo", httpx.HandlerFunc(envFn, wellknown.NodeInfoIndex))
		})
		r.Get("/nodeinfo/{version}", httpx.HandlerFunc(envFn, wellknown.NodeInfoShow))

		r.Route("/@{username}", func(r chi.Router) {
			r.Get("/", httpx.HandlerFunc(envFn, activitypub.ActorShow))
			r.Get("/inbox", httpx.HandlerFunc(envFn, activitypub.InboxIndex))
			r.Post("/inbox", httpx.HandlerFunc(envFn, activitypub.InboxCreate))
			r.Get("/outbox", httpx.HandlerFunc(envFn, activitypub.Outbox))
			r.Get("/followers", httpx.HandlerFunc(envFn, activitypub.FollowersIndex))
			r.Get("/following", httpx.HandlerFunc(envFn, activitypub.FollowingIndex))
		})

		r.Get("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			io.WriteString(w, "User-agent: *\nDisallow: /@*/inbox")
		})

		// everything else might be an article in one of the content
		// collections, on the main host or a collection's alternate host
		r.NotFound(httpx.HandlerFunc(envFn, activitypub.ArticleShow))
	})

	walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
		route = strings.Replace(route, "/*/", "/", -1)
		fmt.Printf("%s %s\n", method, route)
		return nil
	}

	if err := chi.Walk(c, walkFunc); err != nil {
		fmt.Printf("Logging err: %s\n", err.Error())
	}

	// catch up on anything published while we were down
	for _, name := range site.CollectionNames() {
		dispatcher.Enqueue(name)
	}

	signalCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	watcher := content.NewWatcher(site.ContentDir, site.CollectionNames(), s.PollInterval)

	g := group.New(signalCtx)
	g.Add(watcher.Run)
	g.Add(func(ctx context.Context) error {
		for ev := range watcher.Events() {
			dispatcher.Enqueue(ev.Collection)
		}
		return nil
	})
	g.Add(func(ctx context.Context) error {
		svr := &http.Server{
			Addr:         s.Addr,
			Handler:      c,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			svr.Shutdown(shutdownCtx)
		}()
		err := svr.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	return g.Wait()
}

package main

import (
	"context"

	"gorm.io/gorm"

	"github.com/sitepub/sitepub/activitypub"
	"github.com/sitepub/sitepub/content"
	"github.com/sitepub/sitepub/internal/config"
	"github.com/sitepub/sitepub/models"
)

type DeliverCmd struct {
	Config     string `required:"" help:"path to the site configuration file"`
	DSN        string `required:"" help:"data source name"`
	Collection string `help:"deliver a single collection instead of all of them"`
}

func (d *DeliverCmd) Run(ctx *Context) error {
	site, err := config.Load(d.Config)
	if err != nil {
		return err
	}

	db, err := gorm.Open(newDialector(d.DSN), &ctx.Config)
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
		return err
	}
	client, err := activitypub.NewClient(local)
	if err != nil {
		return err
	}

	store := content.NewDirStore(site.ContentDir, site.Collections)
	dispatcher := activitypub.NewDispatcher(db, site, store, client)

	collections := site.CollectionNames()
	if d.Collection != "" {
		collections = []string{d.Collection}
	}
	for _, name := range collections {
		if err := dispatcher.ProcessCollection(context.Background(), name); err != nil {
			return err
		}
	}
	return nil
}
